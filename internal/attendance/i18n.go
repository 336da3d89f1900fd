package attendance

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// 帳票（CSV / Excel）の見出し・区分名
//
//go:embed locales/*.json
var localeFS embed.FS

type Lang string

const (
	LangEN Lang = "en"
	LangJA Lang = "ja"
)

// ParseLang: 空文字は fallback
func ParseLang(s string, fallback Lang) (Lang, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, nil
	case "en":
		return LangEN, nil
	case "ja", "jp":
		return LangJA, nil
	}
	return "", ErrInvalid("lang must be en or ja")
}

const (
	msgSheetDaily        = "sheet_daily"
	msgSheetSummary      = "sheet_summary"
	msgSumEmployee       = "sum_employee"
	msgSumMonth          = "sum_month"
	msgSumTotalRecords   = "sum_total_records"
	msgSumOnTime         = "sum_on_time"
	msgSumLate           = "sum_late"
	msgSumAbsent         = "sum_absent"
	msgSumLeave          = "sum_leave"
	msgSumAttendanceRate = "sum_attendance_rate"
	msgSumTotalWorking   = "sum_total_working"
	msgSumTotalOvertime  = "sum_total_overtime"
	msgSumAverageWorking = "sum_average_working"
)

var reportColumns = []string{
	"col_date", "col_status", "col_check_in", "col_check_out", "col_late_minutes",
	"col_breaks", "col_break_minutes", "col_net_working", "col_overtime_minutes",
}

var bundle = loadBundle()

func loadBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		panic(fmt.Sprintf("attendance: read locales: %v", err))
	}
	for _, e := range entries {
		if _, err := b.LoadMessageFileFS(localeFS, "locales/"+e.Name()); err != nil {
			panic(fmt.Sprintf("attendance: load %s: %v", e.Name(), err))
		}
	}
	return b
}

type translator struct {
	loc *i18n.Localizer
}

func newTranslator(lang Lang) translator {
	return translator{loc: i18n.NewLocalizer(bundle, string(lang))}
}

// 未定義キーはキー名をそのまま返す
func (t translator) text(id string) string {
	msg, err := t.loc.Localize(&i18n.LocalizeConfig{MessageID: id})
	if err != nil || msg == "" {
		return id
	}
	return msg
}

func (t translator) status(s Status) string {
	return t.text("status_" + string(s))
}

func (t translator) columns() []string {
	out := make([]string, len(reportColumns))
	for i, id := range reportColumns {
		out[i] = t.text(id)
	}
	return out
}
