package attendance

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"kintai-backend/internal/civiltime"
)

type CSVEncoding string

const (
	EncodingUTF8     CSVEncoding = "utf8"
	EncodingShiftJIS CSVEncoding = "sjis" // Excel(Windows) 向け CP932
)

func ParseCSVEncoding(s string) (CSVEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf8", "utf-8":
		return EncodingUTF8, nil
	case "sjis", "shift_jis", "cp932":
		return EncodingShiftJIS, nil
	}
	return "", ErrInvalid("encoding must be utf8 or sjis")
}

// DefaultLang: Shift_JIS で出す時は日本語見出し
func (e CSVEncoding) DefaultLang() Lang {
	if e == EncodingShiftJIS {
		return LangJA
	}
	return LangEN
}

// ExportMonthCSV: 1 行 = 1 日。時刻は固定オフセットの HH:MM:SS。
func (s *Service) ExportMonthCSV(ctx context.Context, w io.Writer, employeeID string, year, month int, enc CSVEncoding, lang Lang) error {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return err
	}
	recs, err := s.monthRecords(ctx, emp, year, month)
	if err != nil {
		return err
	}
	return WriteCSV(w, recs, enc, lang)
}

func WriteCSV(w io.Writer, recs []Record, enc CSVEncoding, lang Lang) error {
	var tw io.Writer = w
	var closer io.Closer
	if enc == EncodingShiftJIS {
		t := transform.NewWriter(w, japanese.ShiftJIS.NewEncoder())
		tw, closer = t, t
	}

	tr := newTranslator(lang)
	cw := csv.NewWriter(tw)
	if err := cw.Write(tr.columns()); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.Date,
			tr.status(r.Status),
			clockOrEmpty(r.CheckIn),
			clockOrEmpty(r.CheckOut),
			strconv.Itoa(r.LateByMinutes),
			strconv.Itoa(r.TotalBreaksTaken),
			strconv.Itoa(r.TotalBreakDurationMinutes),
			FormatHoursMinutes(r.NetWorkingMinutes),
			strconv.Itoa(r.OvertimeMinutes),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}

func clockOrEmpty(t *civiltime.Time) string {
	if t == nil {
		return ""
	}
	return t.TimeString()
}
