package attendance

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
)

func TestParseCSVEncoding(t *testing.T) {
	for in, want := range map[string]CSVEncoding{
		"":           EncodingUTF8,
		"UTF-8":      EncodingUTF8,
		"sjis":       EncodingShiftJIS,
		" Shift_JIS": EncodingShiftJIS,
		"cp932":      EncodingShiftJIS,
	} {
		got, err := ParseCSVEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCSVEncoding("latin1")
	assert.ErrorIs(t, err, &DomainError{Code: CodeInvalidArgument})
}

func TestWriteCSVShiftJIS(t *testing.T) {
	e := MustNewEngine(DefaultShift())
	rec := checkedIn(t, e, "2025-06-10", "09:40:00")
	rec, err := e.CheckOut(rec, at(t, "2025-06-10", "18:10:00"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Record{rec}, EncodingShiftJIS, EncodingShiftJIS.DefaultLang()))

	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t,
		"日付,区分,出勤,退勤,遅刻(分),休憩回数,休憩(分),実労働,残業(分)\n"+
			"2025-06-10,退勤済,09:40:00,18:10:00,40,0,0,8h 30m,0\n",
		string(decoded))
	assert.NotEqual(t, decoded, buf.Bytes())
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, EncodingUTF8, LangEN))
	assert.Equal(t, "date,status,check_in,check_out,late_minutes,breaks,break_minutes,net_working,overtime_minutes\n", buf.String())
}

func TestWriteCSVJapaneseUTF8(t *testing.T) {
	rec := NewRecord("E001", "2025-06-11")
	rec.Status = StatusAbsent

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Record{rec}, EncodingUTF8, LangJA))
	assert.Contains(t, buf.String(), "2025-06-11,欠勤,,,0,0,0,0h 00m,0\n")
}

func TestParseLang(t *testing.T) {
	l, err := ParseLang("", LangJA)
	require.NoError(t, err)
	assert.Equal(t, LangJA, l)
	l, err = ParseLang(" EN ", LangJA)
	require.NoError(t, err)
	assert.Equal(t, LangEN, l)
	_, err = ParseLang("fr", LangEN)
	assert.ErrorIs(t, err, &DomainError{Code: CodeInvalidArgument})
}

func TestTranslatorCoversEveryStatus(t *testing.T) {
	for _, lang := range []Lang{LangEN, LangJA} {
		tr := newTranslator(lang)
		for _, st := range allStatuses {
			got := tr.status(st)
			assert.NotEqual(t, "status_"+string(st), got, "%s/%s", lang, st)
		}
		for i, col := range tr.columns() {
			assert.NotEqual(t, reportColumns[i], col, lang)
		}
	}
	assert.Equal(t, StatusCheckedOut.Label(), newTranslator(LangEN).status(StatusCheckedOut))
}

func TestWriteXLSX(t *testing.T) {
	e := MustNewEngine(DefaultShift())
	rec := checkedIn(t, e, "2025-06-10", "09:00:00")
	rec, err := e.CheckOut(rec, at(t, "2025-06-10", "19:00:00"))
	require.NoError(t, err)
	leave := NewRecord("E001", "2025-06-11")
	leave.Status = StatusLeave
	recs := []Record{rec, leave}
	sum := e.ClassifyMonth(recs, 6, 2025)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "E001", recs, sum, LangJA))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"勤怠", "集計"}, f.GetSheetList())

	rows, err := f.GetRows("勤怠")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "日付", rows[0][0])
	assert.Equal(t, []string{"2025-06-10", "退勤済", "09:00:00", "19:00:00", "0", "0", "0", "10h 00m", "60"}, rows[1])
	assert.Equal(t, "休暇", rows[2][1])

	rate, err := f.GetCellValue("集計", "B8")
	require.NoError(t, err)
	assert.Equal(t, "50", rate)
	month, err := f.GetCellValue("集計", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2025-06", month)
}
