package attendance

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportMonthXLSX: 日次シート + 集計シートの 2 枚
func (s *Service) ExportMonthXLSX(ctx context.Context, w io.Writer, employeeID string, year, month int, lang Lang) error {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return err
	}
	recs, err := s.monthRecords(ctx, emp, year, month)
	if err != nil {
		return err
	}
	sum := s.engine.ClassifyMonth(recs, month, year)
	return WriteXLSX(w, emp, recs, sum, lang)
}

func WriteXLSX(w io.Writer, employeeID string, recs []Record, sum MonthSummary, lang Lang) error {
	tr := newTranslator(lang)
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	daily := tr.text(msgSheetDaily)
	if err := f.SetSheetName(f.GetSheetName(0), daily); err != nil {
		return err
	}
	if err := writeDailySheet(f, daily, tr, recs); err != nil {
		return fmt.Errorf("daily sheet: %w", err)
	}

	summary := tr.text(msgSheetSummary)
	if _, err := f.NewSheet(summary); err != nil {
		return err
	}
	if err := writeSummarySheet(f, summary, tr, employeeID, sum); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeDailySheet(f *excelize.File, sheet string, tr translator, recs []Record) error {
	cols := tr.columns()
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	last, err := excelize.ColumnNumberToName(len(cols))
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 12); err != nil {
		return err
	}

	for i, r := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		// 分の列は数値のまま
		row := []any{
			r.Date,
			tr.status(r.Status),
			clockOrEmpty(r.CheckIn),
			clockOrEmpty(r.CheckOut),
			r.LateByMinutes,
			r.TotalBreaksTaken,
			r.TotalBreakDurationMinutes,
			FormatHoursMinutes(r.NetWorkingMinutes),
			r.OvertimeMinutes,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummarySheet(f *excelize.File, sheet string, tr translator, employeeID string, sum MonthSummary) error {
	rows := [][]any{
		{tr.text(msgSumEmployee), employeeID},
		{tr.text(msgSumMonth), fmt.Sprintf("%04d-%02d", sum.Year, sum.Month)},
		{tr.text(msgSumTotalRecords), sum.TotalRecords},
		{tr.text(msgSumOnTime), sum.OnTime},
		{tr.text(msgSumLate), sum.Late},
		{tr.text(msgSumAbsent), sum.Absent},
		{tr.text(msgSumLeave), sum.Leave},
		{tr.text(msgSumAttendanceRate), sum.AttendanceRate},
		{tr.text(msgSumTotalWorking), FormatHoursMinutes(sum.TotalWorkingMinutes)},
		{tr.text(msgSumTotalOvertime), sum.TotalOvertimeMinutes},
		{tr.text(msgSumAverageWorking), FormatHoursMinutes(sum.AverageWorkingMinutes)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "A", 24)
}
