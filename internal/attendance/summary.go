package attendance

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

type WeekSummary struct {
	Week           int    `json:"week"` // 1..5（1-7日, 8-14日, ...）
	From           string `json:"from"`
	To             string `json:"to"`
	Days           int    `json:"days"`
	Attended       int    `json:"attended"`
	Late           int    `json:"late"`
	WorkingMinutes int    `json:"working_minutes"`
}

type MonthSummary struct {
	Year                  int            `json:"year"`
	Month                 int            `json:"month"`
	TotalRecords          int            `json:"total_records"`
	ByStatus              map[Status]int `json:"by_status"`
	OnTime                int            `json:"on_time"`
	Late                  int            `json:"late"`
	Absent                int            `json:"absent"`
	Leave                 int            `json:"leave"`
	AttendanceRate        int            `json:"attendance_rate"` // %
	TotalWorkingMinutes   int            `json:"total_working_minutes"`
	TotalOvertimeMinutes  int            `json:"total_overtime_minutes"`
	TotalBreakMinutes     int            `json:"total_break_minutes"`
	AverageWorkingMinutes int            `json:"average_working_minutes"`
	Weeks                 []WeekSummary  `json:"weeks"`
}

// ClassifyMonth は year-month に属するレコードだけを日付文字列の前方一致で拾って集計する。
// 空でもゼロ埋めのサマリを返す。
func (e *Engine) ClassifyMonth(records []Record, month, year int) MonthSummary {
	sum := MonthSummary{
		Year:     year,
		Month:    month,
		ByStatus: make(map[Status]int, len(allStatuses)),
		Weeks:    []WeekSummary{},
	}
	for _, st := range allStatuses {
		sum.ByStatus[st] = 0
	}

	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	weeks := map[int]*WeekSummary{}
	worked := 0

	for _, r := range records {
		if len(r.Date) != len("2006-01-02") || r.Date[:len(prefix)] != prefix {
			continue
		}
		day, err := strconv.Atoi(r.Date[len(prefix):])
		if err != nil || day < 1 || day > 31 {
			continue
		}

		sum.TotalRecords++
		sum.ByStatus[r.Status]++

		attended, late := false, false
		switch r.Status {
		case StatusPresent:
			attended = true
		case StatusLate:
			attended, late = true, true
		case StatusCheckedOut:
			attended, late = true, r.LateByMinutes > 0
		case StatusAbsent:
			sum.Absent++
		case StatusLeave:
			sum.Leave++
		case StatusNotStarted:
		}
		if attended {
			if late {
				sum.Late++
			} else {
				sum.OnTime++
			}
		}
		if r.CheckedOut() {
			worked++
			sum.TotalWorkingMinutes += r.NetWorkingMinutes
			sum.TotalOvertimeMinutes += r.OvertimeMinutes
		}
		sum.TotalBreakMinutes += r.TotalBreakDurationMinutes

		wk := (day-1)/7 + 1
		w, ok := weeks[wk]
		if !ok {
			w = &WeekSummary{
				Week: wk,
				From: fmt.Sprintf("%s%02d", prefix, (wk-1)*7+1),
				To:   fmt.Sprintf("%s%02d", prefix, min(wk*7, daysIn(year, month))),
			}
			weeks[wk] = w
		}
		w.Days++
		if attended {
			w.Attended++
		}
		if late {
			w.Late++
		}
		if r.CheckedOut() {
			w.WorkingMinutes += r.NetWorkingMinutes
		}
	}

	sum.AttendanceRate = percent(sum.OnTime+sum.Late, sum.TotalRecords)
	if worked > 0 {
		sum.AverageWorkingMinutes = sum.TotalWorkingMinutes / worked
	}

	keys := make([]int, 0, len(weeks))
	for k := range weeks {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		sum.Weeks = append(sum.Weeks, *weeks[k])
	}
	return sum
}

// percent: 分母 0 は 0%
func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

func daysIn(year, month int) int {
	switch month {
	case 4, 6, 9, 11:
		return 30
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	}
	return 31
}

// FormatHoursMinutes: 510 -> "8h 30m"
func FormatHoursMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
