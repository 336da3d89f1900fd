package attendance

import (
	"fmt"
	"strings"

	"kintai-backend/internal/civiltime"
)

// ===== 勤怠ステータス =====

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPresent    Status = "present"
	StatusLate       Status = "late"
	StatusCheckedOut Status = "checked_out"
	StatusAbsent     Status = "absent"
	StatusLeave      Status = "leave"
)

var allStatuses = []Status{
	StatusNotStarted, StatusPresent, StatusLate, StatusCheckedOut, StatusAbsent, StatusLeave,
}

func ParseStatus(s string) (Status, error) {
	v := Status(strings.TrimSpace(strings.ToLower(s)))
	for _, st := range allStatuses {
		if st == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Label は画面表示用
func (s Status) Label() string {
	switch s {
	case StatusNotStarted:
		return "Not Started"
	case StatusPresent:
		return "On Time"
	case StatusLate:
		return "Late"
	case StatusCheckedOut:
		return "Checked Out"
	case StatusAbsent:
		return "Absent"
	case StatusLeave:
		return "Leave"
	}
	return string(s)
}

// ===== 休憩種別 =====

type BreakKind string

const (
	BreakMeal     BreakKind = "meal"
	BreakPrayer   BreakKind = "prayer"
	BreakSmoke    BreakKind = "smoke"
	BreakWashroom BreakKind = "washroom"
	BreakOther    BreakKind = "other"
)

var allBreakKinds = []BreakKind{BreakMeal, BreakPrayer, BreakSmoke, BreakWashroom, BreakOther}

func ParseBreakKind(s string) (BreakKind, error) {
	v := BreakKind(strings.TrimSpace(strings.ToLower(s)))
	for _, k := range allBreakKinds {
		if k == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown break kind %q", s)
}

// ===== 休憩区間 =====

type BreakInterval struct {
	ID              string
	Kind            BreakKind
	Start           civiltime.Time
	End             *civiltime.Time // nil = 休憩中
	DurationMinutes int
}

func (b BreakInterval) Open() bool { return b.End == nil }

// ===== 日次勤怠レコード =====
// (EmployeeID, Date) で一意。Version は楽観ロック用。

type Record struct {
	EmployeeID string
	Date       string // YYYY-MM-DD
	CheckIn    *civiltime.Time
	CheckOut   *civiltime.Time
	Breaks     []BreakInterval
	Status     Status

	LateByMinutes             int
	NetWorkingMinutes         int
	OvertimeMinutes           int
	TotalBreaksTaken          int
	TotalBreakDurationMinutes int

	Version int64
}

func NewRecord(employeeID, date string) Record {
	return Record{EmployeeID: employeeID, Date: date, Status: StatusNotStarted}
}

func (r Record) CheckedIn() bool  { return r.CheckIn != nil }
func (r Record) CheckedOut() bool { return r.CheckOut != nil }

// SessionOpen: 出勤済みかつ未退勤
func (r Record) SessionOpen() bool { return r.CheckIn != nil && r.CheckOut == nil }

func (r Record) OpenBreak() (BreakInterval, bool) {
	for _, b := range r.Breaks {
		if b.Open() {
			return b, true
		}
	}
	return BreakInterval{}, false
}

// clone はスライスとポインタを複製する（遷移失敗時に元の値を汚さないため）
func (r Record) clone() Record {
	out := r
	if r.CheckIn != nil {
		v := *r.CheckIn
		out.CheckIn = &v
	}
	if r.CheckOut != nil {
		v := *r.CheckOut
		out.CheckOut = &v
	}
	if r.Breaks != nil {
		out.Breaks = make([]BreakInterval, len(r.Breaks))
		for i, b := range r.Breaks {
			if b.End != nil {
				e := *b.End
				b.End = &e
			}
			out.Breaks[i] = b
		}
	}
	return out
}

// ===== 勤務シフト設定 =====

const (
	DefaultScheduledStart = "09:00"
	DefaultGraceMinutes   = 30
	DefaultShiftMinutes   = 540
)

type Shift struct {
	ScheduledStart string
	GraceMinutes   int
	ShiftMinutes   int
}

func DefaultShift() Shift {
	return Shift{
		ScheduledStart: DefaultScheduledStart,
		GraceMinutes:   DefaultGraceMinutes,
		ShiftMinutes:   DefaultShiftMinutes,
	}
}

// NewShift: 未設定(空文字 / 0)の項目は既定値で埋める
func NewShift(start string, grace, shiftMinutes int) (Shift, error) {
	if strings.TrimSpace(start) == "" {
		start = DefaultScheduledStart
	}
	if _, err := civiltime.ParseClock(start); err != nil {
		return Shift{}, err
	}
	if grace < 0 {
		return Shift{}, fmt.Errorf("grace minutes must be >= 0")
	}
	if shiftMinutes < 0 {
		return Shift{}, fmt.Errorf("shift minutes must be >= 0")
	}
	if shiftMinutes == 0 {
		shiftMinutes = DefaultShiftMinutes
	}
	return Shift{
		ScheduledStart: start,
		GraceMinutes:   grace,
		ShiftMinutes:   shiftMinutes,
	}, nil
}
