package attendance

import (
	"kintai-backend/internal/civiltime"
)

// Engine は 1 日分の Record に対する状態遷移と集計だけを持つ。
// 永続化もログ出力もしない。渡された値から新しい値を返す。
type Engine struct {
	shift       Shift
	startMinute int
}

// NewEngine: Shift は NewShift で検証し直す（リテラルで組んだ値も同じ扱い）
func NewEngine(shift Shift) (*Engine, error) {
	s, err := NewShift(shift.ScheduledStart, shift.GraceMinutes, shift.ShiftMinutes)
	if err != nil {
		return nil, err
	}
	m, err := civiltime.ParseClock(s.ScheduledStart)
	if err != nil {
		return nil, err
	}
	return &Engine{shift: s, startMinute: m}, nil
}

func MustNewEngine(shift Shift) *Engine {
	e, err := NewEngine(shift)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Shift() Shift { return e.shift }

// CheckIn: NotStarted -> Present / Late
func (e *Engine) CheckIn(rec Record, at civiltime.Time) (Record, error) {
	if at.IsZero() {
		return rec, ErrInvalidInstant
	}
	if rec.CheckedOut() {
		return rec, ErrAlreadyCheckedOut
	}
	if rec.CheckedIn() {
		return rec, ErrAlreadyCheckedIn
	}

	out := rec.clone()
	if out.Date == "" {
		out.Date = at.DateString()
	}
	t := at
	out.CheckIn = &t

	late := at.MinuteOfDay() - e.startMinute
	if late > e.shift.GraceMinutes {
		out.Status = StatusLate
		out.LateByMinutes = late
	} else {
		out.Status = StatusPresent
		out.LateByMinutes = 0
	}
	return out, nil
}

// CheckOut: 休憩中なら at で休憩を自動終了してから退勤する
func (e *Engine) CheckOut(rec Record, at civiltime.Time) (Record, error) {
	if at.IsZero() {
		return rec, ErrInvalidInstant
	}
	if rec.CheckedOut() {
		return rec, ErrAlreadyCheckedOut
	}
	if !rec.CheckedIn() {
		return rec, ErrNotCheckedIn
	}
	if at.Before(*rec.CheckIn) {
		return rec, inputErr(CodeInvalidInstant, "check-out precedes check-in")
	}

	out := rec.clone()
	for i := range out.Breaks {
		if !out.Breaks[i].Open() {
			continue
		}
		if at.Before(out.Breaks[i].Start) {
			return rec, ErrInvalidBreakWindow
		}
		closeBreak(&out.Breaks[i], at)
	}
	recomputeBreakTotals(&out)

	t := at
	out.CheckOut = &t
	out.Status = StatusCheckedOut

	span := civiltime.MinutesBetween(*out.CheckIn, at)
	out.NetWorkingMinutes = max(0, span-out.TotalBreakDurationMinutes)
	out.OvertimeMinutes = max(0, out.NetWorkingMinutes-e.shift.ShiftMinutes)
	return out, nil
}

// StartBreak: 出勤中かつ休憩中でないときだけ
func (e *Engine) StartBreak(rec Record, kind BreakKind, id string, at civiltime.Time) (Record, error) {
	if at.IsZero() {
		return rec, ErrInvalidInstant
	}
	kind, err := ParseBreakKind(string(kind))
	if err != nil {
		return rec, ErrInvalid(err.Error())
	}
	if !rec.SessionOpen() {
		return rec, ErrNoActiveSession
	}
	if _, open := rec.OpenBreak(); open {
		return rec, ErrBreakAlreadyOpen
	}
	if at.Before(*rec.CheckIn) {
		return rec, inputErr(CodeInvalidBreakWindow, "break cannot start before check-in")
	}
	if n := len(rec.Breaks); n > 0 {
		if last := rec.Breaks[n-1]; last.End != nil && at.Before(*last.End) {
			return rec, inputErr(CodeInvalidBreakWindow, "break overlaps the previous one")
		}
	}

	out := rec.clone()
	out.Breaks = append(out.Breaks, BreakInterval{ID: id, Kind: kind, Start: at})
	return out, nil
}

// EndBreak: 負の長さは丸めずにエラー
func (e *Engine) EndBreak(rec Record, breakID string, at civiltime.Time) (Record, error) {
	if at.IsZero() {
		return rec, ErrInvalidInstant
	}
	idx := -1
	for i, b := range rec.Breaks {
		if b.ID == breakID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return rec, ErrBreakNotFound
	}
	if !rec.Breaks[idx].Open() {
		return rec, ErrBreakAlreadyClosed
	}
	if at.Before(rec.Breaks[idx].Start) {
		return rec, ErrInvalidBreakWindow
	}

	out := rec.clone()
	closeBreak(&out.Breaks[idx], at)
	recomputeBreakTotals(&out)
	return out, nil
}

// ElapsedWorkingTime は休憩を除いた経過勤務分。
// 未退勤なら nowIfOpen を仮の終了時刻とする。終了が出勤より前に見える場合は日跨ぎとして 24h 足す。
func (e *Engine) ElapsedWorkingTime(rec Record, nowIfOpen civiltime.Time) int {
	if !rec.CheckedIn() {
		return 0
	}
	end := nowIfOpen
	if rec.CheckedOut() {
		end = *rec.CheckOut
	}
	span := sessionMinutes(*rec.CheckIn, end)

	breaks := 0
	for _, b := range rec.Breaks {
		if b.Open() {
			breaks += sessionMinutes(b.Start, end)
			continue
		}
		breaks += b.DurationMinutes
	}
	return max(0, span-breaks)
}

func sessionMinutes(start, end civiltime.Time) int {
	if end.Before(start) {
		return civiltime.WrappedMinutes(start, end)
	}
	return civiltime.MinutesBetween(start, end)
}

func closeBreak(b *BreakInterval, at civiltime.Time) {
	t := at
	b.End = &t
	b.DurationMinutes = civiltime.MinutesBetween(b.Start, at)
}

func recomputeBreakTotals(r *Record) {
	taken, total := 0, 0
	for _, b := range r.Breaks {
		if b.Open() {
			continue
		}
		taken++
		total += b.DurationMinutes
	}
	r.TotalBreaksTaken = taken
	r.TotalBreakDurationMinutes = total
}
