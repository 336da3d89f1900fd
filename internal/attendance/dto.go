package attendance

import "kintai-backend/internal/civiltime"

// 打刻系リクエスト。at 省略時はサーバ時刻。
type PunchRequest struct {
	At *string `json:"at,omitempty"` // RFC3339
}

type StartBreakRequest struct {
	Kind string  `json:"kind" binding:"required"`
	At   *string `json:"at,omitempty"`
}

type MarkDayRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Date       string `json:"date" binding:"required"` // YYYY-MM-DD
	Status     string `json:"status" binding:"required"`
}

type BreakResponse struct {
	BreakID         string  `json:"break_id"`
	Kind            string  `json:"kind"`
	StartedAt       string  `json:"started_at"`
	EndedAt         *string `json:"ended_at,omitempty"`
	DurationMinutes int     `json:"duration_minutes"`
	Open            bool    `json:"open"`
}

type RecordResponse struct {
	EmployeeID                string          `json:"employee_id"`
	Date                      string          `json:"date"` // YYYY-MM-DD
	Status                    Status          `json:"status"`
	StatusLabel               string          `json:"status_label"`
	CheckIn                   *string         `json:"check_in,omitempty"`  // HH:MM:SS
	CheckOut                  *string         `json:"check_out,omitempty"` // HH:MM:SS
	CheckInAt                 *civiltime.Time `json:"check_in_at,omitempty"`
	CheckOutAt                *civiltime.Time `json:"check_out_at,omitempty"`
	LateByMinutes             int             `json:"late_by_minutes"`
	NetWorkingMinutes         int             `json:"net_working_minutes"`
	NetWorking                string          `json:"net_working"`
	OvertimeMinutes           int             `json:"overtime_minutes"`
	TotalBreaksTaken          int             `json:"total_breaks_taken"`
	TotalBreakDurationMinutes int             `json:"total_break_duration_minutes"`
	Breaks                    []BreakResponse `json:"breaks"`
}

type StatusResponse struct {
	Record         RecordResponse `json:"record"`
	OnBreak        bool           `json:"on_break"`
	OpenBreak      *BreakResponse `json:"open_break,omitempty"`
	ElapsedMinutes int            `json:"elapsed_minutes"`
	Elapsed        string         `json:"elapsed"`
	Now            string         `json:"now"`
}

func (r Record) toDTO() RecordResponse {
	out := RecordResponse{
		EmployeeID:                r.EmployeeID,
		Date:                      r.Date,
		Status:                    r.Status,
		StatusLabel:               r.Status.Label(),
		CheckInAt:                 r.CheckIn,
		CheckOutAt:                r.CheckOut,
		LateByMinutes:             r.LateByMinutes,
		NetWorkingMinutes:         r.NetWorkingMinutes,
		NetWorking:                FormatHoursMinutes(r.NetWorkingMinutes),
		OvertimeMinutes:           r.OvertimeMinutes,
		TotalBreaksTaken:          r.TotalBreaksTaken,
		TotalBreakDurationMinutes: r.TotalBreakDurationMinutes,
		Breaks:                    make([]BreakResponse, 0, len(r.Breaks)),
	}
	if r.CheckIn != nil {
		v := r.CheckIn.TimeString()
		out.CheckIn = &v
	}
	if r.CheckOut != nil {
		v := r.CheckOut.TimeString()
		out.CheckOut = &v
	}
	for _, b := range r.Breaks {
		out.Breaks = append(out.Breaks, b.toDTO())
	}
	return out
}

func (b BreakInterval) toDTO() BreakResponse {
	out := BreakResponse{
		BreakID:         b.ID,
		Kind:            string(b.Kind),
		StartedAt:       b.Start.String(),
		DurationMinutes: b.DurationMinutes,
		Open:            b.Open(),
	}
	if b.End != nil {
		v := b.End.String()
		out.EndedAt = &v
	}
	return out
}

func (v StatusView) toDTO() StatusResponse {
	out := StatusResponse{
		Record:         v.Record.toDTO(),
		OnBreak:        v.OpenBreak != nil,
		ElapsedMinutes: v.ElapsedMinutes,
		Elapsed:        FormatHoursMinutes(v.ElapsedMinutes),
		Now:            v.Now.String(),
	}
	if v.OpenBreak != nil {
		b := v.OpenBreak.toDTO()
		out.OpenBreak = &b
	}
	return out
}
