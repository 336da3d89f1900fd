package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/width"

	"kintai-backend/internal/civiltime"
)

// ===== インターフェース群 =====

type IDGen interface {
	New() (string, error)
}

type ulidGen struct {
	clock civiltime.Clock
}

func (g ulidGen) New() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(g.clock.Now().UTC()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Service本体 =====

type Service struct {
	store  RecordStore
	engine *Engine
	norm   *civiltime.Normalizer
	id     IDGen

	mu       sync.Mutex
	inflight map[recordKey]struct{}
}

type Option func(*Service)

func WithIDGen(g IDGen) Option { return func(s *Service) { s.id = g } }

func NewService(store RecordStore, norm *civiltime.Normalizer, shift Shift, opts ...Option) (*Service, error) {
	engine, err := NewEngine(shift)
	if err != nil {
		return nil, fmt.Errorf("invalid shift: %w", err)
	}
	s := &Service{
		store:    store,
		engine:   engine,
		norm:     norm,
		id:       ulidGen{clock: civiltime.SystemClock{}},
		inflight: map[recordKey]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Service) Engine() *Engine                  { return s.engine }
func (s *Service) Normalizer() *civiltime.Normalizer { return s.norm }

// StatusView は画面の「今日の勤怠」表示用
type StatusView struct {
	Record         Record
	OpenBreak      *BreakInterval
	ElapsedMinutes int
	Now            civiltime.Time
}

// 出勤。前日から続く勤務が開いたままなら新しい勤務は始めない。
func (s *Service) CheckIn(ctx context.Context, employeeID string, at civiltime.Time) (Record, error) {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return Record{}, err
	}
	at = s.orNow(at)
	date, err := s.sessionDate(ctx, emp, at, Record.SessionOpen)
	if err != nil {
		return Record{}, err
	}
	if date != at.DateString() {
		return Record{}, ErrAlreadyCheckedIn
	}
	return s.mutate(ctx, emp, at.DateString(), func(rec Record) (Record, error) {
		return s.engine.CheckIn(rec, at)
	})
}

// 退勤（前日から続く勤務も閉じる）
func (s *Service) CheckOut(ctx context.Context, employeeID string, at civiltime.Time) (Record, error) {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return Record{}, err
	}
	at = s.orNow(at)
	date, err := s.sessionDate(ctx, emp, at, Record.SessionOpen)
	if err != nil {
		return Record{}, err
	}
	return s.mutate(ctx, emp, date, func(rec Record) (Record, error) {
		return s.engine.CheckOut(rec, at)
	})
}

// 休憩開始。返り値の Breaks 末尾が新しい休憩。
func (s *Service) StartBreak(ctx context.Context, employeeID string, kind BreakKind, at civiltime.Time) (Record, error) {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return Record{}, err
	}
	kind, err = ParseBreakKind(string(kind))
	if err != nil {
		return Record{}, ErrInvalid(err.Error())
	}
	at = s.orNow(at)
	date, err := s.sessionDate(ctx, emp, at, Record.SessionOpen)
	if err != nil {
		return Record{}, err
	}
	id, err := s.id.New()
	if err != nil {
		return Record{}, ErrInternal("failed to generate break id", err)
	}
	return s.mutate(ctx, emp, date, func(rec Record) (Record, error) {
		return s.engine.StartBreak(rec, kind, id, at)
	})
}

// 休憩終了
func (s *Service) EndBreak(ctx context.Context, employeeID, breakID string, at civiltime.Time) (Record, error) {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return Record{}, err
	}
	breakID = strings.TrimSpace(breakID)
	if breakID == "" {
		return Record{}, ErrInvalid("break_id is required")
	}
	at = s.orNow(at)
	date, err := s.sessionDate(ctx, emp, at, func(r Record) bool { return hasBreak(r, breakID) })
	if err != nil {
		return Record{}, err
	}
	return s.mutate(ctx, emp, date, func(rec Record) (Record, error) {
		return s.engine.EndBreak(rec, breakID, at)
	})
}

// CurrentStatus: レコードが無ければ NotStarted として返す
func (s *Service) CurrentStatus(ctx context.Context, employeeID string) (StatusView, error) {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return StatusView{}, err
	}
	now := s.norm.Now()
	date, err := s.sessionDate(ctx, emp, now, Record.SessionOpen)
	if err != nil {
		return StatusView{}, err
	}
	rec, found, err := s.store.LoadRecord(ctx, emp, date)
	if err != nil {
		return StatusView{}, ErrInternal("failed to load attendance record", err)
	}
	if !found {
		rec = NewRecord(emp, date)
	}

	view := StatusView{Record: rec, Now: now, ElapsedMinutes: s.engine.ElapsedWorkingTime(rec, now)}
	if b, open := rec.OpenBreak(); open {
		view.OpenBreak = &b
	}
	return view, nil
}

func (s *Service) ElapsedWorkingTime(rec Record, nowIfOpen civiltime.Time) int {
	return s.engine.ElapsedWorkingTime(rec, nowIfOpen)
}

// 月次集計
func (s *Service) ClassifyMonth(ctx context.Context, employeeID string, year, month int) (MonthSummary, error) {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return MonthSummary{}, err
	}
	recs, err := s.monthRecords(ctx, emp, year, month)
	if err != nil {
		return MonthSummary{}, err
	}
	return s.engine.ClassifyMonth(recs, month, year), nil
}

// MarkDay: 欠勤 / 休暇の登録（管理者用）。出勤済みの日は変更不可。
func (s *Service) MarkDay(ctx context.Context, employeeID, date string, status Status) (Record, error) {
	emp, err := NormalizeEmployeeID(employeeID)
	if err != nil {
		return Record{}, err
	}
	if status != StatusAbsent && status != StatusLeave {
		return Record{}, ErrInvalid("status must be absent or leave")
	}
	date = strings.TrimSpace(date)
	if !civiltime.ValidDate(date) {
		return Record{}, ErrInvalid("date must be YYYY-MM-DD")
	}
	return s.mutate(ctx, emp, date, func(rec Record) (Record, error) {
		if rec.CheckedOut() {
			return rec, ErrAlreadyCheckedOut
		}
		if rec.CheckedIn() {
			return rec, ErrAlreadyCheckedIn
		}
		out := rec.clone()
		out.Status = status
		return out, nil
	})
}

// ===== 内部処理 =====

// mutate: 同一キーの更新は直列化し、楽観ロック競合は 1 回だけ再試行する
func (s *Service) mutate(ctx context.Context, emp, date string, fn func(Record) (Record, error)) (Record, error) {
	release, err := s.acquire(recordKey{emp, date})
	if err != nil {
		return Record{}, err
	}
	defer release()

	for attempt := 0; attempt < 2; attempt++ {
		rec, found, err := s.store.LoadRecord(ctx, emp, date)
		if err != nil {
			return Record{}, ErrInternal("failed to load attendance record", err)
		}
		if !found {
			rec = NewRecord(emp, date)
		}

		next, err := fn(rec)
		if err != nil {
			return Record{}, err
		}

		saved, err := s.store.SaveRecord(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrStoreConflict) {
			return Record{}, ErrInternal("failed to save attendance record", err)
		}
	}
	return Record{}, ErrConcurrentModification
}

func (s *Service) acquire(key recordKey) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, ErrMutationInProgress
	}
	s.inflight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, nil
}

// sessionDate: 当日のレコードが条件を満たさず、前日分が満たすなら前日を返す（日跨ぎ勤務）
func (s *Service) sessionDate(ctx context.Context, emp string, at civiltime.Time, match func(Record) bool) (string, error) {
	today := at.DateString()
	rec, found, err := s.store.LoadRecord(ctx, emp, today)
	if err != nil {
		return "", ErrInternal("failed to load attendance record", err)
	}
	if found && (match(rec) || rec.CheckedIn()) {
		// 当日に出勤済みなら前日分は見ない
		return today, nil
	}

	prev, err := s.norm.PreviousDate(today)
	if err != nil {
		return "", ErrInvalidInstant
	}
	prevRec, found, err := s.store.LoadRecord(ctx, emp, prev)
	if err != nil {
		return "", ErrInternal("failed to load attendance record", err)
	}
	if found && match(prevRec) {
		return prev, nil
	}
	return today, nil
}

func (s *Service) monthRecords(ctx context.Context, emp string, year, month int) ([]Record, error) {
	if month < 1 || month > 12 {
		return nil, ErrInvalid("month must be 1..12")
	}
	if year < 1970 || year > 9999 {
		return nil, ErrInvalid("year out of range")
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	from := first.Format(civiltime.DateLayout)
	to := first.AddDate(0, 1, -1).Format(civiltime.DateLayout)

	recs, err := s.store.ListRecords(ctx, emp, from, to)
	if err != nil {
		return nil, ErrInternal("failed to list attendance records", err)
	}
	return recs, nil
}

func (s *Service) orNow(at civiltime.Time) civiltime.Time {
	if at.IsZero() {
		return s.norm.Now()
	}
	return at
}

func hasBreak(r Record, id string) bool {
	for _, b := range r.Breaks {
		if b.ID == id {
			return true
		}
	}
	return false
}

// NormalizeEmployeeID: 前後空白除去 + 全角英数を半角に
func NormalizeEmployeeID(s string) (string, error) {
	v := width.Narrow.String(strings.TrimSpace(s))
	if v == "" {
		return "", ErrInvalid("employee_id is required")
	}
	if len(v) > 64 {
		return "", ErrInvalid(fmt.Sprintf("employee_id too long (%d > 64)", len(v)))
	}
	return v, nil
}
