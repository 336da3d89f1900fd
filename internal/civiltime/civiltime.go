// Package civiltime は勤怠で使う「固定オフセットの暦時刻」を扱う。
// 実行環境のローカルタイムゾーンには依存しない。
package civiltime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout     = "2006-01-02"
	ClockLayout    = "15:04:05"
	DefaultOffset  = "+05:00"
	minutesPerDay  = 24 * 60
	secondsPerDay  = minutesPerDay * 60
	offsetZoneName = "CIVIL"
)

var ErrInvalidInstant = errors.New("invalid instant")

var defaultLoc, _ = ParseOffset(DefaultOffset)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Time は固定オフセットで表した瞬間。Before / Equal は絶対時刻で比べる。
type Time struct {
	t time.Time
}

func (c Time) Instant() time.Time { return c.t }
func (c Time) IsZero() bool       { return c.t.IsZero() }
func (c Time) DateString() string { return c.t.Format(DateLayout) }
func (c Time) TimeString() string { return c.t.Format(ClockLayout) }
func (c Time) String() string     { return c.t.Format(time.RFC3339) }

func (c Time) SecondOfDay() int {
	h, m, s := c.t.Clock()
	return h*3600 + m*60 + s
}

func (c Time) MinuteOfDay() int { return c.SecondOfDay() / 60 }

func (c Time) Before(o Time) bool { return c.t.Before(o.t) }
func (c Time) Equal(o Time) bool  { return c.t.Equal(o.t) }

// MarshalText は RFC3339（オフセット付き）で出力する
func (c Time) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText は既定オフセット(+05:00)へ揃える
func (c *Time) UnmarshalText(b []byte) error {
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return ErrInvalidInstant
	}
	c.t = t.In(defaultLoc)
	return nil
}

// Normalizer: 絶対時刻 <-> 暦時刻の変換
type Normalizer struct {
	loc   *time.Location
	clock Clock
}

func New(offset string, clock Clock) (*Normalizer, error) {
	loc, err := ParseOffset(offset)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Normalizer{loc: loc, clock: clock}, nil
}

func MustNew(offset string, clock Clock) *Normalizer {
	n, err := New(offset, clock)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Normalizer) Now() Time {
	return Time{t: n.clock.Now().In(n.loc)}
}

func (n *Normalizer) ToCivil(t time.Time) (Time, error) {
	if t.IsZero() {
		return Time{}, ErrInvalidInstant
	}
	// monotonic 成分を落として比較を安定させる
	return Time{t: t.Round(0).In(n.loc)}, nil
}

// Parse: RFC3339 文字列を暦時刻へ
func (n *Normalizer) Parse(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Time{}, ErrInvalidInstant
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, s)
	}
	return n.ToCivil(t)
}

// ParseLocal: "YYYY-MM-DD" と "HH:MM" / "HH:MM:SS" を固定オフセットで解釈
func (n *Normalizer) ParseLocal(date, clock string) (Time, error) {
	layout := DateLayout + " " + ClockLayout
	if len(strings.TrimSpace(clock)) == len("15:04") {
		layout = DateLayout + " 15:04"
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(date)+" "+strings.TrimSpace(clock), n.loc)
	if err != nil {
		return Time{}, fmt.Errorf("%w: %s %s", ErrInvalidInstant, date, clock)
	}
	return Time{t: t}, nil
}

// Yesterday は 24 時間前ではなく暦で 1 日前
func (n *Normalizer) Yesterday() Time {
	now := n.Now()
	return Time{t: now.t.AddDate(0, 0, -1)}
}

func (n *Normalizer) PreviousDate(date string) (string, error) {
	d, err := time.ParseInLocation(DateLayout, date, n.loc)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidInstant, date)
	}
	return d.AddDate(0, 0, -1).Format(DateLayout), nil
}

// ParseOffset: "+05:00" / "-03:30" / "UTC" を固定ゾーンへ
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultOffset
	}
	if strings.EqualFold(s, "UTC") || s == "Z" {
		return time.FixedZone(offsetZoneName, 0), nil
	}
	t, err := time.Parse("-07:00", s)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone offset %q: must be ±HH:MM", s)
	}
	_, off := t.Zone()
	return time.FixedZone(offsetZoneName, off), nil
}

// MinutesBetween は floor 分。b が a より前なら負を返す。
func MinutesBetween(a, b Time) int {
	d := b.t.Sub(a.t)
	m := int(d / time.Minute)
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return m
}

// WrappedMinutes は時刻部分だけで差を取り、負なら翌日扱いで 24h を足す
func WrappedMinutes(a, b Time) int {
	diff := b.SecondOfDay() - a.SecondOfDay()
	if diff < 0 {
		diff += secondsPerDay
	}
	return diff / 60
}

// ParseClock: "HH:MM" -> 0 時からの分
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: must be HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
