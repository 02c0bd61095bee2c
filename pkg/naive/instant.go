// Package naive implements timezone-agnostic instants.
//
// An Instant stores a local wall-clock reading as if it were a UTC time:
// "17:05" in the venue is stored as 17:05Z. Every viewer computes the same
// offset from now as long as "now" goes through the same reinterpretation,
// which is what Clock does. Instants must never be compared against a
// zone-aware time.Time directly.
//
// The encoding assumes the server and all viewers share one intended local
// zone. Viewers in another zone will see countdowns shifted by the zone
// difference.
package naive

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrParse is returned when a textual instant is malformed.
var ErrParse = errors.New("malformed instant")

// Layout is the canonical textual form of an Instant. It carries no zone.
const Layout = "2006-01-02T15:04:05.000"

var parseLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Instant is a naive local wall-clock reading. The zero value means "unset".
type Instant struct {
	t time.Time
}

// Components is the broken-down form of an Instant.
type Components struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// Compose builds an Instant from wall-clock components.
func Compose(year, month, day, hour, minute, second int) Instant {
	return Instant{t: time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)}
}

// Decompose is the inverse of Compose.
func Decompose(i Instant) Components {
	return Components{
		Year:   i.t.Year(),
		Month:  int(i.t.Month()),
		Day:    i.t.Day(),
		Hour:   i.t.Hour(),
		Minute: i.t.Minute(),
		Second: i.t.Second(),
	}
}

// FromWall reinterprets the wall reading of t, in its own location, as naive.
func FromWall(t time.Time) Instant {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return Instant{t: time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)}
}

// Parse reads an Instant from its textual form. A trailing "Z" is accepted
// and ignored since stored instants are UTC-encoded wall readings.
func Parse(s string) (Instant, error) {
	v := strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return Instant{t: t}, nil
		}
	}
	return Instant{}, fmt.Errorf("%w: %q", ErrParse, s)
}

// MustParse is like Parse but panics on error. Intended for fixtures.
func MustParse(s string) Instant {
	i, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return i
}

// IsZero reports whether the instant is unset.
func (i Instant) IsZero() bool { return i.t.IsZero() }

// Add returns i shifted by d.
func (i Instant) Add(d time.Duration) Instant { return Instant{t: i.t.Add(d)} }

// AddMinutes returns i shifted by n minutes.
func (i Instant) AddMinutes(n int) Instant { return i.Add(time.Duration(n) * time.Minute) }

// Sub returns i - j.
func (i Instant) Sub(j Instant) time.Duration { return i.t.Sub(j.t) }

func (i Instant) Before(j Instant) bool { return i.t.Before(j.t) }
func (i Instant) After(j Instant) bool  { return i.t.After(j.t) }
func (i Instant) Equal(j Instant) bool  { return i.t.Equal(j.t) }

// String returns the canonical zone-less form, or "" for the zero instant.
func (i Instant) String() string {
	if i.IsZero() {
		return ""
	}
	return i.t.Format(Layout)
}

// MarshalJSON encodes the instant as its canonical string, or null.
func (i Instant) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(i.String())
}

// UnmarshalJSON accepts null, "" or any form Parse accepts.
func (i *Instant) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = Instant{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if s == "" {
		*i = Instant{}
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*i = v
	return nil
}
