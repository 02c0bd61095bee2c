package runshow

import (
	"fmt"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
)

// Status is the lifecycle state shared by timers and actions.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted:
		return true
	}
	return false
}

// ActionType is the closed set of media cue kinds.
type ActionType string

const (
	ActionVideo      ActionType = "VIDEO"
	ActionSound      ActionType = "SOUND"
	ActionImage      ActionType = "IMAGE"
	ActionGallery    ActionType = "GALLERY"
	ActionImageSound ActionType = "IMAGE_SOUND"
)

// MediaKind names the media a cue carries, as sent to viewers.
type MediaKind struct {
	Visual  bool `json:"visual"`
	Audio   bool `json:"audio"`
	Motion  bool `json:"motion"`
	Multi   bool `json:"multi"`
	Display bool `json:"display"`
}

// Valid reports whether t is one of the declared action types.
func (t ActionType) Valid() bool {
	_, err := t.MediaKind()
	return err == nil
}

// MediaKind is the single place that branches on ActionType.
func (t ActionType) MediaKind() (MediaKind, error) {
	switch t {
	case ActionVideo:
		return MediaKind{Visual: true, Audio: true, Motion: true}, nil
	case ActionSound:
		return MediaKind{Audio: true}, nil
	case ActionImage:
		return MediaKind{Visual: true, Display: true}, nil
	case ActionGallery:
		return MediaKind{Visual: true, Multi: true, Display: true}, nil
	case ActionImageSound:
		return MediaKind{Visual: true, Audio: true, Display: true}, nil
	}
	return MediaKind{}, fmt.Errorf("%w: unknown action type %q", ErrDomain, string(t))
}

// TimerKind classifies a timer by duration, schedule and manual flag.
type TimerKind int

const (
	KindDurational TimerKind = iota
	KindManual
	KindPunctual
)

func (k TimerKind) String() string {
	switch k {
	case KindDurational:
		return "durational"
	case KindManual:
		return "manual"
	case KindPunctual:
		return "punctual"
	}
	return "unknown"
}

// Event is a scoped container of timers.
type Event struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	CurrentTimerID string        `json:"currentTimerId,omitempty"`
	CompletedAt    naive.Instant `json:"completedAt"`
}

// Timer is one scheduling unit of an event's run-of-show.
type Timer struct {
	ID               string        `json:"id"`
	EventID          string        `json:"eventId"`
	Ordinal          int           `json:"ordinal"`
	Name             string        `json:"name"`
	DurationMinutes  int           `json:"durationMinutes"`
	ScheduledStartAt naive.Instant `json:"scheduledStartAt"`
	IsManual         bool          `json:"isManual"`
	StartedAt        naive.Instant `json:"startedAt"`
	CompletedAt      naive.Instant `json:"completedAt"`
	Status           Status        `json:"status"`
}

// Kind returns the timer's classification. A timer with a duration is
// durational whatever its manual flag says.
func (t *Timer) Kind() TimerKind {
	switch {
	case t.DurationMinutes > 0:
		return KindDurational
	case t.IsManual || t.ScheduledStartAt.IsZero():
		return KindManual
	default:
		return KindPunctual
	}
}

func (t *Timer) IsDurational() bool { return t.Kind() == KindDurational }

// Action is a media cue fired relative to its timer.
type Action struct {
	ID                   string        `json:"id"`
	TimerID              string        `json:"timerId"`
	Ordinal              int           `json:"ordinal"`
	Type                 ActionType    `json:"type"`
	TriggerOffsetMinutes int           `json:"triggerOffsetMinutes"`
	URLs                 []string      `json:"urls"`
	DisplayDurationSec   int           `json:"displayDurationSec,omitempty"`
	ExecutedAt           naive.Instant `json:"executedAt"`
	Status               Status        `json:"status"`
}

// Executed reports whether the action has been acknowledged.
func (a *Action) Executed() bool { return !a.ExecutedAt.IsZero() }

// EventPatch lists event fields to change. Nil fields are left alone.
type EventPatch struct {
	CurrentTimerID *string
	CompletedAt    *naive.Instant
}

// Apply writes the patch into e.
func (p EventPatch) Apply(e *Event) {
	if p.CurrentTimerID != nil {
		e.CurrentTimerID = *p.CurrentTimerID
	}
	if p.CompletedAt != nil {
		e.CompletedAt = *p.CompletedAt
	}
}

// TimerPatch lists timer fields to change. A pointer to a zero instant
// clears the column.
type TimerPatch struct {
	Name             *string        `json:"name,omitempty"`
	DurationMinutes  *int           `json:"durationMinutes,omitempty"`
	ScheduledStartAt *naive.Instant `json:"scheduledStartAt,omitempty"`
	IsManual         *bool          `json:"isManual,omitempty"`
	StartedAt        *naive.Instant `json:"-"`
	CompletedAt      *naive.Instant `json:"-"`
	Status           *Status        `json:"-"`
}

// Apply writes the patch into t.
func (p TimerPatch) Apply(t *Timer) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.DurationMinutes != nil {
		t.DurationMinutes = *p.DurationMinutes
	}
	if p.ScheduledStartAt != nil {
		t.ScheduledStartAt = *p.ScheduledStartAt
	}
	if p.IsManual != nil {
		t.IsManual = *p.IsManual
	}
	if p.StartedAt != nil {
		t.StartedAt = *p.StartedAt
	}
	if p.CompletedAt != nil {
		t.CompletedAt = *p.CompletedAt
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

// ActionPatch lists action fields to change.
type ActionPatch struct {
	Type                 *ActionType
	TriggerOffsetMinutes *int
	URLs                 []string
	DisplayDurationSec   *int
	ExecutedAt           *naive.Instant
	Status               *Status
}

// Apply writes the patch into a. A nil URLs slice leaves the locators alone.
func (p ActionPatch) Apply(a *Action) {
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.TriggerOffsetMinutes != nil {
		a.TriggerOffsetMinutes = *p.TriggerOffsetMinutes
	}
	if p.URLs != nil {
		a.URLs = append([]string(nil), p.URLs...)
	}
	if p.DisplayDurationSec != nil {
		a.DisplayDurationSec = *p.DisplayDurationSec
	}
	if p.ExecutedAt != nil {
		a.ExecutedAt = *p.ExecutedAt
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
}

func ptr[T any](v T) *T { return &v }
