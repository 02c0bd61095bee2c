package naive

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestComposeDecompose_RoundTrip(t *testing.T) {
	cases := []Components{
		{2025, 1, 1, 10, 0, 0},
		{2024, 2, 29, 23, 59, 59},
		{1999, 12, 31, 0, 0, 1},
		{2030, 6, 15, 12, 30, 45},
	}
	for _, c := range cases {
		got := Decompose(Compose(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second))
		if got != c {
			t.Errorf("Decompose(Compose(%+v)) = %+v", c, got)
		}
	}
}

func TestParse(t *testing.T) {
	want := Compose(2025, 1, 1, 10, 45, 0)
	for _, s := range []string{
		"2025-01-01T10:45:00",
		"2025-01-01T10:45:00Z",
		"2025-01-01T10:45:00.000",
		"2025-01-01 10:45:00",
		"2025-01-01T10:45",
	} {
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("Parse(%q) = %s; want %s", s, got, want)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, s := range []string{"", "yesterday", "2025-13-01T00:00:00", "10:45"} {
		if _, err := Parse(s); !errors.Is(err, ErrParse) {
			t.Errorf("Parse(%q) error = %v; want ErrParse", s, err)
		}
	}
}

func TestFromWall_IgnoresZone(t *testing.T) {
	loc := time.FixedZone("venue", 2*3600)
	wall := time.Date(2025, 1, 1, 17, 5, 0, 0, loc)
	if got := FromWall(wall); got.String() != "2025-01-01T17:05:00.000" {
		t.Fatalf("FromWall = %s; want 17:05 wall reading", got)
	}
}

func TestDiffAndIsPast(t *testing.T) {
	clock := NewFixedClock(Compose(2025, 1, 1, 10, 0, 0))

	future := Compose(2025, 1, 1, 10, 0, 30)
	if got := DiffMillis(clock, future); got != 30000 {
		t.Fatalf("DiffMillis = %d; want 30000", got)
	}
	if IsPast(clock, future) {
		t.Fatal("future instant reported as past")
	}

	past := Compose(2025, 1, 1, 9, 59, 59)
	if got := DiffMillis(clock, past); got != -1000 {
		t.Fatalf("DiffMillis = %d; want -1000", got)
	}
	if !IsPast(clock, past) {
		t.Fatal("past instant not reported as past")
	}

	if IsPast(clock, clock.Now()) {
		t.Fatal("now must not be past")
	}
}

func TestInstant_JSON(t *testing.T) {
	type wrapper struct {
		At Instant `json:"at"`
	}
	in := wrapper{At: Compose(2025, 1, 1, 10, 45, 0)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"at":"2025-01-01T10:45:00.000"}` {
		t.Fatalf("marshal = %s", data)
	}
	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if !out.At.Equal(in.At) {
		t.Fatalf("round trip = %s; want %s", out.At, in.At)
	}

	var empty wrapper
	if err := json.Unmarshal([]byte(`{"at":null}`), &empty); err != nil {
		t.Fatal(err)
	}
	if !empty.At.IsZero() {
		t.Fatal("null should decode to the zero instant")
	}
	data, _ = json.Marshal(empty)
	if string(data) != `{"at":null}` {
		t.Fatalf("zero marshal = %s", data)
	}
}

func TestFixedClock_Advance(t *testing.T) {
	c := NewFixedClock(Compose(2025, 1, 1, 10, 0, 0))
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(Compose(2025, 1, 1, 10, 1, 30)) {
		t.Fatalf("Now after advance = %s", got)
	}
}
