package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const dayLayout = "2006-01-02"

// DayKey is a calendar date with no time component. Two instants share a
// DayKey only when they fall on the same date in the zone used to derive it.
// Serializes as "YYYY-MM-DD" in JSON.
type DayKey struct {
	Year  int
	Month time.Month
	Day   int
}

// dayKeyOf converts an instant into the calendar day it falls on in loc.
// A nil loc means the process-local zone.
func dayKeyOf(t time.Time, loc *time.Location) DayKey {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return DayKey{Year: y, Month: m, Day: d}
}

// parseDayKey parses a "YYYY-MM-DD" string.
func parseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return DayKey{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", errInvalid, s)
	}
	return dayKeyOf(t, time.UTC), nil
}

// parseTimestamp parses an RFC 3339 instant. It never defaults to "now": a
// malformed value is an error so a meal cannot silently land on today.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %q, expected RFC 3339", errInvalid, s)
	}
	return t, nil
}

func (k DayKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

func (k DayKey) IsZero() bool { return k == DayKey{} }

// midnight returns the key as midnight UTC. Only used for calendar arithmetic,
// never to compare against real instants.
func (k DayKey) midnight() time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts the key by n calendar days. AddDate normalizes month and
// year boundaries.
func (k DayKey) AddDays(n int) DayKey {
	return dayKeyOf(k.midnight().AddDate(0, 0, n), time.UTC)
}

func (k DayKey) Weekday() time.Weekday { return k.midnight().Weekday() }

func (k DayKey) Before(o DayKey) bool { return k.midnight().Before(o.midnight()) }

func (k DayKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

func (k *DayKey) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	*k = dayKeyOf(t, time.UTC)
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns straight into a DayKey. NULL scans to the zero key.
func (k *DayKey) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		*k = DayKey{}
		return nil
	}
	*k = dayKeyOf(v.Time, time.UTC)
	return nil
}

/* ─── Clock ──────────────────────────────────────────────────────────── */

// Clock supplies the current instant. Everything that asks "what day is it"
// goes through a Clock so tests can move time forward deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// todayIn returns the current day key in loc according to clock.
func todayIn(clock Clock, loc *time.Location) DayKey {
	return dayKeyOf(clock.Now(), loc)
}

// loadLocation resolves an IANA zone name. Empty means the process-local zone.
func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", errInvalid, name)
	}
	return loc, nil
}
