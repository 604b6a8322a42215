package protocol

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Accepted timestamp layouts.
const (
	// DateTimeLayout is the precise instant form, also the wire output form.
	DateTimeLayout = "2006-01-02 15:04:05"

	// DateLayout is the date-only form. A date-only value widens to the start
	// or the end of the day depending on which interval endpoint it names.
	DateLayout = "2006-01-02"
)

// Sentinel decode errors for timestamp fields.
var (
	// ErrStampEmpty is returned when a timestamp field is present but empty.
	ErrStampEmpty = errors.New("timestamp field cannot be empty")

	// ErrStampFormat is returned when a timestamp matches neither accepted layout.
	ErrStampFormat = errors.New("invalid timestamp: want YYYY-MM-DD HH:MM:SS or YYYY-MM-DD")

	// ErrDateFormat is returned when a date-only field is not YYYY-MM-DD.
	ErrDateFormat = errors.New("invalid date: want YYYY-MM-DD")
)

type (
	// Stamp is a permissive timestamp: it accepts "YYYY-MM-DD HH:MM:SS" and
	// "YYYY-MM-DD", remembering which form arrived so interval endpoints can
	// be widened at dispatch time.
	Stamp struct {
		t        time.Time
		dateOnly bool
		valid    bool
	}

	// Date accepts only the "YYYY-MM-DD" form (day_plan).
	Date struct {
		t     time.Time
		valid bool
	}
)

// NewStamp builds a set datetime Stamp, mainly for tests.
func NewStamp(t time.Time) Stamp {
	return Stamp{t: t, valid: true}
}

// UnmarshalJSON accepts both layouts.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrStampFormat, data)
	}

	if raw == "" {
		return ErrStampEmpty
	}

	if t, err := time.Parse(DateTimeLayout, raw); err == nil {
		s.t = t
		s.dateOnly = false
		s.valid = true

		return nil
	}

	if t, err := time.Parse(DateLayout, raw); err == nil {
		s.t = t
		s.dateOnly = true
		s.valid = true

		return nil
	}

	return fmt.Errorf("%w: %q", ErrStampFormat, raw)
}

// Lower returns the instant, widening a date-only value to 00:00:00.
// Use for start-of-interval endpoints and talk start timestamps.
func (s Stamp) Lower() time.Time {
	return s.t
}

// Upper returns the instant, widening a date-only value to 23:59:59.
// Use for end-of-interval endpoints.
func (s Stamp) Upper() time.Time {
	if s.dateOnly {
		return s.t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}

	return s.t
}

// DateOnly reports whether the value arrived in the date-only form.
func (s Stamp) DateOnly() bool {
	return s.dateOnly
}

// IsSet reports whether the field was present in the request.
func (s Stamp) IsSet() bool {
	return s.valid
}

// UnmarshalJSON accepts only the date layout.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrDateFormat, data)
	}

	if raw == "" {
		return ErrStampEmpty
	}

	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrDateFormat, raw)
	}

	d.t = t
	d.valid = true

	return nil
}

// Time returns the midnight instant of the decoded day.
func (d Date) Time() time.Time {
	return d.t
}

// IsSet reports whether the field was present in the request.
func (d Date) IsSet() bool {
	return d.valid
}
