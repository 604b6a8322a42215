// Package conference provides the domain model for the conference planning
// service: persons, events, talks with a three-state lifecycle, registrations,
// attendance, ratings and friendship intents, plus the Store contract the
// storage backends implement.
package conference

import (
	"errors"
	"fmt"
	"time"
)

type (
	// TalkStatus represents the talk lifecycle state.
	// Transitions: Proposed -> Accepted (organizer talk upsert) or
	// Proposed -> Rejected (organizer reject). Accepted and Rejected are terminal.
	TalkStatus string

	// Role constrains who an authorization probe may resolve.
	Role int

	// Credentials carry a caller's login and plaintext password.
	// Passwords are compared verbatim against the stored value; the dataset is
	// shared with other implementations of the same protocol, so no hashing is
	// applied on either side.
	Credentials struct {
		Login    string
		Password string
	}

	// Person is a registered participant or organizer.
	Person struct {
		ID          int64
		Login       string
		Password    string
		IsOrganizer bool
	}

	// Event is a named time interval to which accepted talks may be attributed.
	Event struct {
		ID        int64
		Name      string
		StartTime time.Time
		EndTime   time.Time
	}

	// Talk is a scheduled or proposed presentation, identified globally by its
	// external tag. Accepted talks carry a room; proposals have neither room
	// nor event. EventID is set only when the talk's start lies inside the
	// event's interval.
	Talk struct {
		ID         int64
		Tag        string
		SpeakerID  int64
		Status     TalkStatus
		Title      string
		StartTime  time.Time
		Room       string
		EventID    *int64
		ModifiedAt time.Time
	}

	// TalkSubmission carries the organizer's register-or-accept-talk command.
	// An empty EventName means the talk belongs to no event.
	TalkSubmission struct {
		Caller            Credentials
		SpeakerLogin      string
		Tag               string
		Title             string
		StartTime         time.Time
		Room              string
		InitialEvaluation int
		EventName         string
	}
)

const (
	// StatusProposed is the initial state of a spontaneous talk proposal.
	StatusProposed TalkStatus = "Proposed"

	// StatusAccepted is the terminal state of a registered or accepted talk.
	StatusAccepted TalkStatus = "Accepted"

	// StatusRejected is the terminal state of a rejected proposal.
	StatusRejected TalkStatus = "Rejected"
)

const (
	// RoleAny matches any person regardless of organizer privileges.
	RoleAny Role = iota

	// RoleUser matches only non-organizer participants.
	RoleUser

	// RoleOrganizer matches only organizers.
	RoleOrganizer
)

// Rating bounds for evaluations and initial evaluations.
const (
	MinRating = 0
	MaxRating = 10
)

// Sentinel domain errors. Everything collapses to {"status":"ERROR"} on the
// wire; the distinctions exist for logging and tests.
var (
	// ErrUnauthorized is returned when a login cannot be resolved under the
	// required role and password constraints. Unknown login, wrong password and
	// wrong role are deliberately indistinguishable.
	ErrUnauthorized = errors.New("person not authorized")

	// ErrDuplicate is returned when a uniqueness constraint is violated
	// (login, eventname, talk tag, registration, attendance, friend intent).
	ErrDuplicate = errors.New("duplicate entry")

	// ErrEventNotFound is returned when a non-empty eventname matches no event.
	ErrEventNotFound = errors.New("event not found")

	// ErrOutsideEvent is returned when a talk's start does not lie within the
	// named event's interval.
	ErrOutsideEvent = errors.New("talk start outside event interval")

	// ErrTalkNotAccepted is returned when attendance or a rating targets a talk
	// that does not exist in Accepted state.
	ErrTalkNotAccepted = errors.New("talk does not exist or is not accepted")

	// ErrTalkNotProposed is returned when reject targets a talk that is not in
	// Proposed state, including a talk that does not exist.
	ErrTalkNotProposed = errors.New("talk does not exist or is not proposed")

	// ErrRatingRange is returned for a rating outside [0, 10] before the store
	// is touched.
	ErrRatingRange = errors.New("rating must be in range 0-10")

	// ErrNegativeLimit is returned for a negative result limit.
	ErrNegativeLimit = errors.New("limit must not be negative")
)

// String returns the role name used in log output.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleOrganizer:
		return "organizer"
	default:
		return "any"
	}
}

// IsValid checks if the TalkStatus is one of the three lifecycle states.
func (s TalkStatus) IsValid() bool {
	switch s {
	case StatusProposed, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// String returns the status name as stored in the talk_status enum.
func (s TalkStatus) String() string {
	return string(s)
}

// ValidateRating checks the [0, 10] rating bound shared by evaluation and the
// organizer's initial evaluation.
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("%w: got %d", ErrRatingRange, rating)
	}

	return nil
}

// ValidateLimit rejects negative limits. Zero means "all rows".
func ValidateLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeLimit, limit)
	}

	return nil
}
