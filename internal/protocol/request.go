// Package protocol implements the wire codec: one JSON object per line, with
// exactly one top-level key naming the operation. Numeric fields arrive as
// JSON numbers or decimal strings, timestamps in a date-time or date-only
// form. Responses are the four-status envelope produced by response.go.
package protocol

import (
	"crypto/subtle"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// AdminSecret must accompany every organizer-creation request.
const AdminSecret = "d8578edf8458ce06fbc5bb76a58c5ca4" // pragma: allowlist secret

// Sentinel decode errors.
var (
	// ErrMalformedRequest is returned when a line is not a JSON object with
	// exactly one top-level key.
	ErrMalformedRequest = errors.New("request must be a JSON object with exactly one key")

	// ErrUnknownRequest is returned for an unrecognized operation key.
	ErrUnknownRequest = errors.New("unknown request")

	// ErrMissingField is returned when a required field is absent or empty.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidSecret is returned when the organizer secret does not match.
	ErrInvalidSecret = errors.New("invalid secret")
)

// Request is one decoded operation. Concrete types are the 24 operation
// shapes; dispatch happens via type switch.
type Request interface {
	// validate checks required-field presence after JSON decoding.
	validate() error
}

type (
	// Open establishes the database session. Must be the first request.
	Open struct {
		Baza     string `json:"baza"`
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	// Organizer creates an organizer account; gated by the admin secret.
	Organizer struct {
		Secret      string `json:"secret"`
		NewLogin    string `json:"newlogin"`
		NewPassword string `json:"newpassword"`
	}

	// Event registers a named time interval.
	Event struct {
		Login     string `json:"login"`
		Password  string `json:"password"`
		EventName string `json:"eventname"`
		Start     Stamp  `json:"start_timestamp"`
		End       Stamp  `json:"end_timestamp"`
	}

	// User creates a non-organizer participant.
	User struct {
		Login       string `json:"login"`
		Password    string `json:"password"`
		NewLogin    string `json:"newlogin"`
		NewPassword string `json:"newpassword"`
	}

	// Talk registers a talk or accepts a proposal; always lands in Accepted
	// state, so a non-empty room is required (eventname stays optional).
	Talk struct {
		Login             string `json:"login"`
		Password          string `json:"password"`
		SpeakerLogin      string `json:"speakerlogin"`
		Talk              string `json:"talk"`
		Title             string `json:"title"`
		Start             Stamp  `json:"start_timestamp"`
		Room              string `json:"room"`
		InitialEvaluation Number `json:"initial_evaluation"`
		EventName         string `json:"eventname"`
	}

	// RegisterUserForEvent registers the calling user for an event.
	RegisterUserForEvent struct {
		Login     string `json:"login"`
		Password  string `json:"password"`
		EventName string `json:"eventname"`
	}

	// Attendance marks the calling user present at a talk.
	Attendance struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Talk     string `json:"talk"`
	}

	// Evaluation records the calling user's rating of a talk.
	Evaluation struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Talk     string `json:"talk"`
		Rating   Number `json:"rating"`
	}

	// Reject turns a proposal down.
	Reject struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Talk     string `json:"talk"`
	}

	// Proposal submits a spontaneous talk.
	Proposal struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Talk     string `json:"talk"`
		Title    string `json:"title"`
		Start    Stamp  `json:"start_timestamp"`
	}

	// Friends records a directed friendship intent login1 -> login2.
	Friends struct {
		Login1   string `json:"login1"`
		Password string `json:"password"`
		Login2   string `json:"login2"`
	}

	// UserPlan asks for a person's upcoming talks.
	UserPlan struct {
		Login string `json:"login"`
		Limit Number `json:"limit"`
	}

	// DayPlan asks for all talks on one day.
	DayPlan struct {
		Timestamp Date `json:"timestamp"`
	}

	// BestTalks asks for top-rated talks in a window.
	BestTalks struct {
		Start Stamp  `json:"start_timestamp"`
		End   Stamp  `json:"end_timestamp"`
		Limit Number `json:"limit"`
		All   Number `json:"all"`
	}

	// MostPopularTalks asks for the most attended talks in a window.
	MostPopularTalks struct {
		Start Stamp  `json:"start_timestamp"`
		End   Stamp  `json:"end_timestamp"`
		Limit Number `json:"limit"`
	}

	// AttendedTalks asks for the talks the caller attended.
	AttendedTalks struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	// AbandonedTalks asks for talks ranked by registered no-shows.
	AbandonedTalks struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Limit    Number `json:"limit"`
	}

	// RecentlyAddedTalks asks for the latest accepted talks.
	RecentlyAddedTalks struct {
		Limit Number `json:"limit"`
	}

	// RejectedTalks asks for rejected proposals (all for organizers, own for users).
	RejectedTalks struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	// Proposals asks for proposals awaiting a decision.
	Proposals struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	// FriendsTalks asks for talks given by mutual friends in a window.
	FriendsTalks struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Start    Stamp  `json:"start_timestamp"`
		End      Stamp  `json:"end_timestamp"`
		Limit    Number `json:"limit"`
	}

	// FriendsEvents asks for mutual friends' event registrations.
	FriendsEvents struct {
		Login     string `json:"login"`
		Password  string `json:"password"`
		EventName string `json:"eventname"`
	}

	// RecommendedTalks is recognized but answered with NOT IMPLEMENTED.
	RecommendedTalks struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Start    Stamp  `json:"start_timestamp"`
		End      Stamp  `json:"end_timestamp"`
		Limit    Number `json:"limit"`
	}
)

// Decode parses one input line into its typed request. The secret of an
// organizer request is checked here, before anything touches the store.
func Decode(line []byte) (Request, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	if len(envelope) != 1 {
		return nil, fmt.Errorf("%w: got %d keys", ErrMalformedRequest, len(envelope))
	}

	var (
		name    string
		payload json.RawMessage
	)

	for k, v := range envelope {
		name, payload = k, v
	}

	req, err := newRequest(name)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, req); err != nil {
		return nil, fmt.Errorf("decoding %q request: %w", name, err)
	}

	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid %q request: %w", name, err)
	}

	return req, nil
}

// newRequest maps an operation key to an empty request of the right shape.
func newRequest(name string) (Request, error) {
	switch name {
	case "open":
		return &Open{}, nil
	case "organizer":
		return &Organizer{}, nil
	case "event":
		return &Event{}, nil
	case "user":
		return &User{}, nil
	case "talk":
		return &Talk{}, nil
	case "register_user_for_event":
		return &RegisterUserForEvent{}, nil
	case "attendance":
		return &Attendance{}, nil
	case "evaluation":
		return &Evaluation{}, nil
	case "reject":
		return &Reject{}, nil
	case "proposal":
		return &Proposal{}, nil
	case "friends":
		return &Friends{}, nil
	case "user_plan":
		return &UserPlan{}, nil
	case "day_plan":
		return &DayPlan{}, nil
	case "best_talks":
		return &BestTalks{}, nil
	case "most_popular_talks":
		return &MostPopularTalks{}, nil
	case "attended_talks":
		return &AttendedTalks{}, nil
	case "abandoned_talks":
		return &AbandonedTalks{}, nil
	case "recently_added_talks":
		return &RecentlyAddedTalks{}, nil
	case "rejected_talks":
		return &RejectedTalks{}, nil
	case "proposals":
		return &Proposals{}, nil
	case "friends_talks":
		return &FriendsTalks{}, nil
	case "friends_events":
		return &FriendsEvents{}, nil
	case "recommended_talks":
		return &RecommendedTalks{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, name)
	}
}

// field pairs a field name with its decoded value for presence checks.
type field struct {
	name  string
	empty bool
}

// requireFields returns ErrMissingField for the first absent field.
func requireFields(fields ...field) error {
	for _, f := range fields {
		if f.empty {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	return nil
}

func str(name, value string) field { return field{name: name, empty: value == ""} }

func num(name string, n Number) field { return field{name: name, empty: !n.IsSet()} }

func stamp(name string, s Stamp) field { return field{name: name, empty: !s.IsSet()} }

func (r *Open) validate() error {
	return requireFields(str("baza", r.Baza), str("login", r.Login), str("password", r.Password))
}

func (r *Organizer) validate() error {
	if err := requireFields(str("secret", r.Secret), str("newlogin", r.NewLogin), str("newpassword", r.NewPassword)); err != nil {
		return err
	}

	// Constant-time comparison; mismatch fails the decode before any state is touched.
	if subtle.ConstantTimeCompare([]byte(r.Secret), []byte(AdminSecret)) != 1 {
		return ErrInvalidSecret
	}

	return nil
}

func (r *Event) validate() error {
	return requireFields(
		str("login", r.Login),
		str("password", r.Password),
		str("eventname", r.EventName),
		stamp("start_timestamp", r.Start),
		stamp("end_timestamp", r.End),
	)
}

func (r *User) validate() error {
	return requireFields(
		str("login", r.Login),
		str("password", r.Password),
		str("newlogin", r.NewLogin),
		str("newpassword", r.NewPassword),
	)
}

// validate leaves eventname unchecked: an empty or absent eventname means the
// talk belongs to no event.
func (r *Talk) validate() error {
	return requireFields(
		str("login", r.Login),
		str("password", r.Password),
		str("speakerlogin", r.SpeakerLogin),
		str("talk", r.Talk),
		str("title", r.Title),
		stamp("start_timestamp", r.Start),
		str("room", r.Room),
		num("initial_evaluation", r.InitialEvaluation),
	)
}

func (r *RegisterUserForEvent) validate() error {
	return requireFields(str("login", r.Login), str("password", r.Password), str("eventname", r.EventName))
}

func (r *Attendance) validate() error {
	return requireFields(str("login", r.Login), str("password", r.Password), str("talk", r.Talk))
}

func (r *Evaluation) validate() error {
	return requireFields(
		str("login", r.Login),
		str("password", r.Password),
		str("talk", r.Talk),
		num("rating", r.Rating),
	)
}

func (r *Reject) validate() error {
	return requireFields(str("login", r.Login), str("password", r.Password), str("talk", r.Talk))
}

func (r *Proposal) validate() error {
	return requireFields(
		str("login", r.Login),
		str("password", r.Password),
		str("talk", r.Talk),
		str("title", r.Title),
		stamp("start_timestamp", r.Start),
	)
}

func (r *Friends) validate() error {
	return requireFields(str("login1", r.Login1), str("password", r.Password), str("login2", r.Login2))
}

func (r *UserPlan) validate() error {
	return requireFields(str("login", r.Login), num("limit", r.Limit))
}

func (r *DayPlan) validate() error {
	if !r.Timestamp.IsSet() {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}

	return nil
}

func (r *BestTalks) validate() error {
	return requireFields(
		stamp("start_timestamp", r.Start),
		stamp("end_timestamp", r.End),
		num("limit", r.Limit),
		num("all", r.All),
	)
}

func (r *MostPopularTalks) validate() error {
	return requireFields(
		stamp("start_timestamp", r.Start),
		stamp("end_timestamp", r.End),
		num("limit", r.Limit),
	)
}

func (r *AttendedTalks) validate() error {
	return requireFields(str("login", r.Login), str("password", r.Password))
}

func (r *AbandonedTalks) validate() error {
	return requireFields(str("login", r.Login), str("password", r.Password), num("limit", r.Limit))
}

func (r *RecentlyAddedTalks) validate() error {
	return requireFields(num("limit", r.Limit))
}

func (r *RejectedTalks) validate() error {
	return requireFields(str("login", r.Login), str("password", r.Password))
}

func (r *Proposals) validate() error {
	return requireFields(str("login", r.Login), str("password", r.Password))
}

func (r *FriendsTalks) validate() error {
	return requireFields(
		str("login", r.Login),
		str("password", r.Password),
		stamp("start_timestamp", r.Start),
		stamp("end_timestamp", r.End),
		num("limit", r.Limit),
	)
}

func (r *FriendsEvents) validate() error {
	// eventname may be empty: an empty filter returns all of the friends' registrations.
	return requireFields(str("login", r.Login), str("password", r.Password))
}

func (r *RecommendedTalks) validate() error {
	return requireFields(
		str("login", r.Login),
		str("password", r.Password),
		stamp("start_timestamp", r.Start),
		stamp("end_timestamp", r.End),
		num("limit", r.Limit),
	)
}
