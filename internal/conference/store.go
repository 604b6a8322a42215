package conference

import (
	"context"
	"time"
)

// Store is the persistence contract for the conference dataset. It is
// implemented by the PostgreSQL-backed storage.ConferenceStore and by the
// in-memory storage.MemoryStore used in tests and smoke runs.
//
// Every mutating operation authorizes its caller before touching any state;
// all authorization failures surface as ErrUnauthorized. Entities are created
// by the named commands and never deleted.
type Store interface {
	// Authorize resolves a login under the given role constraint to the
	// internal person id. A nil password means lookup by login only (used for
	// the speaker in a talk command and the target of a friend intent; the
	// speaker resolves with RoleAny, the friend target with RoleUser).
	Authorize(ctx context.Context, login string, password *string, role Role) (int64, error)

	// CreateOrganizer inserts an organizer person. The admin secret has
	// already been validated at decode time; no role check applies.
	CreateOrganizer(ctx context.Context, login, password string) error

	// CreateUser inserts a non-organizer person. Caller must be an organizer.
	CreateUser(ctx context.Context, caller Credentials, newLogin, newPassword string) error

	// CreateEvent inserts an event with a globally unique name.
	// Caller must be an organizer.
	CreateEvent(ctx context.Context, caller Credentials, eventName string, start, end time.Time) error

	// AcceptTalk upserts the talk keyed by its external tag into Accepted
	// state and records the organizer's initial evaluation as a rating.
	// A non-empty EventName must name an existing event whose interval
	// contains the talk's start.
	AcceptTalk(ctx context.Context, sub TalkSubmission) error

	// RegisterForEvent registers the calling user for the named event.
	// Duplicate registration is an error.
	RegisterForEvent(ctx context.Context, caller Credentials, eventName string) error

	// RecordAttendance marks the calling user present at an Accepted talk.
	// Duplicate attendance is an error.
	RecordAttendance(ctx context.Context, caller Credentials, talk string) error

	// RateTalk records the calling user's rating of an Accepted talk.
	// Repeat ratings by the same person are allowed.
	RateTalk(ctx context.Context, caller Credentials, talk string, rating int) error

	// RejectTalk transitions a Proposed talk to Rejected. Caller must be an
	// organizer; a talk not in Proposed state (including a missing talk) fails.
	RejectTalk(ctx context.Context, caller Credentials, talk string) error

	// ProposeTalk inserts a new talk in Proposed state with no room and no
	// event. Caller must be a user.
	ProposeTalk(ctx context.Context, caller Credentials, talk, title string, start time.Time) error

	// MakeFriends records the directed intent caller -> friend. Both parties
	// must be non-organizer users. Friendship is established once both
	// directions exist; duplicates are errors.
	MakeFriends(ctx context.Context, caller Credentials, friendLogin string) error

	// UserPlan lists upcoming Accepted talks inside events the person is
	// registered for, ordered by start ascending. Limit 0 means all.
	UserPlan(ctx context.Context, login string, limit int) ([]PlanRow, error)

	// DayPlan lists Accepted talks on the given day, ordered by room then
	// start ascending.
	DayPlan(ctx context.Context, day time.Time) ([]TalkRow, error)

	// BestTalks lists Accepted talks starting in [start, end] ordered by
	// average rating descending. With all=false only ratings by attendees or
	// organizers count.
	BestTalks(ctx context.Context, start, end time.Time, limit int, all bool) ([]TalkRow, error)

	// MostPopularTalks lists Accepted talks in the window ordered by
	// attendance count descending.
	MostPopularTalks(ctx context.Context, start, end time.Time, limit int) ([]TalkRow, error)

	// AttendedTalks lists the talks the calling user attended.
	AttendedTalks(ctx context.Context, caller Credentials) ([]TalkRow, error)

	// AbandonedTalks lists Accepted talks ordered descending by the number of
	// event-registered persons who did not attend. Caller must be an organizer.
	AbandonedTalks(ctx context.Context, caller Credentials, limit int) ([]AbandonedRow, error)

	// RecentlyAddedTalks lists Accepted talks ordered by last acceptance time
	// descending.
	RecentlyAddedTalks(ctx context.Context, limit int) ([]SpeakerTalkRow, error)

	// RejectedTalks lists all Rejected talks for an organizer caller, or the
	// caller's own Rejected talks for a user caller.
	RejectedTalks(ctx context.Context, caller Credentials) ([]DraftRow, error)

	// Proposals lists talks awaiting an organizer's accept or reject.
	// Caller must be an organizer.
	Proposals(ctx context.Context, caller Credentials) ([]DraftRow, error)

	// FriendsTalks lists Accepted talks in the window given by speakers who
	// are mutual friends of the caller, ordered by start ascending.
	FriendsTalks(ctx context.Context, caller Credentials, start, end time.Time, limit int) ([]SpeakerTalkRow, error)

	// FriendsEvents lists the caller's mutual friends' event registrations.
	// A non-empty eventName restricts the result to that event.
	FriendsEvents(ctx context.Context, caller Credentials, eventName string) ([]FriendEventRow, error)

	// Close releases backend resources. Safe to call multiple times.
	Close() error
}
