package conference

import (
	"time"
)

// StampLayout is the wire form every timestamp is re-serialized in,
// regardless of which of the two accepted input forms it arrived as.
const StampLayout = "2006-01-02 15:04:05"

// Stamp wraps time.Time so query rows marshal timestamps as
// "YYYY-MM-DD HH:MM:SS" instead of RFC 3339.
type Stamp struct {
	time.Time
}

// NewStamp wraps t for wire serialization.
func NewStamp(t time.Time) Stamp {
	return Stamp{Time: t}
}

// MarshalJSON renders the timestamp in the fixed wire layout.
func (s Stamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.Format(StampLayout) + `"`), nil
}

// Query result rows. Field order is normative: responses must list fields in
// exactly this sequence, so the struct declaration order is the contract.
type (
	// PlanRow is a user_plan entry. Login is the speaker's login.
	PlanRow struct {
		Login          string `json:"login"`
		Talk           string `json:"talk"`
		StartTimestamp Stamp  `json:"start_timestamp"`
		Title          string `json:"title"`
		Room           string `json:"room"`
	}

	// TalkRow is shared by day_plan, best_talks, most_popular_talks and
	// attended_talks.
	TalkRow struct {
		Talk           string `json:"talk"`
		StartTimestamp Stamp  `json:"start_timestamp"`
		Title          string `json:"title"`
		Room           string `json:"room"`
	}

	// AbandonedRow extends TalkRow with the count of event-registered persons
	// who did not attend.
	AbandonedRow struct {
		Talk           string `json:"talk"`
		StartTimestamp Stamp  `json:"start_timestamp"`
		Title          string `json:"title"`
		Room           string `json:"room"`
		Number         int    `json:"number"`
	}

	// SpeakerTalkRow is shared by recently_added_talks and friends_talks.
	SpeakerTalkRow struct {
		Talk           string `json:"talk"`
		SpeakerLogin   string `json:"speakerlogin"`
		StartTimestamp Stamp  `json:"start_timestamp"`
		Title          string `json:"title"`
		Room           string `json:"room"`
	}

	// DraftRow is shared by rejected_talks and proposals: talks that never
	// reached a room.
	DraftRow struct {
		Talk           string `json:"talk"`
		SpeakerLogin   string `json:"speakerlogin"`
		StartTimestamp Stamp  `json:"start_timestamp"`
		Title          string `json:"title"`
	}

	// FriendEventRow is a friends_events entry: a mutual friend's event
	// registration. Eventname is the event the friend is registered for.
	FriendEventRow struct {
		Login       string `json:"login"`
		Eventname   string `json:"eventname"`
		FriendLogin string `json:"friendlogin"`
	}
)
