package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confplan-io/confplan/internal/conference"
)

var memNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// newSeededStore builds a store with an organizer "boss" and users "alice"
// and "bob".
func newSeededStore(t *testing.T) *MemoryStore {
	t.Helper()

	ctx := context.Background()
	s := NewMemoryStoreAt(func() time.Time { return memNow })

	require.NoError(t, s.CreateOrganizer(ctx, "boss", "pw"))
	require.NoError(t, s.CreateUser(ctx, boss(), "alice", "a"))
	require.NoError(t, s.CreateUser(ctx, boss(), "bob", "b"))

	return s
}

func boss() conference.Credentials {
	return conference.Credentials{Login: "boss", Password: "pw"}
}

func user(login, password string) conference.Credentials {
	return conference.Credentials{Login: login, Password: password}
}

func TestMemoryStoreAuthorize(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)
	pw := "a"

	tests := []struct {
		name     string
		login    string
		password *string
		role     conference.Role
		wantErr  bool
	}{
		{name: "user with password", login: "alice", password: &pw, role: conference.RoleUser},
		{name: "lookup without password", login: "alice", role: conference.RoleAny},
		{name: "organizer as any", login: "boss", role: conference.RoleAny},
		{name: "wrong password", login: "alice", password: ptr("nope"), role: conference.RoleUser, wantErr: true},
		{name: "user as organizer", login: "alice", password: &pw, role: conference.RoleOrganizer, wantErr: true},
		{name: "organizer as user", login: "boss", password: ptr("pw"), role: conference.RoleUser, wantErr: true},
		{name: "unknown login", login: "nobody", role: conference.RoleAny, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Authorize(ctx, tt.login, tt.password, tt.role)
			if tt.wantErr {
				require.ErrorIs(t, err, conference.ErrUnauthorized)

				return
			}

			require.NoError(t, err)
		})
	}
}

func ptr(s string) *string {
	return &s
}

func TestMemoryStoreDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	require.ErrorIs(t, s.CreateOrganizer(ctx, "boss", "other"), conference.ErrDuplicate)
	require.ErrorIs(t, s.CreateUser(ctx, boss(), "alice", "other"), conference.ErrDuplicate)

	require.NoError(t, s.CreateEvent(ctx, boss(), "goconf",
		memNow, memNow.Add(48*time.Hour)))
	require.ErrorIs(t, s.CreateEvent(ctx, boss(), "goconf",
		memNow, memNow.Add(24*time.Hour)), conference.ErrDuplicate)
}

func TestMemoryStoreAcceptTalkUpsert(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	// A proposal accepted through the talk command keeps its tag and gains a
	// room.
	require.NoError(t, s.ProposeTalk(ctx, user("alice", "a"), "t1", "Draft Title", start))
	require.NoError(t, s.AcceptTalk(ctx, conference.TalkSubmission{
		Caller:            boss(),
		SpeakerLogin:      "alice",
		Tag:               "t1",
		Title:             "Final Title",
		StartTime:         start,
		Room:              "A1",
		InitialEvaluation: 8,
	}))

	rows, err := s.RecentlyAddedTalks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Final Title", rows[0].Title)
	assert.Equal(t, "A1", rows[0].Room)

	// Re-acceptance is an update, not a duplicate.
	require.NoError(t, s.AcceptTalk(ctx, conference.TalkSubmission{
		Caller:            boss(),
		SpeakerLogin:      "alice",
		Tag:               "t1",
		Title:             "Final Title v2",
		StartTime:         start,
		Room:              "B2",
		InitialEvaluation: 9,
	}))

	rows, err = s.RecentlyAddedTalks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Final Title v2", rows[0].Title)
}

func TestMemoryStoreAcceptTalkEventChecks(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	eventStart := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateEvent(ctx, boss(), "goconf", eventStart, eventStart.Add(72*time.Hour)))

	sub := conference.TalkSubmission{
		Caller:            boss(),
		SpeakerLogin:      "alice",
		Tag:               "t1",
		Title:             "T",
		StartTime:         eventStart.Add(-time.Hour),
		Room:              "A1",
		InitialEvaluation: 5,
		EventName:         "goconf",
	}

	require.ErrorIs(t, s.AcceptTalk(ctx, sub), conference.ErrOutsideEvent)

	sub.EventName = "ghostconf"
	require.ErrorIs(t, s.AcceptTalk(ctx, sub), conference.ErrEventNotFound)

	sub.EventName = "goconf"
	sub.StartTime = eventStart.Add(10 * time.Hour)
	require.NoError(t, s.AcceptTalk(ctx, sub))
}

func TestMemoryStoreRejectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	start := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.ProposeTalk(ctx, user("bob", "b"), "p1", "Lightning", start))

	// Organizer-only, then Proposed-only.
	require.ErrorIs(t, s.RejectTalk(ctx, user("bob", "b"), "p1"), conference.ErrUnauthorized)
	require.NoError(t, s.RejectTalk(ctx, boss(), "p1"))
	require.ErrorIs(t, s.RejectTalk(ctx, boss(), "p1"), conference.ErrTalkNotProposed)

	require.ErrorIs(t, s.RecordAttendance(ctx, user("bob", "b"), "p1"), conference.ErrTalkNotAccepted)
	require.ErrorIs(t, s.RateTalk(ctx, user("bob", "b"), "p1", 5), conference.ErrTalkNotAccepted)

	drafts, err := s.RejectedTalks(ctx, user("bob", "b"))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "p1", drafts[0].Talk)

	// Another user sees no rejected talks of bob's.
	drafts, err = s.RejectedTalks(ctx, user("alice", "a"))
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestMemoryStoreUserPlanSkipsPastTalks(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	require.NoError(t, s.CreateEvent(ctx, boss(), "goconf",
		memNow.Add(-72*time.Hour), memNow.Add(72*time.Hour)))
	require.NoError(t, s.RegisterForEvent(ctx, user("bob", "b"), "goconf"))

	accept := func(tag string, start time.Time) {
		require.NoError(t, s.AcceptTalk(ctx, conference.TalkSubmission{
			Caller:            boss(),
			SpeakerLogin:      "alice",
			Tag:               tag,
			Title:             "T " + tag,
			StartTime:         start,
			Room:              "A1",
			InitialEvaluation: 5,
			EventName:         "goconf",
		}))
	}

	accept("past", memNow.Add(-24*time.Hour))
	accept("soon", memNow.Add(2*time.Hour))
	accept("later", memNow.Add(24*time.Hour))

	plan, err := s.UserPlan(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "soon", plan[0].Talk)
	assert.Equal(t, "later", plan[1].Talk)

	plan, err = s.UserPlan(ctx, "bob", 1)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "soon", plan[0].Talk)
}

func TestMemoryStoreBestTalksRaterFilter(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.AcceptTalk(ctx, conference.TalkSubmission{
		Caller:            boss(),
		SpeakerLogin:      "alice",
		Tag:               "t1",
		Title:             "T",
		StartTime:         start,
		Room:              "A1",
		InitialEvaluation: 2,
	}))

	// bob attends and rates high; alice rates low without attending.
	require.NoError(t, s.RecordAttendance(ctx, user("bob", "b"), "t1"))
	require.NoError(t, s.RateTalk(ctx, user("bob", "b"), "t1", 10))
	require.NoError(t, s.RateTalk(ctx, user("alice", "a"), "t1", 0))

	window := func(all bool) []conference.TalkRow {
		rows, err := s.BestTalks(ctx, start.Add(-time.Hour), start.Add(time.Hour), 0, all)
		require.NoError(t, err)

		return rows
	}

	// Both modes rank t1; the filter only changes which ratings count, which
	// is observable through a second talk with only non-attendee ratings.
	require.Len(t, window(true), 1)
	require.Len(t, window(false), 1)

	require.NoError(t, s.AcceptTalk(ctx, conference.TalkSubmission{
		Caller:            boss(),
		SpeakerLogin:      "alice",
		Tag:               "t2",
		Title:             "T2",
		StartTime:         start.Add(30 * time.Minute),
		Room:              "B2",
		InitialEvaluation: 10,
	}))
	require.NoError(t, s.RateTalk(ctx, user("alice", "a"), "t2", 10))

	// all=true: t2 averages 10 and outranks t1.
	rows := window(true)
	require.Len(t, rows, 2)
	assert.Equal(t, "t2", rows[0].Talk)

	// all=false: alice's non-attendee rating is dropped but the organizer's
	// initial 10 still counts, so t2 stays ahead of t1's filtered average.
	rows = window(false)
	require.Len(t, rows, 2)
	assert.Equal(t, "t2", rows[0].Talk)
}

func TestMemoryStoreMostPopularOrdering(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	accept := func(tag string) {
		require.NoError(t, s.AcceptTalk(ctx, conference.TalkSubmission{
			Caller:            boss(),
			SpeakerLogin:      "alice",
			Tag:               tag,
			Title:             "T " + tag,
			StartTime:         start,
			Room:              "A1",
			InitialEvaluation: 5,
		}))
	}

	accept("quiet")
	accept("crowded")

	require.NoError(t, s.RecordAttendance(ctx, user("alice", "a"), "crowded"))
	require.NoError(t, s.RecordAttendance(ctx, user("bob", "b"), "crowded"))
	require.NoError(t, s.RecordAttendance(ctx, user("bob", "b"), "quiet"))

	rows, err := s.MostPopularTalks(ctx, start.Add(-time.Hour), start.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "crowded", rows[0].Talk)
	assert.Equal(t, "quiet", rows[1].Talk)

	rows, err = s.MostPopularTalks(ctx, start.Add(-time.Hour), start.Add(time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestMemoryStoreFriendship(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	require.NoError(t, s.MakeFriends(ctx, user("alice", "a"), "bob"))
	require.ErrorIs(t, s.MakeFriends(ctx, user("alice", "a"), "bob"), conference.ErrDuplicate)
	require.ErrorIs(t, s.MakeFriends(ctx, user("alice", "a"), "nobody"), conference.ErrUnauthorized)

	// The reverse direction completes the friendship.
	require.NoError(t, s.MakeFriends(ctx, user("bob", "b"), "alice"))

	require.NoError(t, s.CreateEvent(ctx, boss(), "goconf",
		memNow, memNow.Add(72*time.Hour)))
	require.NoError(t, s.RegisterForEvent(ctx, user("bob", "b"), "goconf"))

	rows, err := s.FriendsEvents(ctx, user("alice", "a"), "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Login)
	assert.Equal(t, "goconf", rows[0].Eventname)
	assert.Equal(t, "bob", rows[0].FriendLogin)
}
