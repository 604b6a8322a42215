package session_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confplan-io/confplan/internal/conference"
	"github.com/confplan-io/confplan/internal/protocol"
	"github.com/confplan-io/confplan/internal/session"
	"github.com/confplan-io/confplan/internal/storage"
)

// testNow pins the clock so "upcoming" cutoffs are deterministic.
var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// harness drives the dispatcher one request line at a time.
type harness struct {
	t          *testing.T
	dispatcher *session.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opener := func(_ context.Context, _, _, _ string) (conference.Store, error) {
		return storage.NewMemoryStoreAt(func() time.Time { return testNow }), nil
	}

	return &harness{
		t:          t,
		dispatcher: session.NewDispatcher(opener, logger),
	}
}

// send dispatches one request line and returns the encoded response.
func (h *harness) send(line string) string {
	h.t.Helper()

	resp := h.dispatcher.Dispatch(context.Background(), []byte(line))

	encoded, err := resp.Encode()
	require.NoError(h.t, err)

	return string(encoded)
}

// ok asserts the bare success envelope.
func (h *harness) ok(line string) {
	h.t.Helper()
	assert.Equal(h.t, `{"status":"OK"}`, h.send(line), "request: %s", line)
}

// fail asserts the uniform error envelope.
func (h *harness) fail(line string) {
	h.t.Helper()
	assert.Equal(h.t, `{"status":"ERROR"}`, h.send(line), "request: %s", line)
}

// open establishes the in-memory session and seeds an organizer.
func (h *harness) open() {
	h.t.Helper()
	h.ok(`{"open":{"baza":"conf","login":"init","password":"pw"}}`)
	h.ok(`{"organizer":{"secret":"` + protocol.AdminSecret + `","newlogin":"boss","newpassword":"pw"}}`)
}

func TestDispatcherRequiresOpen(t *testing.T) {
	h := newHarness(t)

	h.fail(`{"user":{"login":"boss","password":"pw","newlogin":"alice","newpassword":"a"}}`)
	h.fail(`{"day_plan":{"timestamp":"2026-06-01"}}`)
	h.fail(`{"recommended_talks":{"login":"u","password":"p",` +
		`"start_timestamp":"2026-06-01","end_timestamp":"2026-06-02","limit":1}}`)
}

func TestDispatcherMalformedInput(t *testing.T) {
	h := newHarness(t)
	h.open()

	h.fail(`not json at all`)
	h.fail(`{"open":{"baza":"b","login":"l","password":"p"},"user":{}}`)
	h.fail(`{"teleport":{"login":"l"}}`)
	h.fail(`{"user":{"login":"boss","password":"pw","newlogin":"","newpassword":"a"}}`)
}

func TestDispatcherReopen(t *testing.T) {
	h := newHarness(t)
	h.open()

	// A second open replaces the store; the organizer from the first session
	// is gone afterwards.
	h.ok(`{"open":{"baza":"conf","login":"init","password":"pw"}}`)
	h.fail(`{"user":{"login":"boss","password":"pw","newlogin":"alice","newpassword":"a"}}`)
}

func TestDispatcherFailedReopenKeepsSession(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opener := func(_ context.Context, database, _, _ string) (conference.Store, error) {
		if database == "down" {
			return nil, errors.New("connection refused")
		}

		return storage.NewMemoryStoreAt(func() time.Time { return testNow }), nil
	}
	h := &harness{t: t, dispatcher: session.NewDispatcher(opener, logger)}

	h.ok(`{"open":{"baza":"conf","login":"init","password":"pw"}}`)
	h.ok(`{"organizer":{"secret":"` + protocol.AdminSecret + `","newlogin":"boss","newpassword":"pw"}}`)

	// A re-open that cannot connect reports an error and leaves the
	// established store in place, organizer and all.
	h.fail(`{"open":{"baza":"down","login":"init","password":"pw"}}`)
	h.ok(`{"user":{"login":"boss","password":"pw","newlogin":"alice","newpassword":"a"}}`)
}

func TestDispatcherAccountCommands(t *testing.T) {
	h := newHarness(t)
	h.open()

	h.ok(`{"user":{"login":"boss","password":"pw","newlogin":"alice","newpassword":"a"}}`)

	// Duplicate login, wrong organizer password, non-organizer caller.
	h.fail(`{"user":{"login":"boss","password":"pw","newlogin":"alice","newpassword":"a"}}`)
	h.fail(`{"user":{"login":"boss","password":"wrong","newlogin":"bob","newpassword":"b"}}`)
	h.fail(`{"user":{"login":"alice","password":"a","newlogin":"bob","newpassword":"b"}}`)

	// Organizer creation is gated on the secret at decode time.
	h.fail(`{"organizer":{"secret":"guess","newlogin":"mallory","newpassword":"m"}}`)
	h.fail(`{"organizer":{"secret":"` + protocol.AdminSecret + `","newlogin":"boss","newpassword":"pw"}}`)
}

func TestDispatcherEventAndTalkLifecycle(t *testing.T) {
	h := newHarness(t)
	h.open()

	h.ok(`{"user":{"login":"boss","password":"pw","newlogin":"alice","newpassword":"a"}}`)
	h.ok(`{"user":{"login":"boss","password":"pw","newlogin":"bob","newpassword":"b"}}`)

	// Date-only endpoints widen to the full days.
	h.ok(`{"event":{"login":"boss","password":"pw","eventname":"goconf",` +
		`"start_timestamp":"2026-06-01","end_timestamp":"2026-06-03"}}`)
	h.fail(`{"event":{"login":"boss","password":"pw","eventname":"goconf",` +
		`"start_timestamp":"2026-07-01","end_timestamp":"2026-07-02"}}`)

	h.ok(`{"talk":{"login":"boss","password":"pw","speakerlogin":"alice","talk":"t1",` +
		`"title":"Generics in Practice","start_timestamp":"2026-06-01 10:00:00","room":"A1",` +
		`"initial_evaluation":8,"eventname":"goconf"}}`)

	// Start outside the event interval, unknown event, unknown speaker,
	// initial evaluation out of range.
	h.fail(`{"talk":{"login":"boss","password":"pw","speakerlogin":"alice","talk":"t2",` +
		`"title":"X","start_timestamp":"2026-07-01 10:00:00","room":"A1",` +
		`"initial_evaluation":5,"eventname":"goconf"}}`)
	h.fail(`{"talk":{"login":"boss","password":"pw","speakerlogin":"alice","talk":"t2",` +
		`"title":"X","start_timestamp":"2026-06-01 10:00:00","room":"A1",` +
		`"initial_evaluation":5,"eventname":"ghostconf"}}`)
	h.fail(`{"talk":{"login":"boss","password":"pw","speakerlogin":"nobody","talk":"t2",` +
		`"title":"X","start_timestamp":"2026-06-01 10:00:00","room":"A1","initial_evaluation":5}}`)
	h.fail(`{"talk":{"login":"boss","password":"pw","speakerlogin":"alice","talk":"t2",` +
		`"title":"X","start_timestamp":"2026-06-01 10:00:00","room":"A1","initial_evaluation":11}}`)

	h.ok(`{"register_user_for_event":{"login":"bob","password":"b","eventname":"goconf"}}`)
	h.fail(`{"register_user_for_event":{"login":"bob","password":"b","eventname":"goconf"}}`)
	h.fail(`{"register_user_for_event":{"login":"bob","password":"b","eventname":"ghostconf"}}`)

	h.ok(`{"attendance":{"login":"bob","password":"b","talk":"t1"}}`)
	h.fail(`{"attendance":{"login":"bob","password":"b","talk":"t1"}}`)
	h.fail(`{"attendance":{"login":"bob","password":"b","talk":"ghost"}}`)

	h.ok(`{"evaluation":{"login":"bob","password":"b","talk":"t1","rating":10}}`)
	h.ok(`{"evaluation":{"login":"bob","password":"b","talk":"t1","rating":"6"}}`)
	h.fail(`{"evaluation":{"login":"bob","password":"b","talk":"t1","rating":11}}`)
	h.fail(`{"evaluation":{"login":"bob","password":"b","talk":"ghost","rating":5}}`)

	t.Run("user plan", func(t *testing.T) {
		assert.Equal(t,
			`{"status":"OK","data":[{"login":"alice","talk":"t1",`+
				`"start_timestamp":"2026-06-01 10:00:00","title":"Generics in Practice","room":"A1"}]}`,
			h.send(`{"user_plan":{"login":"bob","limit":0}}`))

		// No registrations means an empty plan, not an error.
		assert.Equal(t, `{"status":"OK","data":[]}`,
			h.send(`{"user_plan":{"login":"alice","limit":0}}`))

		h.fail(`{"user_plan":{"login":"bob","limit":-1}}`)
	})

	t.Run("day plan", func(t *testing.T) {
		assert.Equal(t,
			`{"status":"OK","data":[{"talk":"t1","start_timestamp":"2026-06-01 10:00:00",`+
				`"title":"Generics in Practice","room":"A1"}]}`,
			h.send(`{"day_plan":{"timestamp":"2026-06-01"}}`))

		assert.Equal(t, `{"status":"OK","data":[]}`,
			h.send(`{"day_plan":{"timestamp":"2026-06-02"}}`))
	})

	t.Run("best talks", func(t *testing.T) {
		resp := h.send(`{"best_talks":{"start_timestamp":"2026-06-01",` +
			`"end_timestamp":"2026-06-01","limit":0,"all":1}}`)
		assert.Contains(t, resp, `"talk":"t1"`)

		// Window that misses the talk.
		assert.Equal(t, `{"status":"OK","data":[]}`,
			h.send(`{"best_talks":{"start_timestamp":"2026-06-02",`+
				`"end_timestamp":"2026-06-03","limit":0,"all":1}}`))
	})

	t.Run("most popular talks", func(t *testing.T) {
		resp := h.send(`{"most_popular_talks":{"start_timestamp":"2026-06-01 00:00:00",` +
			`"end_timestamp":"2026-06-03 23:59:59","limit":0}}`)
		assert.Contains(t, resp, `"talk":"t1"`)
	})

	t.Run("attended talks", func(t *testing.T) {
		assert.Equal(t,
			`{"status":"OK","data":[{"talk":"t1","start_timestamp":"2026-06-01 10:00:00",`+
				`"title":"Generics in Practice","room":"A1"}]}`,
			h.send(`{"attended_talks":{"login":"bob","password":"b"}}`))
	})

	t.Run("abandoned talks", func(t *testing.T) {
		// alice registers but never attends, so t1 has one no-show.
		h.ok(`{"register_user_for_event":{"login":"alice","password":"a","eventname":"goconf"}}`)

		assert.Equal(t,
			`{"status":"OK","data":[{"talk":"t1","start_timestamp":"2026-06-01 10:00:00",`+
				`"title":"Generics in Practice","room":"A1","number":1}]}`,
			h.send(`{"abandoned_talks":{"login":"boss","password":"pw","limit":0}}`))

		// Organizer-only.
		h.fail(`{"abandoned_talks":{"login":"bob","password":"b","limit":0}}`)
	})

	t.Run("recently added talks", func(t *testing.T) {
		assert.Equal(t,
			`{"status":"OK","data":[{"talk":"t1","speakerlogin":"alice",`+
				`"start_timestamp":"2026-06-01 10:00:00","title":"Generics in Practice","room":"A1"}]}`,
			h.send(`{"recently_added_talks":{"limit":1}}`))
	})
}

func TestDispatcherProposalLifecycle(t *testing.T) {
	h := newHarness(t)
	h.open()

	h.ok(`{"user":{"login":"boss","password":"pw","newlogin":"bob","newpassword":"b"}}`)

	h.ok(`{"proposal":{"login":"bob","password":"b","talk":"p1",` +
		`"title":"Lightning Talk","start_timestamp":"2026-06-02 09:00:00"}}`)
	h.fail(`{"proposal":{"login":"bob","password":"b","talk":"p1",` +
		`"title":"Lightning Talk","start_timestamp":"2026-06-02 09:00:00"}}`)

	// Organizers cannot propose; proposals need a user caller.
	h.fail(`{"proposal":{"login":"boss","password":"pw","talk":"p2",` +
		`"title":"Keynote","start_timestamp":"2026-06-02 09:00:00"}}`)

	t.Run("proposals listing", func(t *testing.T) {
		assert.Equal(t,
			`{"status":"OK","data":[{"talk":"p1","speakerlogin":"bob",`+
				`"start_timestamp":"2026-06-02 09:00:00","title":"Lightning Talk"}]}`,
			h.send(`{"proposals":{"login":"boss","password":"pw"}}`))

		h.fail(`{"proposals":{"login":"bob","password":"b"}}`)
	})

	t.Run("reject", func(t *testing.T) {
		h.ok(`{"reject":{"login":"boss","password":"pw","talk":"p1"}}`)
		h.fail(`{"reject":{"login":"boss","password":"pw","talk":"p1"}}`)
		h.fail(`{"reject":{"login":"boss","password":"pw","talk":"ghost"}}`)

		// Attendance and rating never apply to a rejected talk.
		h.fail(`{"attendance":{"login":"bob","password":"b","talk":"p1"}}`)
		h.fail(`{"evaluation":{"login":"bob","password":"b","talk":"p1","rating":5}}`)
	})

	t.Run("rejected talks listing", func(t *testing.T) {
		want := `{"status":"OK","data":[{"talk":"p1","speakerlogin":"bob",` +
			`"start_timestamp":"2026-06-02 09:00:00","title":"Lightning Talk"}]}`

		// The organizer sees all rejections, the speaker their own.
		assert.Equal(t, want, h.send(`{"rejected_talks":{"login":"boss","password":"pw"}}`))
		assert.Equal(t, want, h.send(`{"rejected_talks":{"login":"bob","password":"b"}}`))
	})

	t.Run("accepting a proposal", func(t *testing.T) {
		h.ok(`{"proposal":{"login":"bob","password":"b","talk":"p2",` +
			`"title":"Profiling Go","start_timestamp":"2026-06-02 11:00:00"}}`)
		h.ok(`{"talk":{"login":"boss","password":"pw","speakerlogin":"bob","talk":"p2",` +
			`"title":"Profiling Go","start_timestamp":"2026-06-02 11:00:00","room":"B2",` +
			`"initial_evaluation":7,"eventname":""}}`)

		// Accepted, so it left the proposals queue and accepts attendance.
		assert.Equal(t, `{"status":"OK","data":[]}`,
			h.send(`{"proposals":{"login":"boss","password":"pw"}}`))
		h.ok(`{"attendance":{"login":"bob","password":"b","talk":"p2"}}`)
	})
}

func TestDispatcherFriends(t *testing.T) {
	h := newHarness(t)
	h.open()

	h.ok(`{"user":{"login":"boss","password":"pw","newlogin":"alice","newpassword":"a"}}`)
	h.ok(`{"user":{"login":"boss","password":"pw","newlogin":"bob","newpassword":"b"}}`)
	h.ok(`{"user":{"login":"boss","password":"pw","newlogin":"carol","newpassword":"c"}}`)

	h.ok(`{"event":{"login":"boss","password":"pw","eventname":"goconf",` +
		`"start_timestamp":"2026-06-01","end_timestamp":"2026-06-03"}}`)
	h.ok(`{"register_user_for_event":{"login":"alice","password":"a","eventname":"goconf"}}`)
	h.ok(`{"talk":{"login":"boss","password":"pw","speakerlogin":"alice","talk":"t1",` +
		`"title":"Generics in Practice","start_timestamp":"2026-06-01 10:00:00","room":"A1",` +
		`"initial_evaluation":8,"eventname":"goconf"}}`)

	h.ok(`{"friends":{"login1":"bob","password":"b","login2":"alice"}}`)
	h.fail(`{"friends":{"login1":"bob","password":"b","login2":"alice"}}`)
	h.fail(`{"friends":{"login1":"bob","password":"b","login2":"nobody"}}`)
	h.fail(`{"friends":{"login1":"bob","password":"b","login2":"boss"}}`)

	t.Run("one-way intent is not friendship", func(t *testing.T) {
		assert.Equal(t, `{"status":"OK","data":[]}`,
			h.send(`{"friends_talks":{"login":"bob","password":"b",`+
				`"start_timestamp":"2026-06-01","end_timestamp":"2026-06-03","limit":0}}`))
		assert.Equal(t, `{"status":"OK","data":[]}`,
			h.send(`{"friends_events":{"login":"bob","password":"b","eventname":""}}`))
	})

	h.ok(`{"friends":{"login1":"alice","password":"a","login2":"bob"}}`)

	t.Run("mutual friendship surfaces talks and events", func(t *testing.T) {
		assert.Equal(t,
			`{"status":"OK","data":[{"talk":"t1","speakerlogin":"alice",`+
				`"start_timestamp":"2026-06-01 10:00:00","title":"Generics in Practice","room":"A1"}]}`,
			h.send(`{"friends_talks":{"login":"bob","password":"b",`+
				`"start_timestamp":"2026-06-01","end_timestamp":"2026-06-03","limit":0}}`))

		assert.Equal(t,
			`{"status":"OK","data":[{"login":"bob","eventname":"goconf","friendlogin":"alice"}]}`,
			h.send(`{"friends_events":{"login":"bob","password":"b","eventname":""}}`))

		// The filter excludes other events and unknown names yield nothing.
		assert.Equal(t, `{"status":"OK","data":[]}`,
			h.send(`{"friends_events":{"login":"bob","password":"b","eventname":"ghostconf"}}`))
	})

	t.Run("friendship is not transitive", func(t *testing.T) {
		h.ok(`{"friends":{"login1":"carol","password":"c","login2":"bob"}}`)
		h.ok(`{"friends":{"login1":"bob","password":"b","login2":"carol"}}`)

		// carol and alice are both friends of bob but not of each other.
		assert.Equal(t, `{"status":"OK","data":[]}`,
			h.send(`{"friends_talks":{"login":"carol","password":"c",`+
				`"start_timestamp":"2026-06-01","end_timestamp":"2026-06-03","limit":0}}`))
	})
}

// TestDispatcherEndToEnd walks the canonical request sequence: bootstrap,
// date-widened event, string-typed scalars, and well-formed empty results.
func TestDispatcherEndToEnd(t *testing.T) {
	h := newHarness(t)

	h.ok(`{"open":{"baza":"stud","login":"stud","password":"p"}}`)

	// No organizer exists yet, so nobody can create users.
	h.fail(`{"user":{"login":"a","password":"b","newlogin":"c","newpassword":"d"}}`)

	h.ok(`{"organizer":{"secret":"` + protocol.AdminSecret + `","newlogin":"org","newpassword":"pw"}}`)
	h.ok(`{"event":{"login":"org","password":"pw","eventname":"K",` +
		`"start_timestamp":"2024-01-01","end_timestamp":"2024-01-02"}}`)
	h.ok(`{"user":{"login":"org","password":"pw","newlogin":"spk","newpassword":"s"}}`)

	// The event interval widened to [2024-01-01 00:00:00, 2024-01-02 23:59:59],
	// so a talk late on the second day still fits.
	h.ok(`{"talk":{"login":"org","password":"pw","speakerlogin":"spk","talk":"t-k",` +
		`"title":"Keynote","start_timestamp":"2024-01-02 23:30:00","room":"R1",` +
		`"initial_evaluation":"9","eventname":"K"}}`)

	resp := h.send(`{"best_talks":{"start_timestamp":"2024-01-01",` +
		`"end_timestamp":"2024-01-02","limit":0,"all":"1"}}`)
	assert.Contains(t, resp, `"talk":"t-k"`)

	h.fail(`{"reject":{"login":"org","password":"pw","talk":"t-missing"}}`)

	// A window with no attendance still yields a well-formed empty data array.
	assert.Equal(t, `{"status":"OK","data":[]}`,
		h.send(`{"most_popular_talks":{"start_timestamp":"2015-09-05 23:56:04",`+
			`"end_timestamp":"2015-09-05 23:56:04","limit":"42"}}`))
}

func TestDispatcherRecommendedTalks(t *testing.T) {
	h := newHarness(t)
	h.open()

	assert.Equal(t, `{"status":"NOT IMPLEMENTED"}`,
		h.send(`{"recommended_talks":{"login":"u","password":"p",`+
			`"start_timestamp":"2026-06-01","end_timestamp":"2026-06-02","limit":1}}`))
}

func TestDispatcherRun(t *testing.T) {
	h := newHarness(t)

	input := strings.Join([]string{
		`{"open":{"baza":"conf","login":"init","password":"pw"}}`,
		``,
		`{"organizer":{"secret":"` + protocol.AdminSecret + `","newlogin":"boss","newpassword":"pw"}}`,
		`{"bogus":{}}`,
	}, "\n") + "\n"

	var out bytes.Buffer

	err := h.dispatcher.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	// Blank lines are skipped; every other line gets exactly one response.
	assert.Equal(t,
		`{"status":"OK"}`+"\n"+`{"status":"OK"}`+"\n"+`{"status":"ERROR"}`+"\n",
		out.String())
}
