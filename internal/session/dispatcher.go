package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/confplan-io/confplan/internal/conference"
	"github.com/confplan-io/confplan/internal/protocol"
)

// maxLineSize bounds a single request line.
const maxLineSize = 1 << 20

// Dispatcher runs the request loop: one JSON request per input line, one JSON
// response per output line. Every failure is answered with the uniform ERROR
// status; the cause goes to the log only.
type Dispatcher struct {
	session *Session
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over an unopened session.
func NewDispatcher(opener Opener, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		session: NewSession(opener),
		logger:  logger,
	}
}

// Run reads requests from r until EOF, writing one response line to w per
// non-empty input line. EOF is a normal shutdown, not an error.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	defer func() {
		if err := d.session.Close(); err != nil {
			d.logger.Error("closing session", "error", err)
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := d.Dispatch(ctx, line)

		encoded, err := resp.Encode()
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}

		if _, err := w.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}

	d.logger.Info("input exhausted, shutting down")

	return nil
}

// Dispatch decodes and executes one request line.
func (d *Dispatcher) Dispatch(ctx context.Context, line []byte) protocol.Response {
	id := uuid.NewString()
	logger := d.logger.With("request_id", id)

	req, err := protocol.Decode(line)
	if err != nil {
		logger.Warn("rejecting request", "error", err)

		return protocol.Error()
	}

	logger.Debug("dispatching request", "type", fmt.Sprintf("%T", req))

	resp, err := d.execute(ctx, req)
	if err != nil {
		logger.Warn("request failed", "type", fmt.Sprintf("%T", req), "error", err)

		return protocol.Error()
	}

	return resp
}

// execute routes a decoded request. Everything except open requires an
// established session; that includes the NOT IMPLEMENTED recommendation query.
func (d *Dispatcher) execute(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if open, ok := req.(*protocol.Open); ok {
		if err := d.session.Open(ctx, open.Baza, open.Login, open.Password); err != nil {
			return protocol.Response{}, err
		}

		return protocol.OK(), nil
	}

	store, err := d.session.Store()
	if err != nil {
		return protocol.Response{}, err
	}

	switch r := req.(type) {
	case *protocol.Organizer:
		return command(store.CreateOrganizer(ctx, r.NewLogin, r.NewPassword))

	case *protocol.User:
		return command(store.CreateUser(ctx, creds(r.Login, r.Password), r.NewLogin, r.NewPassword))

	case *protocol.Event:
		return command(store.CreateEvent(ctx, creds(r.Login, r.Password), r.EventName, r.Start.Lower(), r.End.Upper()))

	case *protocol.Talk:
		if err := conference.ValidateRating(r.InitialEvaluation.Int()); err != nil {
			return protocol.Response{}, err
		}

		return command(store.AcceptTalk(ctx, conference.TalkSubmission{
			Caller:            creds(r.Login, r.Password),
			SpeakerLogin:      r.SpeakerLogin,
			Tag:               r.Talk,
			Title:             r.Title,
			StartTime:         r.Start.Lower(),
			Room:              r.Room,
			InitialEvaluation: r.InitialEvaluation.Int(),
			EventName:         r.EventName,
		}))

	case *protocol.RegisterUserForEvent:
		return command(store.RegisterForEvent(ctx, creds(r.Login, r.Password), r.EventName))

	case *protocol.Attendance:
		return command(store.RecordAttendance(ctx, creds(r.Login, r.Password), r.Talk))

	case *protocol.Evaluation:
		if err := conference.ValidateRating(r.Rating.Int()); err != nil {
			return protocol.Response{}, err
		}

		return command(store.RateTalk(ctx, creds(r.Login, r.Password), r.Talk, r.Rating.Int()))

	case *protocol.Reject:
		return command(store.RejectTalk(ctx, creds(r.Login, r.Password), r.Talk))

	case *protocol.Proposal:
		return command(store.ProposeTalk(ctx, creds(r.Login, r.Password), r.Talk, r.Title, r.Start.Lower()))

	case *protocol.Friends:
		return command(store.MakeFriends(ctx, creds(r.Login1, r.Password), r.Login2))

	case *protocol.UserPlan:
		return queryLimited(r.Limit.Int(), func(limit int) ([]conference.PlanRow, error) {
			return store.UserPlan(ctx, r.Login, limit)
		})

	case *protocol.DayPlan:
		rows, err := store.DayPlan(ctx, r.Timestamp.Time())

		return query(rows, err)

	case *protocol.BestTalks:
		return queryLimited(r.Limit.Int(), func(limit int) ([]conference.TalkRow, error) {
			return store.BestTalks(ctx, r.Start.Lower(), r.End.Upper(), limit, r.All.Bool())
		})

	case *protocol.MostPopularTalks:
		return queryLimited(r.Limit.Int(), func(limit int) ([]conference.TalkRow, error) {
			return store.MostPopularTalks(ctx, r.Start.Lower(), r.End.Upper(), limit)
		})

	case *protocol.AttendedTalks:
		rows, err := store.AttendedTalks(ctx, creds(r.Login, r.Password))

		return query(rows, err)

	case *protocol.AbandonedTalks:
		return queryLimited(r.Limit.Int(), func(limit int) ([]conference.AbandonedRow, error) {
			return store.AbandonedTalks(ctx, creds(r.Login, r.Password), limit)
		})

	case *protocol.RecentlyAddedTalks:
		return queryLimited(r.Limit.Int(), func(limit int) ([]conference.SpeakerTalkRow, error) {
			return store.RecentlyAddedTalks(ctx, limit)
		})

	case *protocol.RejectedTalks:
		rows, err := store.RejectedTalks(ctx, creds(r.Login, r.Password))

		return query(rows, err)

	case *protocol.Proposals:
		rows, err := store.Proposals(ctx, creds(r.Login, r.Password))

		return query(rows, err)

	case *protocol.FriendsTalks:
		return queryLimited(r.Limit.Int(), func(limit int) ([]conference.SpeakerTalkRow, error) {
			return store.FriendsTalks(ctx, creds(r.Login, r.Password), r.Start.Lower(), r.End.Upper(), limit)
		})

	case *protocol.FriendsEvents:
		rows, err := store.FriendsEvents(ctx, creds(r.Login, r.Password), r.EventName)

		return query(rows, err)

	case *protocol.RecommendedTalks:
		return protocol.NotImplemented(), nil

	default:
		return protocol.Response{}, fmt.Errorf("unhandled request type %T", req)
	}
}

func creds(login, password string) conference.Credentials {
	return conference.Credentials{Login: login, Password: password}
}

// command maps a store command result to the bare-status envelope.
func command(err error) (protocol.Response, error) {
	if err != nil {
		return protocol.Response{}, err
	}

	return protocol.OK(), nil
}

// query maps a store query result to the data envelope, normalizing a nil
// slice so an empty result still serializes as "data":[].
func query[T any](rows []T, err error) (protocol.Response, error) {
	if err != nil {
		return protocol.Response{}, err
	}

	if rows == nil {
		rows = []T{}
	}

	return protocol.OKData(rows), nil
}

// queryLimited validates the limit before running the query.
func queryLimited[T any](limit int, run func(limit int) ([]T, error)) (protocol.Response, error) {
	if err := conference.ValidateLimit(limit); err != nil {
		return protocol.Response{}, err
	}

	rows, err := run(limit)

	return query(rows, err)
}
