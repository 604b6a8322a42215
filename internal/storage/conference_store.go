package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/confplan-io/confplan/internal/conference"
)

// pgUniqueViolation is the PostgreSQL error code for a unique constraint hit.
const pgUniqueViolation = "23505"

// ConferenceStore implements conference.Store on PostgreSQL. One store wraps
// one pooled connection; every mutating method authorizes its caller before
// touching state.
type ConferenceStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewConferenceStore creates a PostgreSQL-backed store over an established
// connection. The schema is expected to be installed already (see
// migrations.Apply).
func NewConferenceStore(conn *Connection, logger *slog.Logger) *ConferenceStore {
	return &ConferenceStore{
		conn:   conn,
		logger: logger,
	}
}

// Close shuts the connection pool down. Safe to call multiple times.
func (s *ConferenceStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}

// Authorize resolves a login to the internal person id under the role and
// password constraints. All mismatches collapse to ErrUnauthorized.
func (s *ConferenceStore) Authorize(
	ctx context.Context,
	login string,
	password *string,
	role conference.Role,
) (int64, error) {
	query := `SELECT id FROM persons WHERE login = $1`
	args := []any{login}

	if password != nil {
		query += ` AND password = $2`

		args = append(args, *password)
	}

	switch role {
	case conference.RoleUser:
		query += ` AND is_organizer = FALSE`
	case conference.RoleOrganizer:
		query += ` AND is_organizer = TRUE`
	case conference.RoleAny:
	}

	var id int64

	err := s.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s as %s", conference.ErrUnauthorized, login, role)
	}

	if err != nil {
		return 0, fmt.Errorf("authorizing %s: %w", login, err)
	}

	return id, nil
}

// CreateOrganizer inserts an organizer person.
func (s *ConferenceStore) CreateOrganizer(ctx context.Context, login, password string) error {
	query := `INSERT INTO persons (login, password, is_organizer) VALUES ($1, $2, TRUE)`

	if _, err := s.conn.ExecContext(ctx, query, login, password); err != nil {
		return fmt.Errorf("creating organizer %s: %w", login, translateError(err))
	}

	s.logger.Info("organizer created", "login", login)

	return nil
}

// CreateUser inserts a non-organizer person on behalf of an organizer caller.
func (s *ConferenceStore) CreateUser(
	ctx context.Context,
	caller conference.Credentials,
	newLogin, newPassword string,
) error {
	if _, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return err
	}

	query := `INSERT INTO persons (login, password, is_organizer) VALUES ($1, $2, FALSE)`

	if _, err := s.conn.ExecContext(ctx, query, newLogin, newPassword); err != nil {
		return fmt.Errorf("creating user %s: %w", newLogin, translateError(err))
	}

	s.logger.Info("user created", "login", newLogin, "by", caller.Login)

	return nil
}

// CreateEvent inserts an event on behalf of an organizer caller.
func (s *ConferenceStore) CreateEvent(
	ctx context.Context,
	caller conference.Credentials,
	eventName string,
	start, end time.Time,
) error {
	if _, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return err
	}

	query := `INSERT INTO events (eventname, start_timestamp, end_timestamp) VALUES ($1, $2, $3)`

	if _, err := s.conn.ExecContext(ctx, query, eventName, start, end); err != nil {
		return fmt.Errorf("creating event %s: %w", eventName, translateError(err))
	}

	s.logger.Info("event created", "eventname", eventName, "by", caller.Login)

	return nil
}

// AcceptTalk upserts the talk into Accepted state and records the organizer's
// initial evaluation, atomically. Registering a fresh talk and accepting an
// existing proposal are the same statement; both refresh modified_at.
func (s *ConferenceStore) AcceptTalk(ctx context.Context, sub conference.TalkSubmission) error {
	organizerID, err := s.Authorize(ctx, sub.Caller.Login, &sub.Caller.Password, conference.RoleOrganizer)
	if err != nil {
		return err
	}

	speakerID, err := s.Authorize(ctx, sub.SpeakerLogin, nil, conference.RoleAny)
	if err != nil {
		return err
	}

	eventID, err := s.resolveEvent(ctx, sub.EventName, sub.StartTime)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback()
	}()

	upsert := `
		INSERT INTO talks (talk, speaker_id, status, title, start_timestamp, room, event_id, modified_at)
		VALUES ($1, $2, 'Accepted', $3, $4, $5, $6, now())
		ON CONFLICT (talk) DO UPDATE
		SET speaker_id      = EXCLUDED.speaker_id,
		    status          = 'Accepted',
		    title           = EXCLUDED.title,
		    start_timestamp = EXCLUDED.start_timestamp,
		    room            = EXCLUDED.room,
		    event_id        = EXCLUDED.event_id,
		    modified_at     = now()
		RETURNING id
	`

	var talkID int64

	err = tx.QueryRowContext(ctx, upsert, sub.Tag, speakerID, sub.Title, sub.StartTime, sub.Room, eventID).
		Scan(&talkID)
	if err != nil {
		return fmt.Errorf("accepting talk %s: %w", sub.Tag, translateError(err))
	}

	rate := `INSERT INTO person_rated_talk (person_id, talk_id, rating) VALUES ($1, $2, $3)`

	if _, err := tx.ExecContext(ctx, rate, organizerID, talkID, sub.InitialEvaluation); err != nil {
		return fmt.Errorf("recording initial evaluation for %s: %w", sub.Tag, translateError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing talk %s: %w", sub.Tag, err)
	}

	s.logger.Info("talk accepted", "talk", sub.Tag, "speaker", sub.SpeakerLogin, "by", sub.Caller.Login)

	return nil
}

// resolveEvent maps a non-empty event name to its id, checking that the
// talk's start lies inside the event interval. An empty name resolves to NULL.
func (s *ConferenceStore) resolveEvent(ctx context.Context, eventName string, start time.Time) (*int64, error) {
	if eventName == "" {
		return nil, nil
	}

	query := `SELECT id, start_timestamp, end_timestamp FROM events WHERE eventname = $1`

	var (
		id                   int64
		eventStart, eventEnd time.Time
	)

	err := s.conn.QueryRowContext(ctx, query, eventName).Scan(&id, &eventStart, &eventEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", conference.ErrEventNotFound, eventName)
	}

	if err != nil {
		return nil, fmt.Errorf("resolving event %s: %w", eventName, err)
	}

	if start.Before(eventStart) || start.After(eventEnd) {
		return nil, fmt.Errorf("%w: %s does not contain %s", conference.ErrOutsideEvent, eventName, start)
	}

	return &id, nil
}

// RegisterForEvent registers the calling user for the named event.
func (s *ConferenceStore) RegisterForEvent(
	ctx context.Context,
	caller conference.Credentials,
	eventName string,
) error {
	personID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	var eventID int64

	err = s.conn.QueryRowContext(ctx, `SELECT id FROM events WHERE eventname = $1`, eventName).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", conference.ErrEventNotFound, eventName)
	}

	if err != nil {
		return fmt.Errorf("resolving event %s: %w", eventName, err)
	}

	query := `INSERT INTO person_registered_for_event (person_id, event_id) VALUES ($1, $2)`

	if _, err := s.conn.ExecContext(ctx, query, personID, eventID); err != nil {
		return fmt.Errorf("registering %s for %s: %w", caller.Login, eventName, translateError(err))
	}

	return nil
}

// RecordAttendance marks the calling user present at an Accepted talk.
func (s *ConferenceStore) RecordAttendance(
	ctx context.Context,
	caller conference.Credentials,
	talk string,
) error {
	personID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	talkID, err := s.acceptedTalkID(ctx, talk)
	if err != nil {
		return err
	}

	query := `INSERT INTO person_attended_for_talk (person_id, talk_id) VALUES ($1, $2)`

	if _, err := s.conn.ExecContext(ctx, query, personID, talkID); err != nil {
		return fmt.Errorf("recording attendance of %s at %s: %w", caller.Login, talk, translateError(err))
	}

	return nil
}

// RateTalk records a rating for an Accepted talk. Repeat ratings by the same
// person accumulate; the average smooths them out.
func (s *ConferenceStore) RateTalk(
	ctx context.Context,
	caller conference.Credentials,
	talk string,
	rating int,
) error {
	personID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	talkID, err := s.acceptedTalkID(ctx, talk)
	if err != nil {
		return err
	}

	query := `INSERT INTO person_rated_talk (person_id, talk_id, rating) VALUES ($1, $2, $3)`

	if _, err := s.conn.ExecContext(ctx, query, personID, talkID, rating); err != nil {
		return fmt.Errorf("rating %s: %w", talk, translateError(err))
	}

	return nil
}

// acceptedTalkID resolves a talk tag that must exist in Accepted state.
func (s *ConferenceStore) acceptedTalkID(ctx context.Context, talk string) (int64, error) {
	var id int64

	query := `SELECT id FROM talks WHERE talk = $1 AND status = 'Accepted'`

	err := s.conn.QueryRowContext(ctx, query, talk).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", conference.ErrTalkNotAccepted, talk)
	}

	if err != nil {
		return 0, fmt.Errorf("resolving talk %s: %w", talk, err)
	}

	return id, nil
}

// RejectTalk transitions a Proposed talk to Rejected.
func (s *ConferenceStore) RejectTalk(ctx context.Context, caller conference.Credentials, talk string) error {
	if _, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return err
	}

	query := `
		UPDATE talks
		SET status = 'Rejected', modified_at = now()
		WHERE talk = $1 AND status = 'Proposed'
	`

	result, err := s.conn.ExecContext(ctx, query, talk)
	if err != nil {
		return fmt.Errorf("rejecting talk %s: %w", talk, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rejecting talk %s: %w", talk, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", conference.ErrTalkNotProposed, talk)
	}

	s.logger.Info("talk rejected", "talk", talk, "by", caller.Login)

	return nil
}

// ProposeTalk inserts a new Proposed talk with no room and no event.
func (s *ConferenceStore) ProposeTalk(
	ctx context.Context,
	caller conference.Credentials,
	talk, title string,
	start time.Time,
) error {
	speakerID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO talks (talk, speaker_id, status, title, start_timestamp)
		VALUES ($1, $2, 'Proposed', $3, $4)
	`

	if _, err := s.conn.ExecContext(ctx, query, talk, speakerID, title, start); err != nil {
		return fmt.Errorf("proposing talk %s: %w", talk, translateError(err))
	}

	return nil
}

// MakeFriends records the directed intent caller -> friendLogin.
func (s *ConferenceStore) MakeFriends(
	ctx context.Context,
	caller conference.Credentials,
	friendLogin string,
) error {
	personID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	friendID, err := s.Authorize(ctx, friendLogin, nil, conference.RoleUser)
	if err != nil {
		return err
	}

	query := `INSERT INTO person_knows_person (person1_id, person2_id) VALUES ($1, $2)`

	if _, err := s.conn.ExecContext(ctx, query, personID, friendID); err != nil {
		return fmt.Errorf("recording friend intent %s -> %s: %w", caller.Login, friendLogin, translateError(err))
	}

	return nil
}

// translateError maps driver-level constraint violations to domain errors.
func translateError(err error) error {
	var pqErr *pq.Error

	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", conference.ErrDuplicate, pqErr.Constraint)
	}

	return err
}
