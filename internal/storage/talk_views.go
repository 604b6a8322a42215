package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/confplan-io/confplan/internal/conference"
)

// Reporting queries over the conference dataset. Every query orders its rows
// deterministically and treats limit 0 as "all rows".

// limitClause renders the optional LIMIT suffix. The limit has already been
// validated as non-negative at dispatch.
func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}

	return fmt.Sprintf(" LIMIT %d", limit)
}

// UserPlan lists upcoming Accepted talks inside events the person is
// registered for, soonest first.
func (s *ConferenceStore) UserPlan(ctx context.Context, login string, limit int) ([]conference.PlanRow, error) {
	query := `
		SELECT sp.login, t.talk, t.start_timestamp, t.title, COALESCE(t.room, '')
		FROM person_registered_for_event reg
		JOIN persons p ON p.id = reg.person_id
		JOIN talks t ON t.event_id = reg.event_id
		JOIN persons sp ON sp.id = t.speaker_id
		WHERE p.login = $1
		  AND t.status = 'Accepted'
		  AND t.start_timestamp >= now()
		ORDER BY t.start_timestamp
	` + limitClause(limit)

	rows, err := s.conn.QueryContext(ctx, query, login)
	if err != nil {
		return nil, fmt.Errorf("querying user plan for %s: %w", login, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	plan := []conference.PlanRow{}

	for rows.Next() {
		var (
			row   conference.PlanRow
			start time.Time
		)

		if err := rows.Scan(&row.Login, &row.Talk, &start, &row.Title, &row.Room); err != nil {
			return nil, fmt.Errorf("scanning user plan row: %w", err)
		}

		row.StartTimestamp = conference.NewStamp(start)
		plan = append(plan, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user plan rows: %w", err)
	}

	return plan, nil
}

// DayPlan lists Accepted talks on the given day ordered by room, then start.
func (s *ConferenceStore) DayPlan(ctx context.Context, day time.Time) ([]conference.TalkRow, error) {
	query := `
		SELECT t.talk, t.start_timestamp, t.title, COALESCE(t.room, '')
		FROM talks t
		WHERE t.status = 'Accepted'
		  AND t.start_timestamp::date = $1::date
		ORDER BY COALESCE(t.room, ''), t.start_timestamp
	`

	return s.talkRows(ctx, query, day)
}

// BestTalks lists Accepted talks starting in [start, end] ordered by average
// rating descending. With all=false only ratings cast by attendees of the
// talk or by organizers count.
func (s *ConferenceStore) BestTalks(
	ctx context.Context,
	start, end time.Time,
	limit int,
	all bool,
) ([]conference.TalkRow, error) {
	filter := ""
	if !all {
		filter = `
		  AND (EXISTS (
		           SELECT 1 FROM person_attended_for_talk a
		           WHERE a.talk_id = t.id AND a.person_id = r.person_id)
		       OR EXISTS (
		           SELECT 1 FROM persons o
		           WHERE o.id = r.person_id AND o.is_organizer))`
	}

	query := `
		SELECT t.talk, t.start_timestamp, t.title, COALESCE(t.room, '')
		FROM talks t
		JOIN person_rated_talk r ON r.talk_id = t.id
		WHERE t.status = 'Accepted'
		  AND t.start_timestamp BETWEEN $1 AND $2` + filter + `
		GROUP BY t.id
		ORDER BY AVG(r.rating) DESC, t.start_timestamp
	` + limitClause(limit)

	return s.talkRows(ctx, query, start, end)
}

// MostPopularTalks lists Accepted talks in the window ordered by attendance
// count descending. Talks nobody attended do not appear.
func (s *ConferenceStore) MostPopularTalks(
	ctx context.Context,
	start, end time.Time,
	limit int,
) ([]conference.TalkRow, error) {
	query := `
		SELECT t.talk, t.start_timestamp, t.title, COALESCE(t.room, '')
		FROM talks t
		JOIN person_attended_for_talk a ON a.talk_id = t.id
		WHERE t.status = 'Accepted'
		  AND t.start_timestamp BETWEEN $1 AND $2
		GROUP BY t.id
		ORDER BY COUNT(*) DESC, t.start_timestamp
	` + limitClause(limit)

	return s.talkRows(ctx, query, start, end)
}

// AttendedTalks lists the talks the calling user attended, soonest first.
func (s *ConferenceStore) AttendedTalks(
	ctx context.Context,
	caller conference.Credentials,
) ([]conference.TalkRow, error) {
	personID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT t.talk, t.start_timestamp, t.title, COALESCE(t.room, '')
		FROM person_attended_for_talk a
		JOIN talks t ON t.id = a.talk_id
		WHERE a.person_id = $1
		ORDER BY t.start_timestamp
	`

	return s.talkRows(ctx, query, personID)
}

// AbandonedTalks lists Accepted talks ordered descending by how many persons
// registered for the talk's event but never showed up.
func (s *ConferenceStore) AbandonedTalks(
	ctx context.Context,
	caller conference.Credentials,
	limit int,
) ([]conference.AbandonedRow, error) {
	if _, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return nil, err
	}

	query := `
		SELECT t.talk, t.start_timestamp, t.title, COALESCE(t.room, ''),
		       COUNT(reg.person_id) FILTER (WHERE NOT EXISTS (
		           SELECT 1 FROM person_attended_for_talk a
		           WHERE a.talk_id = t.id AND a.person_id = reg.person_id)) AS missed
		FROM talks t
		LEFT JOIN person_registered_for_event reg ON reg.event_id = t.event_id
		WHERE t.status = 'Accepted'
		GROUP BY t.id
		ORDER BY missed DESC, t.start_timestamp
	` + limitClause(limit)

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying abandoned talks: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	abandoned := []conference.AbandonedRow{}

	for rows.Next() {
		var (
			row   conference.AbandonedRow
			start time.Time
		)

		if err := rows.Scan(&row.Talk, &start, &row.Title, &row.Room, &row.Number); err != nil {
			return nil, fmt.Errorf("scanning abandoned talk row: %w", err)
		}

		row.StartTimestamp = conference.NewStamp(start)
		abandoned = append(abandoned, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating abandoned talk rows: %w", err)
	}

	return abandoned, nil
}

// RecentlyAddedTalks lists Accepted talks ordered by last acceptance time,
// newest first.
func (s *ConferenceStore) RecentlyAddedTalks(ctx context.Context, limit int) ([]conference.SpeakerTalkRow, error) {
	query := `
		SELECT t.talk, sp.login, t.start_timestamp, t.title, COALESCE(t.room, '')
		FROM talks t
		JOIN persons sp ON sp.id = t.speaker_id
		WHERE t.status = 'Accepted'
		ORDER BY t.modified_at DESC
	` + limitClause(limit)

	return s.speakerTalkRows(ctx, query)
}

// RejectedTalks lists every Rejected talk for an organizer caller, or just
// the caller's own for a user caller.
func (s *ConferenceStore) RejectedTalks(
	ctx context.Context,
	caller conference.Credentials,
) ([]conference.DraftRow, error) {
	if _, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleOrganizer); err == nil {
		query := `
			SELECT t.talk, sp.login, t.start_timestamp, t.title
			FROM talks t
			JOIN persons sp ON sp.id = t.speaker_id
			WHERE t.status = 'Rejected'
			ORDER BY t.start_timestamp
		`

		return s.draftRows(ctx, query)
	}

	personID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT t.talk, sp.login, t.start_timestamp, t.title
		FROM talks t
		JOIN persons sp ON sp.id = t.speaker_id
		WHERE t.status = 'Rejected' AND t.speaker_id = $1
		ORDER BY t.start_timestamp
	`

	return s.draftRows(ctx, query, personID)
}

// Proposals lists talks still awaiting an organizer's decision.
func (s *ConferenceStore) Proposals(
	ctx context.Context,
	caller conference.Credentials,
) ([]conference.DraftRow, error) {
	if _, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return nil, err
	}

	query := `
		SELECT t.talk, sp.login, t.start_timestamp, t.title
		FROM talks t
		JOIN persons sp ON sp.id = t.speaker_id
		WHERE t.status = 'Proposed'
		ORDER BY t.start_timestamp
	`

	return s.draftRows(ctx, query)
}

// FriendsTalks lists Accepted talks in the window whose speaker is a mutual
// friend of the caller, soonest first.
func (s *ConferenceStore) FriendsTalks(
	ctx context.Context,
	caller conference.Credentials,
	start, end time.Time,
	limit int,
) ([]conference.SpeakerTalkRow, error) {
	personID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT t.talk, sp.login, t.start_timestamp, t.title, COALESCE(t.room, '')
		FROM talks t
		JOIN persons sp ON sp.id = t.speaker_id
		WHERE t.status = 'Accepted'
		  AND t.start_timestamp BETWEEN $2 AND $3
		  AND EXISTS (
		      SELECT 1
		      FROM person_knows_person k1
		      JOIN person_knows_person k2
		        ON k2.person1_id = k1.person2_id AND k2.person2_id = k1.person1_id
		      WHERE k1.person1_id = $1 AND k1.person2_id = t.speaker_id)
		ORDER BY t.start_timestamp
	` + limitClause(limit)

	return s.speakerTalkRows(ctx, query, personID, start, end)
}

// FriendsEvents lists the caller's mutual friends' event registrations,
// optionally restricted to one event.
func (s *ConferenceStore) FriendsEvents(
	ctx context.Context,
	caller conference.Credentials,
	eventName string,
) ([]conference.FriendEventRow, error) {
	personID, err := s.Authorize(ctx, caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT p.login, e.eventname, f.login
		FROM person_knows_person k1
		JOIN person_knows_person k2
		  ON k2.person1_id = k1.person2_id AND k2.person2_id = k1.person1_id
		JOIN persons p ON p.id = k1.person1_id
		JOIN persons f ON f.id = k1.person2_id
		JOIN person_registered_for_event reg ON reg.person_id = f.id
		JOIN events e ON e.id = reg.event_id
		WHERE k1.person1_id = $1
	`
	args := []any{personID}

	if eventName != "" {
		query += ` AND e.eventname = $2`

		args = append(args, eventName)
	}

	query += ` ORDER BY e.eventname, f.login`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying friends events for %s: %w", caller.Login, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	friends := []conference.FriendEventRow{}

	for rows.Next() {
		var row conference.FriendEventRow

		if err := rows.Scan(&row.Login, &row.Eventname, &row.FriendLogin); err != nil {
			return nil, fmt.Errorf("scanning friends events row: %w", err)
		}

		friends = append(friends, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friends events rows: %w", err)
	}

	return friends, nil
}

// talkRows runs a query whose columns match conference.TalkRow.
func (s *ConferenceStore) talkRows(ctx context.Context, query string, args ...any) ([]conference.TalkRow, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying talks: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	talks := []conference.TalkRow{}

	for rows.Next() {
		var (
			row   conference.TalkRow
			start time.Time
		)

		if err := rows.Scan(&row.Talk, &start, &row.Title, &row.Room); err != nil {
			return nil, fmt.Errorf("scanning talk row: %w", err)
		}

		row.StartTimestamp = conference.NewStamp(start)
		talks = append(talks, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating talk rows: %w", err)
	}

	return talks, nil
}

// speakerTalkRows runs a query whose columns match conference.SpeakerTalkRow.
func (s *ConferenceStore) speakerTalkRows(
	ctx context.Context,
	query string,
	args ...any,
) ([]conference.SpeakerTalkRow, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying speaker talks: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	talks := []conference.SpeakerTalkRow{}

	for rows.Next() {
		var (
			row   conference.SpeakerTalkRow
			start time.Time
		)

		if err := rows.Scan(&row.Talk, &row.SpeakerLogin, &start, &row.Title, &row.Room); err != nil {
			return nil, fmt.Errorf("scanning speaker talk row: %w", err)
		}

		row.StartTimestamp = conference.NewStamp(start)
		talks = append(talks, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating speaker talk rows: %w", err)
	}

	return talks, nil
}

// draftRows runs a query whose columns match conference.DraftRow.
func (s *ConferenceStore) draftRows(ctx context.Context, query string, args ...any) ([]conference.DraftRow, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying draft talks: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	drafts := []conference.DraftRow{}

	for rows.Next() {
		var (
			row   conference.DraftRow
			start time.Time
		)

		if err := rows.Scan(&row.Talk, &row.SpeakerLogin, &start, &row.Title); err != nil {
			return nil, fmt.Errorf("scanning draft talk row: %w", err)
		}

		row.StartTimestamp = conference.NewStamp(start)
		drafts = append(drafts, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating draft talk rows: %w", err)
	}

	return drafts, nil
}
