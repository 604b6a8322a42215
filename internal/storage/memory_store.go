package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/confplan-io/confplan/internal/conference"
)

type (
	// MemoryStore implements conference.Store entirely in memory. It backs the
	// dispatcher tests and the -store memory smoke mode, mirroring the
	// PostgreSQL store's semantics including ordering and error mapping.
	MemoryStore struct {
		mu sync.RWMutex

		// now is injectable so tests can pin "upcoming" cutoffs.
		now func() time.Time

		nextID  int64
		nextSeq int64

		personsByLogin map[string]*memPerson
		personsByID    map[int64]*memPerson
		eventsByName   map[string]*memEvent
		talksByTag     map[string]*memTalk

		registrations map[pair]bool
		attendance    map[pair]bool
		knows         map[pair]bool
		ratings       []memRating
	}

	// pair keys the link tables: (person, event), (person, talk) or
	// (person, person).
	pair struct {
		a, b int64
	}

	memPerson struct {
		id          int64
		login       string
		password    string
		isOrganizer bool
	}

	memEvent struct {
		id    int64
		name  string
		start time.Time
		end   time.Time
	}

	memTalk struct {
		id        int64
		tag       string
		speakerID int64
		status    conference.TalkStatus
		title     string
		start     time.Time
		room      string
		eventID   *int64
		// seq orders talks by last acceptance, most recent highest.
		seq int64
	}

	memRating struct {
		personID int64
		talkID   int64
		rating   int
	}
)

// NewMemoryStore creates an empty in-memory store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreAt(time.Now)
}

// NewMemoryStoreAt creates an empty in-memory store with an injectable clock.
func NewMemoryStoreAt(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		now:            now,
		personsByLogin: make(map[string]*memPerson),
		personsByID:    make(map[int64]*memPerson),
		eventsByName:   make(map[string]*memEvent),
		talksByTag:     make(map[string]*memTalk),
		registrations:  make(map[pair]bool),
		attendance:     make(map[pair]bool),
		knows:          make(map[pair]bool),
	}
}

// Close is a no-op; the store has no external resources.
func (s *MemoryStore) Close() error {
	return nil
}

// Authorize resolves a login under the role and password constraints.
func (s *MemoryStore) Authorize(
	_ context.Context,
	login string,
	password *string,
	role conference.Role,
) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.authorizeLocked(login, password, role)
}

func (s *MemoryStore) authorizeLocked(login string, password *string, role conference.Role) (int64, error) {
	person, ok := s.personsByLogin[login]
	if !ok {
		return 0, fmt.Errorf("%w: %s as %s", conference.ErrUnauthorized, login, role)
	}

	if password != nil && person.password != *password {
		return 0, fmt.Errorf("%w: %s as %s", conference.ErrUnauthorized, login, role)
	}

	switch role {
	case conference.RoleUser:
		if person.isOrganizer {
			return 0, fmt.Errorf("%w: %s as %s", conference.ErrUnauthorized, login, role)
		}
	case conference.RoleOrganizer:
		if !person.isOrganizer {
			return 0, fmt.Errorf("%w: %s as %s", conference.ErrUnauthorized, login, role)
		}
	case conference.RoleAny:
	}

	return person.id, nil
}

// CreateOrganizer inserts an organizer person.
func (s *MemoryStore) CreateOrganizer(_ context.Context, login, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertPersonLocked(login, password, true)
}

// CreateUser inserts a non-organizer person on behalf of an organizer caller.
func (s *MemoryStore) CreateUser(
	_ context.Context,
	caller conference.Credentials,
	newLogin, newPassword string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return err
	}

	return s.insertPersonLocked(newLogin, newPassword, false)
}

func (s *MemoryStore) insertPersonLocked(login, password string, organizer bool) error {
	if _, exists := s.personsByLogin[login]; exists {
		return fmt.Errorf("%w: login %s", conference.ErrDuplicate, login)
	}

	s.nextID++
	person := &memPerson{id: s.nextID, login: login, password: password, isOrganizer: organizer}
	s.personsByLogin[login] = person
	s.personsByID[person.id] = person

	return nil
}

// CreateEvent inserts an event on behalf of an organizer caller.
func (s *MemoryStore) CreateEvent(
	_ context.Context,
	caller conference.Credentials,
	eventName string,
	start, end time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return err
	}

	if _, exists := s.eventsByName[eventName]; exists {
		return fmt.Errorf("%w: eventname %s", conference.ErrDuplicate, eventName)
	}

	if end.Before(start) {
		return fmt.Errorf("%w: %s ends before it starts", conference.ErrOutsideEvent, eventName)
	}

	s.nextID++
	s.eventsByName[eventName] = &memEvent{id: s.nextID, name: eventName, start: start, end: end}

	return nil
}

// AcceptTalk upserts the talk into Accepted state and records the organizer's
// initial evaluation.
func (s *MemoryStore) AcceptTalk(_ context.Context, sub conference.TalkSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	organizerID, err := s.authorizeLocked(sub.Caller.Login, &sub.Caller.Password, conference.RoleOrganizer)
	if err != nil {
		return err
	}

	speakerID, err := s.authorizeLocked(sub.SpeakerLogin, nil, conference.RoleAny)
	if err != nil {
		return err
	}

	var eventID *int64

	if sub.EventName != "" {
		event, ok := s.eventsByName[sub.EventName]
		if !ok {
			return fmt.Errorf("%w: %s", conference.ErrEventNotFound, sub.EventName)
		}

		if sub.StartTime.Before(event.start) || sub.StartTime.After(event.end) {
			return fmt.Errorf("%w: %s does not contain %s", conference.ErrOutsideEvent, sub.EventName, sub.StartTime)
		}

		eventID = &event.id
	}

	talk, exists := s.talksByTag[sub.Tag]
	if !exists {
		s.nextID++
		talk = &memTalk{id: s.nextID, tag: sub.Tag}
		s.talksByTag[sub.Tag] = talk
	}

	s.nextSeq++
	talk.speakerID = speakerID
	talk.status = conference.StatusAccepted
	talk.title = sub.Title
	talk.start = sub.StartTime
	talk.room = sub.Room
	talk.eventID = eventID
	talk.seq = s.nextSeq

	s.ratings = append(s.ratings, memRating{personID: organizerID, talkID: talk.id, rating: sub.InitialEvaluation})

	return nil
}

// RegisterForEvent registers the calling user for the named event.
func (s *MemoryStore) RegisterForEvent(
	_ context.Context,
	caller conference.Credentials,
	eventName string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	personID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	event, ok := s.eventsByName[eventName]
	if !ok {
		return fmt.Errorf("%w: %s", conference.ErrEventNotFound, eventName)
	}

	key := pair{a: personID, b: event.id}
	if s.registrations[key] {
		return fmt.Errorf("%w: %s already registered for %s", conference.ErrDuplicate, caller.Login, eventName)
	}

	s.registrations[key] = true

	return nil
}

// RecordAttendance marks the calling user present at an Accepted talk.
func (s *MemoryStore) RecordAttendance(_ context.Context, caller conference.Credentials, talk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	personID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	target, err := s.acceptedTalkLocked(talk)
	if err != nil {
		return err
	}

	key := pair{a: personID, b: target.id}
	if s.attendance[key] {
		return fmt.Errorf("%w: %s already attended %s", conference.ErrDuplicate, caller.Login, talk)
	}

	s.attendance[key] = true

	return nil
}

// RateTalk records a rating for an Accepted talk. Repeat ratings accumulate.
func (s *MemoryStore) RateTalk(_ context.Context, caller conference.Credentials, talk string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	personID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	target, err := s.acceptedTalkLocked(talk)
	if err != nil {
		return err
	}

	s.ratings = append(s.ratings, memRating{personID: personID, talkID: target.id, rating: rating})

	return nil
}

func (s *MemoryStore) acceptedTalkLocked(tag string) (*memTalk, error) {
	talk, ok := s.talksByTag[tag]
	if !ok || talk.status != conference.StatusAccepted {
		return nil, fmt.Errorf("%w: %s", conference.ErrTalkNotAccepted, tag)
	}

	return talk, nil
}

// RejectTalk transitions a Proposed talk to Rejected.
func (s *MemoryStore) RejectTalk(_ context.Context, caller conference.Credentials, talk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return err
	}

	target, ok := s.talksByTag[talk]
	if !ok || target.status != conference.StatusProposed {
		return fmt.Errorf("%w: %s", conference.ErrTalkNotProposed, talk)
	}

	s.nextSeq++
	target.status = conference.StatusRejected
	target.seq = s.nextSeq

	return nil
}

// ProposeTalk inserts a new Proposed talk with no room and no event.
func (s *MemoryStore) ProposeTalk(
	_ context.Context,
	caller conference.Credentials,
	talk, title string,
	start time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	speakerID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	if _, exists := s.talksByTag[talk]; exists {
		return fmt.Errorf("%w: talk %s", conference.ErrDuplicate, talk)
	}

	s.nextID++
	s.nextSeq++
	s.talksByTag[talk] = &memTalk{
		id:        s.nextID,
		tag:       talk,
		speakerID: speakerID,
		status:    conference.StatusProposed,
		title:     title,
		start:     start,
		seq:       s.nextSeq,
	}

	return nil
}

// MakeFriends records the directed intent caller -> friendLogin.
func (s *MemoryStore) MakeFriends(_ context.Context, caller conference.Credentials, friendLogin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	personID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return err
	}

	friendID, err := s.authorizeLocked(friendLogin, nil, conference.RoleUser)
	if err != nil {
		return err
	}

	key := pair{a: personID, b: friendID}
	if s.knows[key] {
		return fmt.Errorf("%w: %s -> %s", conference.ErrDuplicate, caller.Login, friendLogin)
	}

	s.knows[key] = true

	return nil
}

// mutualLocked reports whether both friendship directions exist.
func (s *MemoryStore) mutualLocked(a, b int64) bool {
	return s.knows[pair{a: a, b: b}] && s.knows[pair{a: b, b: a}]
}

// UserPlan lists upcoming Accepted talks inside events the person is
// registered for, soonest first.
func (s *MemoryStore) UserPlan(_ context.Context, login string, limit int) ([]conference.PlanRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	person, ok := s.personsByLogin[login]
	if !ok {
		return []conference.PlanRow{}, nil
	}

	now := s.now()
	plan := []conference.PlanRow{}

	for _, talk := range s.sortedTalksLocked(byStart) {
		if talk.status != conference.StatusAccepted || talk.eventID == nil || talk.start.Before(now) {
			continue
		}

		if !s.registrations[pair{a: person.id, b: *talk.eventID}] {
			continue
		}

		plan = append(plan, conference.PlanRow{
			Login:          s.personsByID[talk.speakerID].login,
			Talk:           talk.tag,
			StartTimestamp: conference.NewStamp(talk.start),
			Title:          talk.title,
			Room:           talk.room,
		})
	}

	return truncate(plan, limit), nil
}

// DayPlan lists Accepted talks on the given day ordered by room, then start.
func (s *MemoryStore) DayPlan(_ context.Context, day time.Time) ([]conference.TalkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := day.Date()
	rows := []conference.TalkRow{}

	for _, talk := range s.sortedTalksLocked(byRoomThenStart) {
		ty, tm, td := talk.start.Date()
		if talk.status != conference.StatusAccepted || ty != y || tm != m || td != d {
			continue
		}

		rows = append(rows, talkRow(talk))
	}

	return rows, nil
}

// BestTalks lists Accepted talks in the window ordered by average rating
// descending.
func (s *MemoryStore) BestTalks(
	_ context.Context,
	start, end time.Time,
	limit int,
	all bool,
) ([]conference.TalkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		talk *memTalk
		avg  float64
	}

	ranked := []scored{}

	for _, talk := range s.sortedTalksLocked(byStart) {
		if talk.status != conference.StatusAccepted || outsideWindow(talk.start, start, end) {
			continue
		}

		var sum, count int

		for _, r := range s.ratings {
			if r.talkID != talk.id {
				continue
			}

			if !all && !s.attendance[pair{a: r.personID, b: talk.id}] && !s.personsByID[r.personID].isOrganizer {
				continue
			}

			sum += r.rating
			count++
		}

		if count == 0 {
			continue
		}

		ranked = append(ranked, scored{talk: talk, avg: float64(sum) / float64(count)})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].avg > ranked[j].avg })

	rows := []conference.TalkRow{}
	for _, r := range ranked {
		rows = append(rows, talkRow(r.talk))
	}

	return truncate(rows, limit), nil
}

// MostPopularTalks lists Accepted talks in the window ordered by attendance
// count descending. Talks nobody attended do not appear.
func (s *MemoryStore) MostPopularTalks(
	_ context.Context,
	start, end time.Time,
	limit int,
) ([]conference.TalkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type counted struct {
		talk  *memTalk
		count int
	}

	ranked := []counted{}

	for _, talk := range s.sortedTalksLocked(byStart) {
		if talk.status != conference.StatusAccepted || outsideWindow(talk.start, start, end) {
			continue
		}

		count := 0

		for key := range s.attendance {
			if key.b == talk.id {
				count++
			}
		}

		if count == 0 {
			continue
		}

		ranked = append(ranked, counted{talk: talk, count: count})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })

	rows := []conference.TalkRow{}
	for _, r := range ranked {
		rows = append(rows, talkRow(r.talk))
	}

	return truncate(rows, limit), nil
}

// AttendedTalks lists the talks the calling user attended, soonest first.
func (s *MemoryStore) AttendedTalks(_ context.Context, caller conference.Credentials) ([]conference.TalkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	personID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return nil, err
	}

	rows := []conference.TalkRow{}

	for _, talk := range s.sortedTalksLocked(byStart) {
		if s.attendance[pair{a: personID, b: talk.id}] {
			rows = append(rows, talkRow(talk))
		}
	}

	return rows, nil
}

// AbandonedTalks lists Accepted talks ordered descending by registered
// no-shows.
func (s *MemoryStore) AbandonedTalks(
	_ context.Context,
	caller conference.Credentials,
	limit int,
) ([]conference.AbandonedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return nil, err
	}

	rows := []conference.AbandonedRow{}

	for _, talk := range s.sortedTalksLocked(byStart) {
		if talk.status != conference.StatusAccepted {
			continue
		}

		missed := 0

		if talk.eventID != nil {
			for key := range s.registrations {
				if key.b == *talk.eventID && !s.attendance[pair{a: key.a, b: talk.id}] {
					missed++
				}
			}
		}

		rows = append(rows, conference.AbandonedRow{
			Talk:           talk.tag,
			StartTimestamp: conference.NewStamp(talk.start),
			Title:          talk.title,
			Room:           talk.room,
			Number:         missed,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Number > rows[j].Number })

	return truncate(rows, limit), nil
}

// RecentlyAddedTalks lists Accepted talks by last acceptance, newest first.
func (s *MemoryStore) RecentlyAddedTalks(_ context.Context, limit int) ([]conference.SpeakerTalkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := []conference.SpeakerTalkRow{}

	for _, talk := range s.sortedTalksLocked(bySeqDesc) {
		if talk.status != conference.StatusAccepted {
			continue
		}

		rows = append(rows, speakerTalkRow(talk, s.personsByID[talk.speakerID].login))
	}

	return truncate(rows, limit), nil
}

// RejectedTalks lists every Rejected talk for an organizer caller, or the
// caller's own for a user caller.
func (s *MemoryStore) RejectedTalks(
	_ context.Context,
	caller conference.Credentials,
) ([]conference.DraftRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var speakerFilter *int64

	if _, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		personID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
		if err != nil {
			return nil, err
		}

		speakerFilter = &personID
	}

	rows := []conference.DraftRow{}

	for _, talk := range s.sortedTalksLocked(byStart) {
		if talk.status != conference.StatusRejected {
			continue
		}

		if speakerFilter != nil && talk.speakerID != *speakerFilter {
			continue
		}

		rows = append(rows, draftRow(talk, s.personsByID[talk.speakerID].login))
	}

	return rows, nil
}

// Proposals lists talks still awaiting an organizer's decision.
func (s *MemoryStore) Proposals(_ context.Context, caller conference.Credentials) ([]conference.DraftRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleOrganizer); err != nil {
		return nil, err
	}

	rows := []conference.DraftRow{}

	for _, talk := range s.sortedTalksLocked(byStart) {
		if talk.status != conference.StatusProposed {
			continue
		}

		rows = append(rows, draftRow(talk, s.personsByID[talk.speakerID].login))
	}

	return rows, nil
}

// FriendsTalks lists Accepted talks in the window whose speaker is a mutual
// friend of the caller, soonest first.
func (s *MemoryStore) FriendsTalks(
	_ context.Context,
	caller conference.Credentials,
	start, end time.Time,
	limit int,
) ([]conference.SpeakerTalkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	personID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return nil, err
	}

	rows := []conference.SpeakerTalkRow{}

	for _, talk := range s.sortedTalksLocked(byStart) {
		if talk.status != conference.StatusAccepted || outsideWindow(talk.start, start, end) {
			continue
		}

		if !s.mutualLocked(personID, talk.speakerID) {
			continue
		}

		rows = append(rows, speakerTalkRow(talk, s.personsByID[talk.speakerID].login))
	}

	return truncate(rows, limit), nil
}

// FriendsEvents lists the caller's mutual friends' event registrations,
// optionally restricted to one event.
func (s *MemoryStore) FriendsEvents(
	_ context.Context,
	caller conference.Credentials,
	eventName string,
) ([]conference.FriendEventRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	personID, err := s.authorizeLocked(caller.Login, &caller.Password, conference.RoleUser)
	if err != nil {
		return nil, err
	}

	rows := []conference.FriendEventRow{}

	for key := range s.registrations {
		if !s.mutualLocked(personID, key.a) {
			continue
		}

		event := s.eventByIDLocked(key.b)
		if event == nil {
			continue
		}

		if eventName != "" && event.name != eventName {
			continue
		}

		rows = append(rows, conference.FriendEventRow{
			Login:       caller.Login,
			Eventname:   event.name,
			FriendLogin: s.personsByID[key.a].login,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Eventname != rows[j].Eventname {
			return rows[i].Eventname < rows[j].Eventname
		}

		return rows[i].FriendLogin < rows[j].FriendLogin
	})

	return rows, nil
}

func (s *MemoryStore) eventByIDLocked(id int64) *memEvent {
	for _, event := range s.eventsByName {
		if event.id == id {
			return event
		}
	}

	return nil
}

// Talk orderings used by the query methods.
type talkOrder int

const (
	byStart talkOrder = iota
	byRoomThenStart
	bySeqDesc
)

// sortedTalksLocked returns all talks in the requested deterministic order.
func (s *MemoryStore) sortedTalksLocked(order talkOrder) []*memTalk {
	talks := make([]*memTalk, 0, len(s.talksByTag))
	for _, talk := range s.talksByTag {
		talks = append(talks, talk)
	}

	sort.SliceStable(talks, func(i, j int) bool {
		switch order {
		case byRoomThenStart:
			if talks[i].room != talks[j].room {
				return talks[i].room < talks[j].room
			}

			return talks[i].start.Before(talks[j].start)
		case bySeqDesc:
			return talks[i].seq > talks[j].seq
		default:
			if !talks[i].start.Equal(talks[j].start) {
				return talks[i].start.Before(talks[j].start)
			}

			return talks[i].tag < talks[j].tag
		}
	})

	return talks
}

func outsideWindow(t, start, end time.Time) bool {
	return t.Before(start) || t.After(end)
}

func talkRow(talk *memTalk) conference.TalkRow {
	return conference.TalkRow{
		Talk:           talk.tag,
		StartTimestamp: conference.NewStamp(talk.start),
		Title:          talk.title,
		Room:           talk.room,
	}
}

func speakerTalkRow(talk *memTalk, speakerLogin string) conference.SpeakerTalkRow {
	return conference.SpeakerTalkRow{
		Talk:           talk.tag,
		SpeakerLogin:   speakerLogin,
		StartTimestamp: conference.NewStamp(talk.start),
		Title:          talk.title,
		Room:           talk.room,
	}
}

func draftRow(talk *memTalk, speakerLogin string) conference.DraftRow {
	return conference.DraftRow{
		Talk:           talk.tag,
		SpeakerLogin:   speakerLogin,
		StartTimestamp: conference.NewStamp(talk.start),
		Title:          talk.title,
	}
}

// truncate applies the validated limit; 0 means all rows.
func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}

	return rows
}
