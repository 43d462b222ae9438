package app

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"campus-sync-service/internal/domain"
)

// Mappings hold the local view of every tracked collection. Each map is
// replaced wholesale on snapshot delivery and never mutated afterwards, so a
// reference handed to a reader stays valid and consistent.
type Mappings struct {
	Profiles      map[string]domain.Profile
	Courses       map[string]domain.Course
	Enrollments   map[string]domain.Enrollment
	Quizzes       map[string]domain.Quiz
	Attempts      map[string]domain.Attempt
	Tasks         map[string]domain.Task
	Announcements map[string]domain.Announcement

	// EnrolledCourseIDs is derived from Enrollments on every replacement.
	EnrolledCourseIDs map[string]struct{}
}

func newMappings() Mappings {
	return Mappings{
		Profiles:          map[string]domain.Profile{},
		Courses:           map[string]domain.Course{},
		Enrollments:       map[string]domain.Enrollment{},
		Quizzes:           map[string]domain.Quiz{},
		Attempts:          map[string]domain.Attempt{},
		Tasks:             map[string]domain.Task{},
		Announcements:     map[string]domain.Announcement{},
		EnrolledCourseIDs: map[string]struct{}{},
	}
}

// Synchronizer owns one live subscription per tracked collection and is the
// only writer of the local mappings. Snapshot deliveries are serialized by a
// mutex so each runs to completion before the next is applied, and every
// replacement completes before dependent listeners are notified.
type Synchronizer struct {
	store    DocumentStore
	notify   Notifier
	onChange func(collection string)

	deliverMu sync.Mutex // serializes snapshot application and generation bumps
	gen       int

	subsMu sync.Mutex
	subs   []Subscription

	stateMu  sync.RWMutex
	identity *domain.Identity
	mappings Mappings
}

// NewSynchronizer wires a synchronizer to its store. onChange receives the
// changed collection name after each mapping replacement; nil disables
// notifications (useful in tests).
func NewSynchronizer(store DocumentStore, notify Notifier, onChange func(collection string)) *Synchronizer {
	if notify == nil {
		notify = nopNotifier
	}
	return &Synchronizer{
		store:    store,
		notify:   notify,
		onChange: onChange,
		mappings: newMappings(),
	}
}

// Start tears down any previous subscriptions and opens one per tracked
// collection, scoped to the given identity. Attempts, tasks, and enrollments
// are filtered to the identity; the rest are unfiltered reads.
func (s *Synchronizer) Start(ctx context.Context, identity domain.Identity) {
	s.Teardown()

	s.deliverMu.Lock()
	s.gen++
	gen := s.gen
	s.deliverMu.Unlock()

	s.stateMu.Lock()
	id := identity
	s.identity = &id
	s.mappings = newMappings()
	s.stateMu.Unlock()

	for _, collection := range domain.TrackedCollections {
		collection := collection
		sub, err := s.store.Subscribe(ctx, collection, scopeFilter(collection, identity.ID), func(records []Record, err error) {
			s.apply(gen, collection, records, err)
		})
		if err != nil {
			log.Printf("subscribe %s failed: %v", collection, err)
			s.notify("error", "live updates unavailable for "+collection)
			continue
		}
		s.subsMu.Lock()
		s.subs = append(s.subs, sub)
		s.subsMu.Unlock()
	}
}

// Teardown releases every open subscription handle. The generation bump comes
// first so a snapshot already in flight is discarded rather than applied to
// the next session's mappings.
func (s *Synchronizer) Teardown() {
	s.deliverMu.Lock()
	s.gen++
	s.deliverMu.Unlock()

	s.subsMu.Lock()
	subs := s.subs
	s.subs = nil
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.Stop()
	}
}

// Reset tears down and clears all session state; invoked on sign-out.
func (s *Synchronizer) Reset() {
	s.Teardown()
	s.stateMu.Lock()
	s.identity = nil
	s.mappings = newMappings()
	s.stateMu.Unlock()
}

// scopeFilter returns the identity equality filter for per-user collections.
func scopeFilter(collection, userID string) *Filter {
	switch collection {
	case domain.ColAttempts, domain.ColTasks, domain.ColEnrollments:
		return &Filter{Field: "userId", Value: userID}
	default:
		return nil
	}
}

// apply replaces one collection's mapping with a delivered snapshot and then
// notifies the change listener. Replace happens strictly before notify so a
// render triggered by the notification always reads post-replacement state.
func (s *Synchronizer) apply(gen int, collection string, records []Record, err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if gen != s.gen {
		// Stale delivery from a torn-down subscription.
		return
	}
	if err != nil {
		// Keep the last-known mapping; stale data beats a blank view.
		log.Printf("subscription %s errored: %v", collection, err)
		s.notify("error", "lost live updates for "+collection)
		return
	}

	s.stateMu.Lock()
	s.replaceLocked(collection, records)
	s.stateMu.Unlock()

	if s.onChange != nil {
		s.onChange(collection)
	}
}

func (s *Synchronizer) replaceLocked(collection string, records []Record) {
	switch collection {
	case domain.ColProfiles:
		s.mappings.Profiles = decodeAll(collection, records, func(p *domain.Profile, id string) { p.ID = id })
	case domain.ColCourses:
		s.mappings.Courses = decodeAll(collection, records, func(c *domain.Course, id string) { c.ID = id })
	case domain.ColEnrollments:
		s.mappings.Enrollments = decodeAll(collection, records, func(e *domain.Enrollment, id string) { e.ID = id })
		enrolled := make(map[string]struct{}, len(s.mappings.Enrollments))
		for _, e := range s.mappings.Enrollments {
			enrolled[e.CourseID] = struct{}{}
		}
		s.mappings.EnrolledCourseIDs = enrolled
	case domain.ColQuizzes:
		s.mappings.Quizzes = decodeAll(collection, records, func(q *domain.Quiz, id string) { q.ID = id })
	case domain.ColAttempts:
		s.mappings.Attempts = decodeAll(collection, records, func(a *domain.Attempt, id string) { a.ID = id })
	case domain.ColTasks:
		s.mappings.Tasks = decodeAll(collection, records, func(t *domain.Task, id string) { t.ID = id })
	case domain.ColAnnouncements:
		s.mappings.Announcements = decodeAll(collection, records, func(a *domain.Announcement, id string) { a.ID = id })
	default:
		log.Printf("snapshot for untracked collection %s ignored", collection)
	}
}

// decodeAll builds a fresh mapping from delivered records. A record that fails
// to decode is skipped, not fatal.
func decodeAll[T any](collection string, records []Record, setID func(*T, string)) map[string]T {
	out := make(map[string]T, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			log.Printf("skipping malformed %s record %s: %v", collection, rec.ID, err)
			continue
		}
		setID(&v, rec.ID)
		out[rec.ID] = v
	}
	return out
}

// Identity returns the identity the current subscriptions are scoped to, or
// nil when signed out.
func (s *Synchronizer) Identity() *domain.Identity {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Snapshot returns the current mappings. The maps inside are safe to read
// without further locking because they are never mutated after publication.
func (s *Synchronizer) Snapshot() Mappings {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.mappings
}

// IsEnrolled checks the derived enrolled-course set for the active identity.
func (s *Synchronizer) IsEnrolled(courseID string) bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	_, ok := s.mappings.EnrolledCourseIDs[courseID]
	return ok
}
