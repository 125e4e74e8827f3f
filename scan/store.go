package scan

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zero-day-ai/audityzer/finding"
)

// Common errors returned by store operations.
var (
	// ErrNotFound is returned when no job has the requested id.
	ErrNotFound = errors.New("scan: job not found")

	// ErrDuplicateID is returned when adding a job whose id is already stored.
	ErrDuplicateID = errors.New("scan: duplicate job id")

	// ErrInvalidTransition is returned when an update violates the state machine.
	ErrInvalidTransition = errors.New("scan: invalid status transition")

	// ErrInvalidJob is returned when a job violates its structural invariants.
	ErrInvalidJob = errors.New("scan: invalid job")
)

// ChangeKind identifies what happened to a job.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
)

// Change describes one store mutation delivered to subscribers.
type Change struct {
	Kind ChangeKind
	Job  Job

	// Previous is the replaced record for updates, nil for additions.
	Previous *Job
}

// Listener receives store changes. Listeners run synchronously after the
// mutation is visible and in mutation order. A listener may read the store
// but must not mutate it.
type Listener func(Change)

// Store owns the scan job collection.
//
// Every mutation replaces a whole record keyed by id under the store lock, so
// two jobs completing at the same time cannot overwrite each other's state.
// Store is safe for concurrent use.
type Store struct {
	// emitMu serialises mutations with listener delivery so that listeners
	// observe changes in the order they were applied.
	emitMu sync.Mutex

	mu    sync.RWMutex
	jobs  map[string]Job
	order []string // newest first

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		jobs:      make(map[string]Job),
		listeners: make(map[int]Listener),
	}
}

// Add inserts a new, non-terminal job.
func (s *Store) Add(job Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: new jobs must be %s or %s", ErrInvalidJob, StatusPending, StatusRunning)
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	s.jobs[job.ID] = job.clone()
	s.order = append([]string{job.ID}, s.order...)
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeAdded, Job: job.clone()})
	return nil
}

// Update atomically replaces the job with the given id by the record fn
// returns. fn receives a copy of the current record. The replacement must
// keep the id, satisfy the job invariants and follow the state machine when
// the status changes.
func (s *Store) Update(id string, fn func(Job) (Job, error)) (Job, error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	current, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next, err := fn(current.clone())
	if err != nil {
		s.mu.Unlock()
		return Job{}, err
	}
	if next.ID != current.ID {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("%w: id changed from %s to %s", ErrInvalidJob, current.ID, next.ID)
	}
	if next.Status != current.Status && !current.Status.CanTransition(next.Status) {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	next = next.clone()
	s.jobs[id] = next
	s.mu.Unlock()

	prev := current.clone()
	s.emit(Change{Kind: ChangeUpdated, Job: next.clone(), Previous: &prev})
	return next.clone(), nil
}

// MarkRunning moves a pending job to Running.
func (s *Store) MarkRunning(id string) (Job, error) {
	return s.transition(id, StatusRunning, func(j *Job) {})
}

// MarkCompleted moves a running job to Completed and attaches its result.
func (s *Store) MarkCompleted(id string, result *finding.AuditResult, at time.Time) (Job, error) {
	if result == nil {
		return Job{}, fmt.Errorf("%w: completed jobs require a result", ErrInvalidJob)
	}
	return s.transition(id, StatusCompleted, func(j *Job) {
		j.CompletedAt = &at
		j.Result = result
	})
}

// MarkFailed moves a running job to Failed. Failed jobs carry no result.
func (s *Store) MarkFailed(id string, at time.Time) (Job, error) {
	return s.transition(id, StatusFailed, func(j *Job) {
		j.CompletedAt = &at
		j.Result = nil
	})
}

func (s *Store) transition(id string, to Status, apply func(*Job)) (Job, error) {
	return s.Update(id, func(j Job) (Job, error) {
		if !j.Status.CanTransition(to) {
			return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
		}
		j.Status = to
		apply(&j)
		return j, nil
	})
}

// Get returns a copy of the job with the given id.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j.clone(), ok
}

// Snapshot returns all jobs, newest first. The slice is owned by the caller.
func (s *Store) Snapshot() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].clone())
	}
	return out
}

// Lookup returns the jobs with the given ids in the order requested,
// skipping ids that are not stored.
func (s *Store) Lookup(ids []string) []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := s.jobs[id]; ok {
			out = append(out, j.clone())
		}
	}
	return out
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenerMu.Lock()
			delete(s.listeners, id)
			s.listenerMu.Unlock()
		})
	}
}

// emit delivers a change to the current listeners. Callers hold emitMu.
func (s *Store) emit(c Change) {
	s.listenerMu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.listenerMu.RUnlock()

	// Deliver in registration order.
	slices.Sort(ids)
	for _, id := range ids {
		s.listenerMu.RLock()
		l, ok := s.listeners[id]
		s.listenerMu.RUnlock()
		if ok {
			l(c)
		}
	}
}
