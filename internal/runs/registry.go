// Package runs tracks the lifecycle of submitted pipeline runs in memory.
package runs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownRun is returned for run IDs the registry has never seen.
var ErrUnknownRun = errors.New("unknown run")

// Run states.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Status is a snapshot of one run.
type Status struct {
	ID          string     `json:"id" msgpack:"id"`
	AOI         string     `json:"aoi" msgpack:"aoi"`
	Variant     string     `json:"variant" msgpack:"variant"`
	State       string     `json:"status" msgpack:"status"`
	Message     string     `json:"message,omitempty" msgpack:"message,omitempty"`
	Error       string     `json:"error,omitempty" msgpack:"error,omitempty"`
	CacheHit    bool       `json:"cache_hit" msgpack:"cache_hit"`
	SubmittedAt time.Time  `json:"submitted_at" msgpack:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" msgpack:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" msgpack:"finished_at,omitempty"`
}

func (s *Status) clone() *Status {
	c := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Registry manages run status in memory
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Status
	now  func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		runs: make(map[string]*Status),
		now:  time.Now,
	}
}

// Submit registers a queued run and returns its ID.
func (r *Registry) Submit(aoi, variant string) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[id] = &Status{
		ID:          id,
		AOI:         aoi,
		Variant:     variant,
		State:       StatusQueued,
		SubmittedAt: r.now(),
	}
	return id
}

// Start marks a run as running.
func (r *Registry) Start(id string) error {
	return r.update(id, func(s *Status) {
		t := r.now()
		s.State = StatusRunning
		s.StartedAt = &t
	})
}

// Progress records the stage a running run has reached.
func (r *Registry) Progress(id, message string) error {
	return r.update(id, func(s *Status) {
		s.Message = message
	})
}

// Succeed marks a run as finished.
func (r *Registry) Succeed(id string, cacheHit bool) error {
	return r.update(id, func(s *Status) {
		t := r.now()
		s.State = StatusSucceeded
		s.Message = ""
		s.CacheHit = cacheHit
		s.FinishedAt = &t
	})
}

// Fail marks a run as failed with err.
func (r *Registry) Fail(id string, err error) error {
	return r.update(id, func(s *Status) {
		t := r.now()
		s.State = StatusFailed
		s.Error = err.Error()
		s.FinishedAt = &t
	})
}

func (r *Registry) update(id string, fn func(*Status)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.runs[id]
	if !ok {
		return ErrUnknownRun
	}
	fn(s)
	return nil
}

// Get returns a copy of the status of run id.
func (r *Registry) Get(id string) (*Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.runs[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// List returns copies of every run status, oldest submission first.
func (r *Registry) List() []*Status {
	r.mu.RLock()
	out := make([]*Status, 0, len(r.runs))
	for _, s := range r.runs {
		out = append(out, s.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}
