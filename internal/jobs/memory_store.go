package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job // by key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Jobs returns a snapshot of every stored job ordered by fire time.
func (m *MemoryStore) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sortByFireAt(out)
	return out
}

func (m *MemoryStore) Enqueue(_ context.Context, job Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.Key]; ok {
		return false, nil
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.State = StatePending
	job.Attempts = 0
	m.jobs[job.Key] = &job
	return true, nil
}

func (m *MemoryStore) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Job
	for _, j := range m.jobs {
		pending := j.State == StatePending && !j.FireAt.After(now)
		expired := j.State == StateRunning && j.LockedUntil != nil && j.LockedUntil.Before(now)
		if pending || expired {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].FireAt.Before(due[b].FireAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	until := now.Add(lease)
	out := make([]Job, 0, len(due))
	for _, j := range due {
		j.State = StateRunning
		j.Attempts++
		j.LockedUntil = &until
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

func (m *MemoryStore) Complete(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.update(id, func(j *Job) {
		j.State = StateDone
		j.LockedUntil = nil
		j.UpdatedAt = at
	})
}

func (m *MemoryStore) Retry(_ context.Context, id uuid.UUID, at, next time.Time, reason string) error {
	return m.update(id, func(j *Job) {
		j.State = StatePending
		j.FireAt = next
		j.LastError = &reason
		j.LockedUntil = nil
		j.UpdatedAt = at
	})
}

func (m *MemoryStore) Fail(_ context.Context, id uuid.UUID, at time.Time, reason string) error {
	return m.update(id, func(j *Job) {
		j.State = StateFailed
		j.LastError = &reason
		j.LockedUntil = nil
		j.UpdatedAt = at
	})
}

func (m *MemoryStore) GetByKey(_ context.Context, key string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[key]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) update(id uuid.UUID, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			fn(j)
			return nil
		}
	}
	return ErrJobNotFound
}

func sortByFireAt(jobs []Job) {
	sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].FireAt.Before(jobs[b].FireAt) })
}
