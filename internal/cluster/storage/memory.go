package storage

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/qstream-io/qstream/internal/cluster/core"
)

type InMemoryJobStore struct {
	mu          sync.RWMutex
	jobs        map[string]*core.Job
	assignments map[string]*core.Assignment // jobID -> key group assignment
}

func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobs:        make(map[string]*core.Job),
		assignments: make(map[string]*core.Assignment),
	}
}

// Jobs are stored and returned by value so writers and pollers never share
// a mutable record.
func (s *InMemoryJobStore) SaveJob(job *core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *job
	s.jobs[job.ID.String()] = &snapshot
	return nil
}

func (s *InMemoryJobStore) UpdateJob(job *core.Job) error {
	return s.SaveJob(job)
}

func (s *InMemoryJobStore) GetJobByID(id uuid.UUID) (*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[id.String()]
	if !exists {
		return nil, nil
	}
	snapshot := *job
	return &snapshot, nil
}

func (s *InMemoryJobStore) ListJobs() ([]*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]*core.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs, nil
}

func (s *InMemoryJobStore) GetJobs(filter core.JobFilter) ([]*core.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]*core.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		snapshot := *job
		filtered = append(filtered, &snapshot)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].SubmittedAt.Before(filtered[j].SubmittedAt)
	})

	total := len(filtered)
	if filter.Offset >= total {
		return []*core.Job{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return filtered[filter.Offset:end], total, nil
}

func (s *InMemoryJobStore) SaveAssignment(jobID uuid.UUID, assignment *core.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[jobID.String()] = assignment
	return nil
}

func (s *InMemoryJobStore) GetAssignment(jobID uuid.UUID) (*core.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignment, exists := s.assignments[jobID.String()]
	if !exists {
		return nil, nil
	}
	return assignment, nil
}

func (s *InMemoryJobStore) DeleteAssignment(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, jobID.String())
	return nil
}
