package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/dental-report-ai/internal/intake"
)

// MemoryJobStore keeps jobs in process for local runs without DynamoDB.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]JobRecord
}

var _ JobRecorder = (*MemoryJobStore)(nil)
var _ JobUpdater = (*MemoryJobStore)(nil)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]JobRecord)}
}

func (s *MemoryJobStore) PutPending(_ context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("jobs: job cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("jobs: job %s already exists", job.JobID)
	}
	stampPending(job, time.Now().UTC())
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID string, report *intake.Report) error {
	return s.update(jobID, func(job *JobRecord) {
		job.Status = StatusCompleted
		job.Report = storedReport(report)
		job.ErrorMessage = ""
	})
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	return s.update(jobID, func(job *JobRecord) {
		job.Status = StatusFailed
		job.Report = nil
		job.ErrorMessage = errMsg
	})
}

func (s *MemoryJobStore) update(jobID string, fn func(*JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.jobs[jobID] = job
	return nil
}
