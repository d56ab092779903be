// Package service runs clustering jobs in the background for the HTTP API.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
	"github.com/gilchrisn/mortality-clustering-service/pkg/pipeline"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrResultNotReady = errors.New("result not available")
)

// JobService handles background job processing
type JobService struct {
	jobs     map[string]*models.Job
	results  map[string]*pipeline.Report
	cancels  map[string]context.CancelFunc
	workers  chan struct{}
	pipeline *pipeline.Pipeline
	mutex    sync.RWMutex

	jobTTL          time.Duration
	jobTimeout      time.Duration
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewJobService creates a job service running at most maxWorkers jobs at once
func NewJobService(p *pipeline.Pipeline, maxWorkers int) *JobService {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	service := &JobService{
		jobs:            make(map[string]*models.Job),
		results:         make(map[string]*pipeline.Report),
		cancels:         make(map[string]context.CancelFunc),
		workers:         make(chan struct{}, maxWorkers),
		pipeline:        p,
		jobTTL:          time.Hour,
		jobTimeout:      10 * time.Minute,
		cleanupInterval: 5 * time.Minute,
		stop:            make(chan struct{}),
	}

	go service.cleanupLoop()

	return service
}

// Close stops the cleanup loop and cancels running jobs
func (s *JobService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
}

// Submit creates and queues a new clustering job
func (s *JobService) Submit(records []models.Record, algorithm string) (*models.Job, error) {
	if err := pipeline.ValidateAlgorithm(algorithm); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)

	now := time.Now()
	job := &models.Job{
		ID:        uuid.New().String(),
		Algorithm: algorithm,
		Records:   len(records),
		Status:    models.JobStatusQueued,
		Progress: models.JobProgress{
			Percentage: 0,
			Message:    "Queued",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mutex.Lock()
	s.jobs[job.ID] = job
	s.cancels[job.ID] = cancel
	s.mutex.Unlock()

	log.Info().
		Str("job_id", job.ID).
		Str("algorithm", algorithm).
		Int("records", len(records)).
		Msg("Job submitted")

	go s.processJob(ctx, job.ID, records)

	return s.Get(job.ID)
}

// Get returns a snapshot of a job
func (s *JobService) Get(jobID string) (*models.Job, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, errors.Wrapf(ErrJobNotFound, "%s", jobID)
	}

	snapshot := *job
	return &snapshot, nil
}

// GetResult returns the report of a completed job
func (s *JobService) GetResult(jobID string) (*pipeline.Report, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if _, exists := s.jobs[jobID]; !exists {
		return nil, errors.Wrapf(ErrJobNotFound, "%s", jobID)
	}
	result, exists := s.results[jobID]
	if !exists {
		return nil, errors.Wrapf(ErrResultNotReady, "job %s", jobID)
	}
	return result, nil
}

// List returns snapshots of all jobs, newest first
func (s *JobService) List() []*models.Job {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sortJobs(jobs)
	return jobs
}

// Cancel stops a queued or running job
func (s *JobService) Cancel(jobID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return errors.Wrapf(ErrJobNotFound, "%s", jobID)
	}

	if !job.Finished() {
		job.Status = models.JobStatusCancelled
		job.Progress.Message = "Cancelled"
		now := time.Now()
		job.CompletedAt = &now
		job.UpdatedAt = now
		if cancel, ok := s.cancels[jobID]; ok {
			cancel()
		}

		log.Info().
			Str("job_id", jobID).
			Msg("Job cancelled")
	}

	return nil
}

// processJob processes a job in the background
func (s *JobService) processJob(ctx context.Context, jobID string, records []models.Record) {
	defer s.release(jobID)

	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-ctx.Done():
		s.failJob(jobID, ctx.Err())
		return
	}

	startTime := time.Now()
	algorithm, ok := s.start(jobID, startTime)
	if !ok {
		return
	}

	progress := func(done, total int, group string) {
		s.updateJobStatus(jobID, done*100/total, "Clustered "+group)
	}

	report, err := s.pipeline.RunWithProgress(ctx, records, algorithm, progress)
	if err != nil {
		s.failJob(jobID, errors.Wrap(err, "pipeline failed"))
		return
	}

	s.completeJob(jobID, report)
}

// start moves a queued job to running. It reports false when the job is
// gone or was cancelled while queued.
func (s *JobService) start(jobID string, startTime time.Time) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != models.JobStatusQueued {
		return "", false
	}

	job.Status = models.JobStatusRunning
	job.Progress.Message = "Starting..."
	job.StartedAt = &startTime
	job.UpdatedAt = startTime

	log.Info().
		Str("job_id", jobID).
		Str("algorithm", job.Algorithm).
		Msg("Job processing started")

	return job.Algorithm, true
}

func (s *JobService) release(jobID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
		delete(s.cancels, jobID)
	}
}

// updateJobStatus updates job progress of a running job
func (s *JobService) updateJobStatus(jobID string, percentage int, message string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != models.JobStatusRunning {
		return
	}

	job.Progress.Percentage = percentage
	job.Progress.Message = message
	job.UpdatedAt = time.Now()

	log.Debug().
		Str("job_id", jobID).
		Int("percentage", percentage).
		Str("message", message).
		Msg("Job status updated")
}

// completeJob marks a job as completed with results
func (s *JobService) completeJob(jobID string, report *pipeline.Report) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != models.JobStatusRunning {
		return
	}

	result := &models.JobResult{
		RunID:            report.RunID,
		Groups:           len(report.Groups),
		ProcessingTimeMS: report.RuntimeMS,
	}
	nonEmpty := 0
	for _, g := range report.Groups {
		result.NumCommunities += g.Clustering.NumCommunities
		if len(g.Clustering.Partition) > 0 {
			result.MeanModularity += g.Clustering.Modularity
			nonEmpty++
		}
	}
	if nonEmpty > 0 {
		result.MeanModularity /= float64(nonEmpty)
	}

	job.Status = models.JobStatusCompleted
	job.Progress.Percentage = 100
	job.Progress.Message = "Complete"
	now := time.Now()
	job.CompletedAt = &now
	job.UpdatedAt = now
	job.Result = result

	s.results[jobID] = report

	log.Info().
		Str("job_id", jobID).
		Str("run_id", report.RunID).
		Int("groups", result.Groups).
		Int64("processing_time_ms", result.ProcessingTimeMS).
		Msg("Job completed successfully")
}

// failJob marks a job as failed unless it was already cancelled
func (s *JobService) failJob(jobID string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Finished() {
		return
	}

	job.Status = models.JobStatusFailed
	job.Error = err.Error()
	job.Progress.Message = "Failed"
	now := time.Now()
	job.CompletedAt = &now
	job.UpdatedAt = now

	log.Error().
		Str("job_id", jobID).
		Err(err).
		Msg("Job failed")
}

// cleanupLoop periodically cleans up old jobs and results
func (s *JobService) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stop:
			return
		}
	}
}

// cleanup removes finished jobs not updated within the TTL
func (s *JobService) cleanup(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := now.Add(-s.jobTTL)
	cleaned := 0

	for jobID, job := range s.jobs {
		if job.Finished() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, jobID)
			delete(s.results, jobID)
			cleaned++
		}
	}

	if cleaned > 0 {
		log.Info().
			Int("cleaned_jobs", cleaned).
			Msg("Job cleanup completed")
	}
}

func sortJobs(jobs []*models.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
