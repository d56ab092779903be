package service

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
	"github.com/gilchrisn/mortality-clustering-service/pkg/pipeline"
)

func records() []models.Record {
	return []models.Record{
		{UnitNum: 1, StubNameNum: 0, StubLabelNum: 0.1, YearNum: 1, Estimate: 20.2},
		{UnitNum: 1, StubNameNum: 0, StubLabelNum: 0.1, YearNum: 2, Estimate: 19.9},
		{UnitNum: 1, StubNameNum: 0, StubLabelNum: 0.1, YearNum: 3, Estimate: 20.9},
	}
}

func newService(t *testing.T, workers int) *JobService {
	s := NewJobService(pipeline.New(nil, zerolog.Nop(), nil), workers)
	t.Cleanup(s.Close)
	return s
}

func waitFinished(t *testing.T, s *JobService, id string) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = s.Get(id)
		return err == nil && job.Finished()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestSubmitCompletes(t *testing.T) {
	s := newService(t, 2)

	job, err := s.Submit(records(), "louvain")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 3, job.Records)

	done := waitFinished(t, s, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress.Percentage)
	require.NotNil(t, done.Result)
	assert.Equal(t, 1, done.Result.Groups)
	assert.Equal(t, 1, done.Result.NumCommunities)
	assert.NotNil(t, done.StartedAt)

	report, err := s.GetResult(job.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Result.RunID, report.RunID)
}

func TestSubmitRejectsUnknownAlgorithm(t *testing.T) {
	s := newService(t, 1)

	_, err := s.Submit(records(), "kmeans")
	assert.True(t, errors.Is(err, pipeline.ErrUnknownAlgorithm))
	assert.Empty(t, s.List())
}

func TestCancelQueuedJob(t *testing.T) {
	s := newService(t, 1)
	// occupy the only worker slot
	s.workers <- struct{}{}

	job, err := s.Submit(records(), "labelprop")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	require.NoError(t, s.Cancel(job.ID))
	<-s.workers

	cancelled := waitFinished(t, s, job.ID)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.Result)

	_, err = s.GetResult(job.ID)
	assert.True(t, errors.Is(err, ErrResultNotReady))
}

func TestUnknownJob(t *testing.T) {
	s := newService(t, 1)

	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))
	_, err = s.GetResult("missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))
	assert.True(t, errors.Is(s.Cancel("missing"), ErrJobNotFound))
}

func TestCleanupRemovesExpiredJobs(t *testing.T) {
	s := newService(t, 1)

	job, err := s.Submit(records(), "louvain")
	require.NoError(t, err)
	waitFinished(t, s, job.ID)
	require.Len(t, s.List(), 1)

	s.cleanup(time.Now())
	assert.Len(t, s.List(), 1)

	s.cleanup(time.Now().Add(2 * s.jobTTL))
	assert.Empty(t, s.List())
	_, err = s.GetResult(job.ID)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}
