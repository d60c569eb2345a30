package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{name: "morning", input: "05:00", want: ScheduleTime{Hour: 5, Minute: 0}},
		{name: "evening", input: "23:45", want: ScheduleTime{Hour: 23, Minute: 45}},
		{name: "hour out of range", input: "24:00", wantErr: true},
		{name: "minute out of range", input: "12:60", wantErr: true},
		{name: "not a time", input: "noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RejectsEmptyAndInvalidSchedules(t *testing.T) {
	_, err := New(Config{ScheduleTimes: nil, WorkerCount: 1, QueueSize: 1}, testLogger())
	assert.Error(t, err)

	_, err = New(Config{ScheduleTimes: []string{"25:00"}, WorkerCount: 1, QueueSize: 1}, testLogger())
	assert.Error(t, err)
}

func TestShouldRun_FiresOncePerScheduledMinute(t *testing.T) {
	s, err := New(Config{
		ScheduleTimes: []string{"05:00", "17:00"},
		WorkerCount:   1,
		QueueSize:     1,
	}, testLogger())
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 5, 0, 12, 0, time.UTC)
	assert.True(t, s.shouldRun(at))

	// Second tick within the same minute must not fire again.
	assert.False(t, s.shouldRun(at.Add(30*time.Second)))

	// Unscheduled minute.
	assert.False(t, s.shouldRun(time.Date(2026, 3, 1, 5, 1, 0, 0, time.UTC)))

	// Same wall time next day fires again.
	assert.True(t, s.shouldRun(at.AddDate(0, 0, 1)))
}

type countingJob struct {
	mu   sync.Mutex
	runs int
}

func (j *countingJob) Execute(ctx context.Context) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	return nil
}

func (j *countingJob) Key() string         { return "counting" }
func (j *countingJob) Description() string { return "counting job" }

func (j *countingJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func TestScheduler_RunOnStartupExecutesJobs(t *testing.T) {
	job := &countingJob{}

	s, err := New(Config{
		ScheduleTimes: []string{"05:00"},
		WorkerCount:   1,
		QueueSize:     10,
		RunOnStartup:  true,
		JobProvider: func(ctx context.Context) ([]Job, error) {
			return []Job{job}, nil
		},
	}, testLogger())
	require.NoError(t, err)

	s.Start()
	defer s.Shutdown(5 * time.Second)

	deadline := time.After(5 * time.Second)
	for job.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("job did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
