package queue

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/report"
	logsvc "github.com/masomo/lms/services/logger"
)

type fakeReportService struct {
	report.Service // unused methods panic

	ran       []string
	runErr    error
	recurring []report.Job
}

func (svc *fakeReportService) Run(_ context.Context, id string) error {
	svc.ran = append(svc.ran, id)
	return svc.runErr
}

func (svc *fakeReportService) RecurringJobs(context.Context) ([]report.Job, error) {
	return svc.recurring, nil
}

func optionTypes(opts []asynq.Option) map[asynq.OptionType]interface{} {
	types := make(map[asynq.OptionType]interface{}, len(opts))
	for _, opt := range opts {
		types[opt.Type()] = opt.Value()
	}
	return types
}

func TestGenerateTask(t *testing.T) {
	task, err := NewGenerateTask("job-1")
	require.NoError(t, err)
	assert.Equal(t, report.TaskGenerate, task.Type())

	payload, err := ParseGeneratePayload(task)
	require.NoError(t, err)
	assert.Equal(t, "job-1", payload.JobID)

	_, err = ParseGeneratePayload(asynq.NewTask(report.TaskGenerate, []byte("{")))
	assert.Error(t, err)
	_, err = ParseGeneratePayload(asynq.NewTask(report.TaskGenerate, []byte("{}")))
	assert.Error(t, err)
}

func TestGenerateHandler(t *testing.T) {
	ctx := context.Background()
	task, err := NewGenerateTask("job-1")
	require.NoError(t, err)

	t.Run("runs the job", func(t *testing.T) {
		svc := new(fakeReportService)
		require.NoError(t, NewGenerateHandler(svc, logsvc.NopLogger{})(ctx, task))
		assert.Equal(t, []string{"job-1"}, svc.ran)
	})

	t.Run("generation errors are retried", func(t *testing.T) {
		svc := &fakeReportService{runErr: errors.New("boom")}
		err := NewGenerateHandler(svc, logsvc.NopLogger{})(ctx, task)
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("missing jobs are not retried", func(t *testing.T) {
		svc := &fakeReportService{runErr: errors.Wrap(core.ErrNotFound, "finding report job")}
		err := NewGenerateHandler(svc, logsvc.NopLogger{})(ctx, task)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("malformed payloads are not retried", func(t *testing.T) {
		svc := new(fakeReportService)
		err := NewGenerateHandler(svc, logsvc.NopLogger{})(ctx, asynq.NewTask(report.TaskGenerate, []byte("nope")))
		assert.True(t, errors.Is(err, asynq.SkipRetry))
		assert.Empty(t, svc.ran)
	})
}

func TestEnqueueOptions(t *testing.T) {
	conf := core.NewTestConfig()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	opts := optionTypes(enqueueOptions(conf, report.Job{RunAt: now}, now))
	assert.Equal(t, conf.Reports.Queue, opts[asynq.QueueOpt])
	assert.Equal(t, conf.Reports.MaxRetry, opts[asynq.MaxRetryOpt])
	assert.Equal(t, conf.Reports.Timeout, opts[asynq.TimeoutOpt])
	assert.NotContains(t, opts, asynq.ProcessAtOpt)

	later := now.Add(time.Hour)
	opts = optionTypes(enqueueOptions(conf, report.Job{RunAt: later}, now))
	assert.Equal(t, later, opts[asynq.ProcessAtOpt])
}

func TestRecurringConfigProvider(t *testing.T) {
	conf := core.NewTestConfig()
	svc := &fakeReportService{recurring: []report.Job{
		{ID: "weekly", Schedule: "0 8 * * 1"},
		{ID: "daily", Schedule: "@daily"},
	}}

	configs, err := NewRecurringConfigProvider(conf, svc).GetConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, "0 8 * * 1", configs[0].Cronspec)
	payload, err := ParseGeneratePayload(configs[0].Task)
	require.NoError(t, err)
	assert.Equal(t, "weekly", payload.JobID)
	assert.Equal(t, conf.Reports.Queue, optionTypes(configs[0].Opts)[asynq.QueueOpt])

	assert.Equal(t, "@daily", configs[1].Cronspec)
}
