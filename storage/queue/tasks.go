// Package queue runs report jobs through asynq (redis backed task queue).
package queue

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/report"
)

// NewGenerateTask builds the task that runs the report job jobID.
func NewGenerateTask(jobID string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(report.TaskPayload{JobID: jobID})
	if err != nil {
		return nil, errors.Wrap(err, "marshalling task payload")
	}
	return asynq.NewTask(report.TaskGenerate, payload, opts...), nil
}

// ParseGeneratePayload decodes the payload of a report.TaskGenerate task.
func ParseGeneratePayload(task *asynq.Task) (report.TaskPayload, error) {
	var payload report.TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, errors.Wrap(err, "unmarshalling task payload")
	}
	if payload.JobID == "" {
		return payload, errors.New("task payload has no job_id")
	}
	return payload, nil
}

// NewGenerateHandler returns the handler of report.TaskGenerate tasks.
// Malformed payloads and deleted jobs are not retried.
func NewGenerateHandler(svc report.Service, logger core.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParseGeneratePayload(task)
		if err != nil {
			logger.Error("invalid report task", err)
			return errors.Wrap(asynq.SkipRetry, err.Error())
		}
		if err = svc.Run(ctx, payload.JobID); err != nil {
			if errors.Cause(err) == core.ErrNotFound {
				logger.Warn("report job not found", map[string]interface{}{"job_id": payload.JobID})
				return errors.Wrap(asynq.SkipRetry, "report job not found")
			}
			return err
		}
		return nil
	}
}
