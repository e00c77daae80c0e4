package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/report"
)

// RedisOpt returns the asynq connection options from conf.
func RedisOpt(conf *core.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	}
}

// Client queues report jobs. It implements report.Enqueuer.
type Client struct {
	conf      *core.Config
	client    *asynq.Client
	inspector *asynq.Inspector
}

var _ report.Enqueuer = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	opt := RedisOpt(conf)
	return &Client{
		conf:      conf,
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// taskOptions are shared by one-off and periodic tasks.
func taskOptions(conf *core.Config) []asynq.Option {
	opts := []asynq.Option{asynq.Queue(conf.Reports.Queue)}
	if conf.Reports.MaxRetry >= 0 {
		opts = append(opts, asynq.MaxRetry(conf.Reports.MaxRetry))
	}
	if conf.Reports.Timeout > 0 {
		opts = append(opts, asynq.Timeout(conf.Reports.Timeout))
	}
	return opts
}

// enqueueOptions adds the job run time when it is in the future.
func enqueueOptions(conf *core.Config, job report.Job, now time.Time) []asynq.Option {
	opts := taskOptions(conf)
	if job.RunAt.After(now) {
		opts = append(opts, asynq.ProcessAt(job.RunAt))
	}
	return opts
}

func (c *Client) Enqueue(ctx context.Context, job report.Job) (string, error) {
	task, err := NewGenerateTask(job.ID)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, enqueueOptions(c.conf, job, time.Now())...)
	if err != nil {
		return "", errors.Wrap(err, "enqueuing report task")
	}
	return info.ID, nil
}

// Cancel deletes the queued task of job. Tasks already gone are ignored.
func (c *Client) Cancel(_ context.Context, job report.Job) error {
	if job.TaskID == "" {
		return nil
	}
	err := c.inspector.DeleteTask(c.conf.Reports.Queue, job.TaskID)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return errors.Wrap(err, "deleting report task")
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.inspector.Close(); err != nil {
		return errors.Wrap(err, "closing inspector")
	}
	return errors.Wrap(c.client.Close(), "closing client")
}
