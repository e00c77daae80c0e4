package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/report"
)

// RecurringConfigProvider feeds the periodic task manager with the recurring report jobs.
type RecurringConfigProvider struct {
	conf *core.Config
	svc  report.Service
}

var _ asynq.PeriodicTaskConfigProvider = (*RecurringConfigProvider)(nil)

func NewRecurringConfigProvider(conf *core.Config, svc report.Service) *RecurringConfigProvider {
	return &RecurringConfigProvider{conf: conf, svc: svc}
}

func (p *RecurringConfigProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	jobs, err := p.svc.RecurringJobs(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "listing recurring report jobs")
	}

	configs := make([]*asynq.PeriodicTaskConfig, 0, len(jobs))
	for _, job := range jobs {
		task, err := NewGenerateTask(job.ID)
		if err != nil {
			return nil, err
		}
		configs = append(configs, &asynq.PeriodicTaskConfig{
			Cronspec: job.Schedule,
			Task:     task,
			Opts:     taskOptions(p.conf),
		})
	}
	return configs, nil
}

// Worker processes the report tasks and schedules the recurring ones.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	manager *asynq.PeriodicTaskManager
	logger  core.Logger
}

func NewWorker(conf *core.Config, logger core.Logger, svc report.Service) (*Worker, error) {
	opt := RedisOpt(conf)
	alog := asynqLogger{logger: logger}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{conf.Reports.Queue: 1},
		Logger:      alog,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("report task failed", err, map[string]interface{}{"type": task.Type()})
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(report.TaskGenerate, NewGenerateHandler(svc, logger))

	manager, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               opt,
		PeriodicTaskConfigProvider: NewRecurringConfigProvider(conf, svc),
		SyncInterval:               time.Minute,
		SchedulerOpts:              &asynq.SchedulerOpts{Location: time.UTC, Logger: alog},
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating periodic task manager")
	}
	return &Worker{server: srv, mux: mux, manager: manager, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return errors.Wrap(err, "starting worker")
	}
	if err := w.manager.Start(); err != nil {
		w.server.Shutdown()
		return errors.Wrap(err, "starting periodic task manager")
	}
	w.logger.Info("report worker started")

	<-ctx.Done()
	w.manager.Shutdown()
	w.server.Shutdown()
	return nil
}

// asynqLogger forwards asynq logs to a core.Logger.
type asynqLogger struct {
	logger core.Logger
}

var _ asynq.Logger = asynqLogger{}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal(fmt.Sprint(args...)) }
