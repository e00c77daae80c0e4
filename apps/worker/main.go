package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/masomo/lms/apps/api/di/dig"
	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/report"
	logsvc "github.com/masomo/lms/services/logger"
	"github.com/masomo/lms/storage/queue"
)

// The worker runs the queued report jobs and schedules the recurring ones.
func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		logger core.Logger,
		rollbar *logsvc.RollbarLogger,
		db *sqlx.DB,
		queueClient *queue.Client,
		reportSvc report.Service,
	) {
		logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))
		defer rollbar.Close()
		defer logger.Info("Worker stopped")

		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("closing database", err)
			}
			if err := queueClient.Close(); err != nil {
				logger.Error("closing queue client", err)
			}
		}()

		worker, err := queue.NewWorker(conf, logger, reportSvc)
		if err != nil {
			logger.Error("creating worker", err)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err = worker.Run(ctx); err != nil {
			logger.Error(fmt.Sprintf("worker error: %v", err), err)
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
