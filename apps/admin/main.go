package main

import (
	"context"
	"log"
	"os"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	logsvc "github.com/masomo/lms/services/logger"
	"github.com/masomo/lms/storage/database"
	sqlxrepos "github.com/masomo/lms/storage/database/sqlx"
)

func main() {
	stdLogger := log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		stdLogger.Fatal(err)
	}
	db, err := database.Open(conf)
	if err != nil {
		stdLogger.Fatal(err)
	}
	if err = database.Ping(ctx, db); err != nil {
		stdLogger.Fatal(err)
	}

	// start CLI
	cli := commandLine{
		usrRepo: sqlxrepos.NewUserRepository(db),
		deptSvc: department.NewService(conf, logger, sqlxrepos.NewDepartmentRepository(db)),
		migrate: func(ctx context.Context, command string, args ...string) error {
			return database.Migrate(ctx, db, command, args...)
		},
		out: os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()

	if err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
