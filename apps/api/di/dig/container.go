package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	echoapi "github.com/masomo/lms/apps/api/echo"
	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/report"
	"github.com/masomo/lms/core/user"
	emailsvc "github.com/masomo/lms/services/email"
	logsvc "github.com/masomo/lms/services/logger"
	"github.com/masomo/lms/storage/database"
	sqlxrepos "github.com/masomo/lms/storage/database/sqlx"
	"github.com/masomo/lms/storage/queue"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *sqlx.DB
	Redis      redis.UniversalClient
	UserSvc    user.Service
	DeptSvc    department.Service
	ReportSvc  report.Service
}

func newRollbarLogger(conf *core.Config, prefix string, flags int) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, prefix, flags), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newLogger(conf *core.Config) (core.Logger, *logsvc.RollbarLogger) {
	logger := newRollbarLogger(conf, "APP : ", log.LstdFlags)
	return logger, logger
}

func newDBLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newRedis(conf *core.Config) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

func newQueueClient(conf *core.Config) (*queue.Client, report.Enqueuer) {
	client := queue.NewClient(conf)
	return client, client
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(conf *core.Config, logger core.Logger) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	department.InitValidators(validate, translator)
	report.InitValidators(validate, translator)

	if conf.CommonPasswordsPath != "" {
		if err := user.LoadCommonPasswords(conf.CommonPasswordsPath); err != nil {
			logger.Error("loading common passwords", err)
		}
	}
	return validate, translator
}

func newServerDeps(p serverParams) *echoapi.Deps {
	return &echoapi.Deps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		DB:         p.DB,
		Redis:      p.Redis,
		UserSvc:    p.UserSvc,
		DeptSvc:    p.DeptSvc,
		ReportSvc:  p.ReportSvc,
	}
}

// New returns a new dependency injection dig.Container.
// Dependencies are only built when an Invoke needs them.
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRedis))
	must(c.Provide(newQueueClient))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))

	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewDepartmentRepository))
	must(c.Provide(sqlxrepos.NewReportJobRepository))

	must(c.Provide(user.NewService))
	must(c.Provide(department.NewService))
	must(c.Provide(report.NewCSVGenerator))
	must(c.Provide(report.NewService))

	must(c.Provide(newServerDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
