package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
	cachesvc "github.com/trezcool/bursar/services/cache"
	eventsvc "github.com/trezcool/bursar/services/events"
	logsvc "github.com/trezcool/bursar/services/logger"
	"github.com/trezcool/bursar/storage/database"
	boiledrepos "github.com/trezcool/bursar/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/bursar/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, core.DB) {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

// newStudentDirectory reads students from the database, through the redis cache when one is configured.
func newStudentDirectory(conf *core.Config, db core.DB, logger core.Logger) fees.StudentDirectory {
	students := boiledrepos.NewStudentRepository(db)
	if conf.Redis.Addr == "" {
		return students
	}
	return cachesvc.NewStudentDirectory(students, cachesvc.NewRedisClient(conf), conf, logger)
}

func newEventPublisher(conf *core.Config, logger core.Logger) fees.EventPublisher {
	if len(conf.Kafka.Brokers) == 0 {
		return eventsvc.NewLogPublisher(logger)
	}
	return eventsvc.NewKafkaPublisher(conf)
}

type feeServiceParams struct {
	dig.In

	Conf      *core.Config
	Logger    core.Logger
	Ledger    fees.LedgerRepository
	Schedules fees.FeeScheduleRepository
	Students  fees.StudentDirectory
	Publisher fees.EventPublisher
	Validate  *validator.Validate
}

func newFeeService(p feeServiceParams) fees.ServiceInterface {
	return fees.NewService(fees.ServiceDeps{
		Ledger:    p.Ledger,
		Schedules: p.Schedules,
		Students:  p.Students,
		Publisher: p.Publisher,
		Logger:    p.Logger,
		Validate:  p.Validate,
		Conf:      p.Conf,
	})
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	FeeSvc     fees.ServiceInterface
	Validate   *validator.Validate
	Translator ut.Translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		FeeSvc:     p.FeeSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewLedgerRepository, dig.As(new(fees.LedgerRepository))))
	must(c.Provide(boiledrepos.NewFeeScheduleRepository, dig.As(new(fees.FeeScheduleRepository))))
	must(c.Provide(newStudentDirectory))
	must(c.Provide(newEventPublisher))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(newFeeService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
