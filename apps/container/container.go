// Package container builds the application services from a core.Config.
package container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/classroom"
	"github.com/trezcool/classdrive/core/document"
	"github.com/trezcool/classdrive/core/session"
	"github.com/trezcool/classdrive/core/user"
	emailsvc "github.com/trezcool/classdrive/services/email"
	logsvc "github.com/trezcool/classdrive/services/logger"
	"github.com/trezcool/classdrive/storage/cache"
	"github.com/trezcool/classdrive/storage/objectstore/b2store"
	"github.com/trezcool/classdrive/storage/objectstore/drivestore"
	"github.com/trezcool/classdrive/storage/objectstore/memstore"
	"github.com/trezcool/classdrive/storage/objectstore/sqlstore"
)

// Container holds the wired services. Close releases the stores.
type Container struct {
	Conf       *core.Config
	Logger     core.Logger
	Objects    core.ObjectStore // cached
	Store      *document.Store
	Sessions   *session.Manager
	Mailer     core.EmailService
	UserSvc    *user.Service
	ClassSvc   *classroom.Service
	Validate   *validator.Validate
	Translator ut.Translator

	closers []func() error
}

// NewLogger returns a Rollbar logger printing to stdout with prefix, reporting outside of debug mode.
func NewLogger(conf *core.Config, prefix string) core.Logger {
	stdLogger := log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!(conf.Debug || conf.TestMode))
	return logger
}

func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with the core and account validators registered.
func NewValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

// NewObjectStore opens the object store backend of conf.
// The returned function releases it.
func NewObjectStore(ctx context.Context, conf *core.Config, logger core.Logger) (core.ObjectStore, func() error, error) {
	noop := func() error { return nil }

	switch conf.Store.Backend {
	case core.BackendMemory, "":
		return memstore.New(), noop, nil
	case core.BackendDrive:
		s, err := drivestore.NewFromConfig(ctx, conf.Store.Drive, logger)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening drive store")
		}
		return s, noop, nil
	case core.BackendB2:
		s, err := b2store.NewFromConfig(ctx, conf.Store.B2)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening b2 store")
		}
		return s, noop, nil
	case core.BackendSQL:
		db, err := sqlstore.Open(ctx, conf.Store.SQL)
		if err != nil {
			return nil, nil, err
		}
		if err = sqlstore.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlstore.New(db), db.Close, nil
	}
	return nil, nil, errors.Errorf("unknown store backend %q", conf.Store.Backend)
}

// New wires the services and loads the document.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (*Container, error) {
	c := &Container{Conf: conf, Logger: logger}

	objects, closeObjects, err := NewObjectStore(ctx, conf, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeObjects)

	cached, err := cache.NewFromConfig(objects, conf, logger)
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "opening cache")
	}
	c.closers = append(c.closers, cached.Close)
	c.Objects = cached

	// the document is only read at load, so it bypasses the cache
	c.Store = document.NewStoreFromConfig(objects, logger, conf, user.BootstrapSeed(conf.Auth))
	if err = c.Store.Load(ctx); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "loading document")
	}

	c.Sessions = session.NewManager(c.Store, logger, conf.Session.TTL, conf.Session.RefreshBelow)
	c.Mailer = NewEmailService(conf, logger)
	c.UserSvc = user.NewService(c.Store, c.Sessions, logger, conf)
	c.ClassSvc = classroom.NewService(c.Store, c.Objects, c.Mailer, logger, conf)

	c.Translator = NewTranslator()
	c.Validate = NewValidator(c.Translator)

	logger.Info(fmt.Sprintf("using %q object store", conf.Store.Backend))
	return c, nil
}

// Close releases the stores in reverse order of opening.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
