package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	_ "modernc.org/sqlite"

	"github.com/ty2499/filiova-learning-platform-sub004/handler"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/config"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/guard"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/integrations/paramstore"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/integrations/platform"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/integrations/whatsapp"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/repository"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/usecase"
)

// stateStore is what every repository backend provides.
type stateStore interface {
	usecase.ConversationStore
	usecase.AuditWriter
}

// app holds the wired components for either run mode.
type app struct {
	cfg        config.Config
	log        *slog.Logger
	engine     *usecase.Engine
	dispatcher *usecase.Dispatcher
	handler    *handler.Handler
	closeStore func() error
}

// settled waits for queued events and then for the audit writes they started.
type settled struct {
	dispatcher *usecase.Dispatcher
	engine     *usecase.Engine
}

func (s settled) Wait(ctx context.Context) error {
	if err := s.dispatcher.Wait(ctx); err != nil {
		return err
	}
	return s.engine.Drain(ctx)
}

func newLogger(cfg config.Config) *slog.Logger {
	lvl, _ := cfg.SlogLevel()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}

// build loads configuration and wires the engine. waitForDrain makes the
// handler block until queued events are processed.
func build(ctx context.Context, waitForDrain bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	// ---- Secrets ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	secrets, err := ssmClient.GetParameters(ctx, cfg.AdminSecretParam(), cfg.AppSecretParam(), cfg.VerifyTokenParam())
	if err != nil {
		return nil, err
	}

	// ---- Clients ----
	store, closeStore, err := openStore(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	waOpts := []whatsapp.Option{whatsapp.WithRateLimit(cfg.WhatsAppSendRate, max(1, int(cfg.WhatsAppSendRate)))}
	if cfg.WhatsAppAPIBaseURL != "" {
		waOpts = append(waOpts, whatsapp.WithBaseURL(cfg.WhatsAppAPIBaseURL))
	}
	messenger, err := whatsapp.NewClient(ssmClient, cfg.ParamPrefix, cfg.WhatsAppPhoneNumberID, waOpts...)
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}
	platformClient, err := platform.NewClient(ssmClient, cfg.ParamPrefix, cfg.PlatformBaseURL)
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}
	secretGuard, err := guard.New(secrets[cfg.AdminSecretParam()],
		guard.WithMaxFailures(cfg.SecretMaxFailures),
		guard.WithWindow(cfg.SecretLockoutWindow),
	)
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}

	// ---- Engine ----
	engine, err := usecase.NewEngine(usecase.Config{
		Store:          store,
		Audit:          store,
		Messenger:      messenger,
		Guard:          secretGuard,
		Accounts:       platformClient,
		Wallet:         platformClient,
		Classroom:      platformClient,
		Backoffice:     platformClient,
		SessionTimeout: cfg.SessionTimeout,
		AdminTimeout:   cfg.AdminSessionTimeout,
		HandlerTimeout: cfg.HandlerTimeout,
		SendTimeout:    cfg.SendTimeout,
		LeaseRetry:     cfg.LeaseRetry,
		Logger:         log,
	})
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}
	dispatcher, err := usecase.NewDispatcher(ctx, engine, cfg.MailboxSize, log)
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}

	// ---- Handler ----
	opts := []handler.Option{handler.WithLogger(log)}
	if waitForDrain {
		opts = append(opts, handler.WithWaiter(settled{dispatcher: dispatcher, engine: engine}))
	}
	h, err := handler.NewHandler(dispatcher, secrets[cfg.AppSecretParam()], secrets[cfg.VerifyTokenParam()], opts...)
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}

	log.Info("chatbot wired", "version", Version, "store", cfg.StoreBackend)
	return &app{
		cfg:        cfg,
		log:        log,
		engine:     engine,
		dispatcher: dispatcher,
		handler:    h,
		closeStore: closeStore,
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, awsCfg aws.Config) (stateStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %q: %w", cfg.SQLitePath, err)
		}
		db.SetMaxOpenConns(1)
		store, err := repository.NewSQLiteStore(ctx, db)
		if err != nil {
			return nil, nil, errors.Join(err, db.Close())
		}
		return store, db.Close, nil
	case config.BackendMemory:
		return repository.NewMemoryStore(time.Now), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// shutdown drains queued events and pending audit writes.
func (a *app) shutdown(ctx context.Context) error {
	err := a.dispatcher.Close(ctx)
	a.engine.Flush()
	if dropped := a.dispatcher.Dropped(); dropped > 0 {
		a.log.Warn("events dropped during run", "count", dropped)
	}
	if failures := a.engine.AuditFailures(); failures > 0 {
		a.log.Warn("audit writes failed during run", "count", failures)
	}
	return errors.Join(err, a.closeStore())
}
