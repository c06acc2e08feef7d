package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const (
	defaultSessionTimeout = 30 * time.Minute
	defaultAdminTimeout   = 15 * time.Minute
	defaultHandlerTimeout = 20 * time.Second
	defaultSendTimeout    = 10 * time.Second
	defaultLeaseRetry     = 50 * time.Millisecond
)

// Config wires the engine to its collaborators. Audit is optional; zero
// durations fall back to the defaults above.
type Config struct {
	Store      ConversationStore
	Audit      AuditWriter
	Messenger  Messenger
	Guard      SecretChecker
	Accounts   Accounts
	Wallet     Wallet
	Classroom  Classroom
	Backoffice Backoffice

	SessionTimeout time.Duration
	AdminTimeout   time.Duration
	HandlerTimeout time.Duration
	SendTimeout    time.Duration
	LeaseRetry     time.Duration // poll interval while another worker holds the address lease

	Now    func() time.Time
	Logger *slog.Logger
}

// Engine processes one inbound event at a time for a conversation: it loads
// state, applies expiry, and hands the event to the router.
type Engine struct {
	store  ConversationStore
	audit  *Auditor
	exec   *Executor
	router *Router
	log    *slog.Logger
	now    func() time.Time

	sessionTimeout time.Duration
	handlerTimeout time.Duration
	sendTimeout    time.Duration
	leaseRetry     time.Duration
	newOwner       func() string
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if cfg.Messenger == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if cfg.Guard == nil {
		return nil, errors.New("usecase: secret guard must not be nil")
	}
	if cfg.Accounts == nil || cfg.Wallet == nil || cfg.Classroom == nil || cfg.Backoffice == nil {
		return nil, errors.New("usecase: platform collaborators must not be nil")
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = defaultSessionTimeout
	}
	if cfg.AdminTimeout <= 0 {
		cfg.AdminTimeout = defaultAdminTimeout
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.LeaseRetry <= 0 {
		cfg.LeaseRetry = defaultLeaseRetry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	audit := newAuditor(cfg.Audit, cfg.Logger, cfg.Now)
	exec := newExecutor(cfg, audit, cfg.Logger)
	if missing := exec.unregistered(); len(missing) > 0 {
		return nil, fmt.Errorf("usecase: flows without a handler: %v", missing)
	}
	return &Engine{
		store:          cfg.Store,
		audit:          audit,
		exec:           exec,
		router:         &Router{guard: cfg.Guard, exec: exec, log: cfg.Logger},
		log:            cfg.Logger,
		now:            cfg.Now,
		sessionTimeout: cfg.SessionTimeout,
		handlerTimeout: cfg.HandlerTimeout,
		sendTimeout:    cfg.SendTimeout,
		leaseRetry:     cfg.LeaseRetry,
		newOwner:       uuid.NewString,
	}, nil
}

// Process handles ev end to end. Redelivered provider messages and events for
// disabled conversations are dropped without a reply.
func (e *Engine) Process(ctx context.Context, ev domain.InboundEvent) error {
	if ev.From == "" {
		return newError(ErrorInvalidEvent, "missing_sender", nil)
	}
	if ev.Input() == "" {
		return newError(ErrorInvalidEvent, "missing_payload", nil)
	}

	address := domain.NormalizeAddress(ev.From)
	if address == "" {
		return newError(ErrorInvalidEvent, "invalid_sender", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, e.handlerTimeout)
	defer cancel()

	release, err := e.lease(ctx, address)
	if err != nil {
		return err
	}
	defer release()
	now := e.now()

	conv, err := e.store.GetOrCreate(ctx, address)
	if err != nil {
		return newError(ErrorStore, "get_or_create", err)
	}
	if !conv.IsActive {
		e.log.Info("conversation disabled, event dropped", "address", conv.ChannelAddress)
		return nil
	}
	if ev.ProviderMessageID != "" {
		fresh, err := e.store.MarkSeen(ctx, conv.ID, ev.ProviderMessageID)
		if err != nil {
			return newError(ErrorStore, "mark_seen", err)
		}
		if !fresh {
			e.log.Info("duplicate delivery ignored", "address", conv.ChannelAddress, "message_id", ev.ProviderMessageID)
			return nil
		}
	}

	state, corrupt := conv.State.Normalize()
	if corrupt {
		e.log.Warn("corrupt stored state, resetting to idle", "address", conv.ChannelAddress, "flow", conv.State.Flow, "undecodable_data", conv.State.Corrupt)
	}
	conv.State = state
	e.audit.Inbound(ctx, conv, ev)

	expired := conv.State.Flow != domain.FlowIdle && now.Sub(conv.State.LastActivity) > e.sessionTimeout
	if expired {
		e.log.Info("session expired", "address", conv.ChannelAddress, "flow", conv.State.Flow, "last_activity", conv.State.LastActivity)
	}
	if corrupt || expired {
		if conv, err = e.reset(ctx, conv.ID); err != nil {
			return err
		}
	}

	return e.router.Route(ctx, e.exec.newTurn(conv, ev, now))
}

// lease blocks until this worker holds the address lease, so events for one
// party never run concurrently even across processes. The returned func gives
// the lease back.
func (e *Engine) lease(ctx context.Context, address string) (func(), error) {
	owner := e.newOwner()
	ttl := e.handlerTimeout + e.sendTimeout
	for {
		ok, err := e.store.AcquireLease(ctx, address, owner, ttl)
		if err != nil {
			return nil, newError(ErrorStore, "acquire_lease", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			e.log.Warn("conversation busy, event dropped", "address", address)
			return nil, newError(ErrorBusy, "lease_timeout", ctx.Err())
		case <-time.After(e.leaseRetry):
		}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sendTimeout)
		defer cancel()
		if err := e.store.ReleaseLease(ctx, address, owner); err != nil {
			e.log.Warn("lease release failed", "address", address, "err", err)
		}
	}, nil
}

// reset forces the conversation to idle and re-reads it, so nothing
// downstream sees the stale draft.
func (e *Engine) reset(ctx context.Context, id string) (domain.Conversation, error) {
	if err := e.store.UpdateFlow(ctx, id, domain.FlowIdle, domain.FlowData{}); err != nil {
		return domain.Conversation{}, newError(ErrorStore, "reset_flow", err)
	}
	conv, err := e.store.Get(ctx, id)
	if err != nil {
		return domain.Conversation{}, newError(ErrorStore, "get", err)
	}
	conv.State, _ = conv.State.Normalize()
	return conv, nil
}

// AuditFailures reports how many message log writes have been dropped.
func (e *Engine) AuditFailures() int64 {
	return e.audit.Failures()
}

// Flush waits for background audit writes.
func (e *Engine) Flush() {
	e.audit.Wait()
}

// Drain is Flush bounded by ctx. Lambda mode calls it before returning, since
// the runtime freezes goroutines between invocations.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.audit.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
