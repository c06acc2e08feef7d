package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

// Router applies the precedence rules for an inbound event: the secret guard
// first, then global commands, then the current flow.
type Router struct {
	guard SecretChecker
	exec  *Executor
	log   *slog.Logger
}

// Route handles t and contains any handler fault: the conversation is put
// back to idle and the party is told to start again. A non-nil error means
// even that recovery failed.
func (r *Router) Route(ctx context.Context, t *Turn) (err error) {
	flow := t.Flow()
	defer func() {
		if p := recover(); p != nil {
			err = newError(ErrorHandlerFault, "panic", fmt.Errorf("%v", p))
			r.log.Error("flow handler panic", "flow", flow, "address", t.Address(), "stack", string(debug.Stack()))
		}
		if err != nil {
			err = r.recoverFault(ctx, t, flow, err)
		}
	}()
	return r.route(ctx, t)
}

func (r *Router) route(ctx context.Context, t *Turn) error {
	if r.guarded(t) {
		res := r.guard.Check(t.Address(), t.Event.Text)
		switch {
		case res.IsLockedOut:
			r.log.Warn("secret entry locked out", "address", t.Address())
			return t.Text(ctx, msgLockedOut)
		case res.IsSecretMatch:
			return r.exec.run(ctx, t, r.exec.enterAdmin)
		}
	}
	if h, ok := r.command(t.Event); ok {
		return r.exec.run(ctx, t, h)
	}
	return r.exec.Dispatch(ctx, t)
}

// guarded reports whether the event text should go through the secret guard.
// Only free text typed at idle or a menu is a candidate. Wizard steps and the
// admin session are never checked, so a password or broadcast body cannot burn
// lockout attempts. The cost is that a secret guess typed mid-wizard is taken
// as field input and never counted toward the lockout.
func (r *Router) guarded(t *Turn) bool {
	if t.Event.IsChoice() {
		return false
	}
	flow := t.Flow()
	return !flow.IsWizard() && !flow.IsAdmin()
}

// command returns the handler for a global command or top-level menu choice.
func (r *Router) command(ev domain.InboundEvent) (FlowHandler, bool) {
	x := r.exec
	if ev.IsChoice() {
		switch ev.ChoiceID {
		case choiceMenuMain:
			return x.idle, true
		case choiceMenuLogin:
			return x.startLogin, true
		case choiceMenuRegister:
			return x.startRegister, true
		case choiceMenuLink:
			return x.startLink, true
		}
		if isRoleMenuItem(ev.ChoiceID) {
			return x.roleMenu, true
		}
		return nil, false
	}
	switch ev.Command() {
	case "MENU", "HI", "HELLO", "START":
		return x.idle, true
	case "LOGIN":
		return x.startLogin, true
	case "REGISTER":
		return x.startRegister, true
	case "LINK":
		return x.startLink, true
	case "LOGOUT":
		return x.logout, true
	}
	return nil, false
}

func (r *Router) recoverFault(ctx context.Context, t *Turn, flow domain.FlowName, cause error) error {
	var ue *Error
	if !errors.As(cause, &ue) {
		cause = newError(ErrorHandlerFault, "handler", cause)
	}
	r.log.Error("flow handler fault, resetting to idle", "flow", flow, "address", t.Address(), "err", cause)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.exec.sendTimeout)
	defer cancel()
	if err := r.exec.store.UpdateFlow(ctx, t.Conv.ID, domain.FlowIdle, domain.FlowData{}); err != nil {
		return newError(ErrorStore, "reset_after_fault", errors.Join(cause, err))
	}
	t.Conv.State = domain.IdleState(t.Now)
	if err := t.Text(ctx, msgGenericError); err != nil {
		r.log.Warn("fault notice not delivered", "address", t.Address(), "err", err)
	}
	return nil
}
