package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

// Executor owns the flow table and the collaborators flow handlers use.
type Executor struct {
	handlers map[domain.FlowName]FlowHandler

	store      ConversationStore
	messenger  Messenger
	accounts   Accounts
	wallet     Wallet
	classroom  Classroom
	backoffice Backoffice
	audit      *Auditor
	log        *slog.Logger

	adminTimeout time.Duration
	sendTimeout  time.Duration
}

func newExecutor(cfg Config, audit *Auditor, log *slog.Logger) *Executor {
	x := &Executor{
		handlers:     make(map[domain.FlowName]FlowHandler),
		store:        cfg.Store,
		messenger:    cfg.Messenger,
		accounts:     cfg.Accounts,
		wallet:       cfg.Wallet,
		classroom:    cfg.Classroom,
		backoffice:   cfg.Backoffice,
		audit:        audit,
		log:          log,
		adminTimeout: cfg.AdminTimeout,
		sendTimeout:  cfg.SendTimeout,
	}

	x.register(domain.FlowIdle, x.idle)

	x.register(domain.FlowLoginEmail, x.loginEmail)
	x.register(domain.FlowLoginPassword, x.loginPassword)

	x.register(domain.FlowRegisterRole, x.registerRole)
	x.register(domain.FlowRegisterName, x.registerName)
	x.register(domain.FlowRegisterEmail, x.registerEmail)
	x.register(domain.FlowRegisterConfirm, x.registerConfirm)
	x.register(domain.FlowRegisterPassword, x.registerPassword)

	x.register(domain.FlowLinkCode, x.linkCode)

	x.register(domain.FlowStudentMenu, x.roleMenu)
	x.register(domain.FlowTeacherMenu, x.roleMenu)
	x.register(domain.FlowFreelancerMenu, x.roleMenu)

	x.register(domain.FlowVoucherType, x.voucherType)
	x.register(domain.FlowVoucherRecipient, x.voucherRecipient)
	x.register(domain.FlowVoucherAmount, x.voucherAmount)
	x.register(domain.FlowVoucherConfirm, x.voucherConfirm)

	x.register(domain.FlowWithdrawAmount, x.withdrawAmount)
	x.register(domain.FlowWithdrawConfirm, x.withdrawConfirm)

	x.register(domain.FlowUpgradeConfirm, x.upgradeConfirm)

	x.register(domain.FlowAssignmentTitle, x.assignmentTitle)
	x.register(domain.FlowAssignmentDescription, x.assignmentDescription)
	x.register(domain.FlowAssignmentDue, x.assignmentDue)
	x.register(domain.FlowAssignmentConfirm, x.assignmentConfirm)

	x.register(domain.FlowAvailabilityDays, x.availabilityDays)
	x.register(domain.FlowAvailabilityHours, x.availabilityHours)

	x.registerAdmin(domain.FlowAdminMenu, x.adminMenu)
	x.registerAdmin(domain.FlowAdminBroadcastMessage, x.adminBroadcastMessage)
	x.registerAdmin(domain.FlowAdminBroadcastConfirm, x.adminBroadcastConfirm)
	x.registerAdmin(domain.FlowAdminLookupTarget, x.adminLookupTarget)
	x.registerAdmin(domain.FlowAdminDeleteTarget, x.adminDeleteTarget)
	x.registerAdmin(domain.FlowAdminDeleteConfirm, x.adminDeleteConfirm)

	return x
}

// unregistered lists known flows that have no handler.
func (x *Executor) unregistered() []domain.FlowName {
	var missing []domain.FlowName
	for _, f := range domain.KnownFlows() {
		if _, ok := x.handlers[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

func (x *Executor) register(flow domain.FlowName, h FlowHandler) {
	x.handlers[flow] = h
}

// registerAdmin wraps h with the admin session checks that every admin-family
// event must pass, whatever sub-state it is in.
func (x *Executor) registerAdmin(flow domain.FlowName, h FlowHandler) {
	x.handlers[flow] = func(ctx context.Context, t *Turn) (Outcome, error) {
		if t.Data().Admin.Expired(t.Now, x.adminTimeout) {
			x.log.Info("admin session expired", "address", t.Address(), "flow", t.Flow())
			if err := t.Text(ctx, msgAdminExpired); err != nil {
				return Outcome{}, err
			}
			return Idle(), nil
		}
		u, ok, err := t.User(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if !ok || !u.IsAdmin || !u.IsActive {
			x.log.Warn("admin privilege lost mid-session", "address", t.Address())
			if err := t.Text(ctx, msgAccessDenied); err != nil {
				return Outcome{}, err
			}
			return Idle(), nil
		}
		return h(ctx, t)
	}
}

// newTurn starts the per-event view for conv.
func (x *Executor) newTurn(conv domain.Conversation, ev domain.InboundEvent, now time.Time) *Turn {
	return &Turn{Conv: conv, Event: ev, Now: now, x: x}
}

// Dispatch runs the handler registered for the conversation's current flow.
// CANCEL inside a wizard always returns to the menu.
func (x *Executor) Dispatch(ctx context.Context, t *Turn) error {
	flow := t.Flow()
	if flow.IsWizard() && isCancel(t.Event) {
		return x.run(ctx, t, x.cancel)
	}
	h, ok := x.handlers[flow]
	if !ok {
		x.log.Warn("no handler registered for flow", "flow", flow, "address", t.Address())
		h = x.idle
	}
	return x.run(ctx, t, h)
}

func (x *Executor) run(ctx context.Context, t *Turn, h FlowHandler) error {
	out, err := h(ctx, t)
	if err != nil {
		return err
	}
	return x.apply(ctx, t, out)
}

func (x *Executor) apply(ctx context.Context, t *Turn, out Outcome) error {
	var (
		flow domain.FlowName
		data domain.FlowData
	)
	switch out.kind {
	case outcomeStay:
		flow, data = t.Flow(), t.Data()
	case outcomeMenu:
		f, err := x.sendMenu(ctx, t)
		if err != nil {
			return err
		}
		flow = f
	default:
		flow, data = out.flow, out.data.For(out.flow)
	}
	if err := x.store.UpdateFlow(ctx, t.Conv.ID, flow, data); err != nil {
		return newError(ErrorStore, "update_flow", err)
	}
	t.Conv.State = domain.FlowState{Flow: flow, Data: data, LastActivity: t.Now}
	return nil
}

func (x *Executor) cancel(ctx context.Context, t *Turn) (Outcome, error) {
	if err := t.Text(ctx, msgCancelled); err != nil {
		return Outcome{}, err
	}
	return Menu(), nil
}

func (x *Executor) sendText(ctx context.Context, t *Turn, body string) error {
	ctx, cancel := context.WithTimeout(ctx, x.sendTimeout)
	defer cancel()
	if err := x.messenger.SendText(ctx, t.Address(), body); err != nil {
		return newError(ErrorUpstream, "send_text", err)
	}
	x.audit.Outbound(ctx, t.Conv, "text", body)
	return nil
}

func (x *Executor) sendButtons(ctx context.Context, t *Turn, body string, buttons []domain.Button) error {
	ctx, cancel := context.WithTimeout(ctx, x.sendTimeout)
	defer cancel()
	if err := x.messenger.SendButtons(ctx, t.Address(), body, buttons, "", ""); err != nil {
		return newError(ErrorUpstream, "send_buttons", err)
	}
	x.audit.Outbound(ctx, t.Conv, "buttons", body)
	return nil
}

func (x *Executor) sendList(ctx context.Context, t *Turn, body, label string, sections []domain.ListSection) error {
	ctx, cancel := context.WithTimeout(ctx, x.sendTimeout)
	defer cancel()
	if err := x.messenger.SendList(ctx, t.Address(), body, label, sections, "", msgListFooter); err != nil {
		return newError(ErrorUpstream, "send_list", err)
	}
	x.audit.Outbound(ctx, t.Conv, "list", body)
	return nil
}
