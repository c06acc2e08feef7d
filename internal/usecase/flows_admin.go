package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const (
	itemAdminStats      = "admin_stats"
	itemAdminBroadcast  = "admin_broadcast"
	itemAdminLookup     = "admin_lookup"
	itemAdminDeactivate = "admin_deactivate"
	itemAdminExit       = "admin_exit"
)

var adminMenuSection = domain.ListSection{
	Title: "Admin",
	Rows: []domain.ListRow{
		{ID: itemAdminStats, Title: "Platform stats"},
		{ID: itemAdminBroadcast, Title: "Broadcast message", Description: "Send a text to every user"},
		{ID: itemAdminLookup, Title: "Look up user"},
		{ID: itemAdminDeactivate, Title: "Deactivate user"},
		{ID: itemAdminExit, Title: "Exit admin"},
	},
}

// enterAdmin opens an admin session after a secret match. Knowing the secret
// is not enough: the linked account must hold the admin privilege.
func (x *Executor) enterAdmin(ctx context.Context, t *Turn) (Outcome, error) {
	u, ok, err := t.User(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !ok || !u.IsAdmin || !u.IsActive {
		x.log.Warn("admin entry denied", "address", t.Address(), "linked", ok)
		return Stay(), t.Text(ctx, msgAccessDenied)
	}
	x.log.Info("admin session started", "address", t.Address(), "user_id", u.ID)
	if err := t.Text(ctx, msgAdminWelcome); err != nil {
		return Outcome{}, err
	}
	return x.adminHome(ctx, t, &domain.AdminSession{SessionStart: t.Now})
}

// adminHome shows the admin menu and clears any sub-wizard fields, keeping
// the session start.
func (x *Executor) adminHome(ctx context.Context, t *Turn, s *domain.AdminSession) (Outcome, error) {
	if err := t.List(ctx, msgAdminMenu, "Options", adminMenuSection); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowAdminMenu, adminData(s, nil)), nil
}

func adminData(s *domain.AdminSession, edit func(*domain.AdminSession)) domain.FlowData {
	next := &domain.AdminSession{SessionStart: s.SessionStart}
	if edit != nil {
		edit(next)
	}
	return domain.FlowData{Admin: next}
}

func (x *Executor) adminMenu(ctx context.Context, t *Turn) (Outcome, error) {
	s := t.Data().Admin
	item := t.Event.Input()
	if !t.Event.IsChoice() {
		item = "admin_" + strings.ToLower(item)
	}

	switch item {
	case itemAdminStats:
		stats, err := x.backoffice.Stats(ctx)
		if err != nil {
			return Outcome{}, newError(ErrorUpstream, "admin_stats", err)
		}
		if err := t.Text(ctx, fmt.Sprintf(msgAdminStats, stats.Users, stats.ActiveToday, stats.Revenue)); err != nil {
			return Outcome{}, err
		}
		return x.adminHome(ctx, t, s)
	case itemAdminBroadcast:
		if err := t.Text(ctx, msgAdminBroadcastPrompt); err != nil {
			return Outcome{}, err
		}
		return Goto(domain.FlowAdminBroadcastMessage, adminData(s, nil)), nil
	case itemAdminLookup:
		if err := t.Text(ctx, msgAdminTargetPrompt); err != nil {
			return Outcome{}, err
		}
		return Goto(domain.FlowAdminLookupTarget, adminData(s, nil)), nil
	case itemAdminDeactivate:
		if err := t.Text(ctx, msgAdminTargetPrompt); err != nil {
			return Outcome{}, err
		}
		return Goto(domain.FlowAdminDeleteTarget, adminData(s, nil)), nil
	case itemAdminExit:
		x.log.Info("admin session closed", "address", t.Address())
		if err := t.Text(ctx, msgAdminExit); err != nil {
			return Outcome{}, err
		}
		return Menu(), nil
	}
	return Stay(), t.List(ctx, msgAdminMenu, "Options", adminMenuSection)
}

func (x *Executor) adminBroadcastMessage(ctx context.Context, t *Turn) (Outcome, error) {
	msg := strings.TrimSpace(t.Event.Text)
	if n := utf8.RuneCountInString(msg); t.Event.IsChoice() || n == 0 || n > maxBroadcastLen {
		return Stay(), t.Text(ctx, msgAdminBroadcastBad)
	}
	if err := t.Buttons(ctx, fmt.Sprintf(msgAdminBroadcastAsk, msg), confirmButtons...); err != nil {
		return Outcome{}, err
	}
	data := adminData(t.Data().Admin, func(s *domain.AdminSession) { s.BroadcastMessage = msg })
	return Goto(domain.FlowAdminBroadcastConfirm, data), nil
}

func (x *Executor) adminBroadcastConfirm(ctx context.Context, t *Turn) (Outcome, error) {
	s := t.Data().Admin
	if s.BroadcastMessage == "" {
		return x.adminHome(ctx, t, s)
	}
	if !isConfirm(t.Event) {
		return Stay(), t.Buttons(ctx, fmt.Sprintf(msgAdminBroadcastAsk, s.BroadcastMessage), confirmButtons...)
	}
	n, err := x.backoffice.Broadcast(ctx, s.BroadcastMessage)
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "admin_broadcast", err)
	}
	x.log.Info("broadcast sent", "address", t.Address(), "recipients", n)
	if err := t.Text(ctx, fmt.Sprintf(msgAdminBroadcastSent, n)); err != nil {
		return Outcome{}, err
	}
	return x.adminHome(ctx, t, s)
}

// findTarget resolves free text to a user. found is false for unknown users,
// after the party has been told.
func (x *Executor) findTarget(ctx context.Context, t *Turn) (domain.User, bool, error) {
	query := strings.TrimSpace(t.Event.Input())
	if query == "" {
		return domain.User{}, false, t.Text(ctx, msgAdminTargetPrompt)
	}
	u, err := x.backoffice.FindUser(ctx, query)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, false, t.Text(ctx, fmt.Sprintf(msgAdminTargetNotFound, query))
	}
	if err != nil {
		return domain.User{}, false, newError(ErrorUpstream, "admin_find_user", err)
	}
	return u, true, nil
}

func (x *Executor) adminLookupTarget(ctx context.Context, t *Turn) (Outcome, error) {
	target, found, err := x.findTarget(ctx, t)
	if err != nil || !found {
		return Stay(), err
	}
	body := fmt.Sprintf(msgAdminUserDetails, target.Name, target.Email, target.Phone, target.Role, target.IsActive, target.IsAdmin)
	if err := t.Text(ctx, body); err != nil {
		return Outcome{}, err
	}
	return x.adminHome(ctx, t, t.Data().Admin)
}

func (x *Executor) adminDeleteTarget(ctx context.Context, t *Turn) (Outcome, error) {
	target, found, err := x.findTarget(ctx, t)
	if err != nil || !found {
		return Stay(), err
	}
	if target.ID == t.Conv.LinkedUserID {
		return Stay(), t.Text(ctx, msgAdminDeleteSelf)
	}
	label := target.Name
	if target.Email != "" {
		label = fmt.Sprintf("%s (%s)", target.Name, target.Email)
	}
	if err := t.Buttons(ctx, fmt.Sprintf(msgAdminDeleteAsk, label), confirmButtons...); err != nil {
		return Outcome{}, err
	}
	data := adminData(t.Data().Admin, func(s *domain.AdminSession) {
		s.TargetUserID = target.ID
		s.TargetLabel = label
	})
	return Goto(domain.FlowAdminDeleteConfirm, data), nil
}

func (x *Executor) adminDeleteConfirm(ctx context.Context, t *Turn) (Outcome, error) {
	s := t.Data().Admin
	if s.TargetUserID == "" {
		return x.adminHome(ctx, t, s)
	}
	if !isConfirm(t.Event) {
		return Stay(), t.Buttons(ctx, fmt.Sprintf(msgAdminDeleteAsk, s.TargetLabel), confirmButtons...)
	}
	if err := x.backoffice.DeactivateUser(ctx, s.TargetUserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return x.adminHome(ctx, t, s)
		}
		return Outcome{}, newError(ErrorUpstream, "admin_deactivate", err)
	}
	x.log.Info("user deactivated", "address", t.Address(), "target_user_id", s.TargetUserID)
	if err := t.Text(ctx, fmt.Sprintf(msgAdminDeleted, s.TargetLabel)); err != nil {
		return Outcome{}, err
	}
	return x.adminHome(ctx, t, s)
}
