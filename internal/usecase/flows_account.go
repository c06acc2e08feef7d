package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const maxLoginAttempts = 3

var roleButtons = []domain.Button{
	{ID: "role_student", Title: "Student"},
	{ID: "role_teacher", Title: "Teacher"},
	{ID: "role_freelancer", Title: "Freelancer"},
}

// alreadyLinked tells a linked party there is nothing to log into and shows
// their menu instead.
func (x *Executor) alreadyLinked(ctx context.Context, t *Turn) (Outcome, bool, error) {
	u, ok, err := t.User(ctx)
	if err != nil || !ok {
		return Outcome{}, false, err
	}
	if err := t.Text(ctx, fmt.Sprintf(msgAlreadyLinked, u.Email)); err != nil {
		return Outcome{}, true, err
	}
	return Menu(), true, nil
}

func (x *Executor) startLogin(ctx context.Context, t *Turn) (Outcome, error) {
	if out, linked, err := x.alreadyLinked(ctx, t); err != nil || linked {
		return out, err
	}
	if err := t.Text(ctx, msgLoginEmailPrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowLoginEmail, domain.FlowData{Login: &domain.LoginDraft{}}), nil
}

func (x *Executor) loginEmail(ctx context.Context, t *Turn) (Outcome, error) {
	email, ok := validEmail(t.Event.Input())
	if !ok {
		return Stay(), t.Text(ctx, msgInvalidEmail)
	}
	if err := t.Text(ctx, msgLoginPasswordPrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowLoginPassword, domain.FlowData{Login: &domain.LoginDraft{Email: email}}), nil
}

func (x *Executor) loginPassword(ctx context.Context, t *Turn) (Outcome, error) {
	data := t.Data()
	if data.Login == nil || data.Login.Email == "" {
		return x.startLogin(ctx, t)
	}
	if t.Event.IsChoice() {
		return Stay(), t.Text(ctx, msgLoginPasswordPrompt)
	}

	u, err := x.accounts.Authenticate(ctx, data.Login.Email, t.Event.Text)
	if err == nil && !u.IsActive {
		err = domain.ErrInvalidCredentials
	}
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrNotFound):
		data.Login.FailedAttempts++
		x.log.Info("login failed", "address", t.Address(), "attempt", data.Login.FailedAttempts)
		if data.Login.FailedAttempts >= maxLoginAttempts {
			return Idle(), t.Text(ctx, msgLoginLocked)
		}
		return Goto(domain.FlowLoginPassword, data), t.Text(ctx, msgLoginFailed)
	case err != nil:
		return Outcome{}, newError(ErrorUpstream, "authenticate", err)
	}

	if err := t.LinkUser(ctx, u); err != nil {
		return Outcome{}, err
	}
	if err := t.Text(ctx, fmt.Sprintf(msgLoginWelcome, firstName(u.Name))); err != nil {
		return Outcome{}, err
	}
	return Menu(), nil
}

func (x *Executor) startRegister(ctx context.Context, t *Turn) (Outcome, error) {
	if out, linked, err := x.alreadyLinked(ctx, t); err != nil || linked {
		return out, err
	}
	if err := t.Buttons(ctx, msgRegisterRolePrompt, roleButtons...); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowRegisterRole, domain.FlowData{Registration: &domain.RegistrationDraft{}}), nil
}

func (x *Executor) registerRole(ctx context.Context, t *Turn) (Outcome, error) {
	role := domain.Role(strings.ToLower(strings.TrimPrefix(t.Event.Input(), "role_")))
	if !role.Valid() {
		return Stay(), t.Buttons(ctx, msgRegisterRolePrompt, roleButtons...)
	}
	if err := t.Text(ctx, msgRegisterNamePrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowRegisterName, domain.FlowData{Registration: &domain.RegistrationDraft{Role: role}}), nil
}

func (x *Executor) registerName(ctx context.Context, t *Turn) (Outcome, error) {
	name, ok := validName(t.Event.Input())
	if !ok || t.Event.IsChoice() {
		return Stay(), t.Text(ctx, msgInvalidName)
	}
	data := t.Data()
	if data.Registration == nil {
		return x.startRegister(ctx, t)
	}
	data.Registration.Name = name
	if err := t.Text(ctx, msgRegisterEmailPrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowRegisterEmail, data), nil
}

func (x *Executor) registerEmail(ctx context.Context, t *Turn) (Outcome, error) {
	email, ok := validEmail(t.Event.Input())
	if !ok {
		return Stay(), t.Text(ctx, msgInvalidEmail)
	}
	data := t.Data()
	if data.Registration == nil {
		return x.startRegister(ctx, t)
	}
	data.Registration.Email = email
	if err := x.askRegisterConfirm(ctx, t, data.Registration); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowRegisterConfirm, data), nil
}

func (x *Executor) askRegisterConfirm(ctx context.Context, t *Turn, d *domain.RegistrationDraft) error {
	body := fmt.Sprintf(msgRegisterConfirmPrompt, d.Name, d.Email, d.Role)
	return t.Buttons(ctx, body, confirmButtons...)
}

func (x *Executor) registerConfirm(ctx context.Context, t *Turn) (Outcome, error) {
	data := t.Data()
	if data.Registration == nil || data.Registration.Email == "" {
		return x.startRegister(ctx, t)
	}
	if !isConfirm(t.Event) {
		return Stay(), x.askRegisterConfirm(ctx, t, data.Registration)
	}
	if err := t.Text(ctx, msgRegisterPasswordPrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowRegisterPassword, data), nil
}

func (x *Executor) registerPassword(ctx context.Context, t *Turn) (Outcome, error) {
	data := t.Data()
	if data.Registration == nil || data.Registration.Email == "" {
		return x.startRegister(ctx, t)
	}
	if t.Event.IsChoice() || !validPassword(t.Event.Text) {
		return Stay(), t.Text(ctx, msgInvalidPassword)
	}

	u, err := x.accounts.Register(ctx, *data.Registration, t.Event.Text, t.Address())
	if errors.Is(err, domain.ErrAlreadyExists) {
		data.Registration.Email = ""
		return Goto(domain.FlowRegisterEmail, data), t.Text(ctx, msgRegisterEmailTaken)
	}
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "register", err)
	}
	x.log.Info("account registered", "address", t.Address(), "user_id", u.ID, "role", u.Role)

	if err := t.LinkUser(ctx, u); err != nil {
		return Outcome{}, err
	}
	if err := t.Text(ctx, fmt.Sprintf(msgRegisterWelcome, firstName(u.Name))); err != nil {
		return Outcome{}, err
	}
	return Menu(), nil
}

func (x *Executor) startLink(ctx context.Context, t *Turn) (Outcome, error) {
	if out, linked, err := x.alreadyLinked(ctx, t); err != nil || linked {
		return out, err
	}
	if err := t.Text(ctx, msgLinkPrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowLinkCode, domain.FlowData{}), nil
}

func (x *Executor) linkCode(ctx context.Context, t *Turn) (Outcome, error) {
	code := t.Event.Input()
	if !validLinkCode(code) {
		return Stay(), t.Text(ctx, msgLinkPrompt)
	}
	u, err := x.accounts.RedeemLinkCode(ctx, code, t.Address())
	if errors.Is(err, domain.ErrNotFound) {
		return Stay(), t.Text(ctx, msgLinkNotFound)
	}
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "redeem_link_code", err)
	}
	if err := t.LinkUser(ctx, u); err != nil {
		return Outcome{}, err
	}
	if err := t.Text(ctx, fmt.Sprintf(msgLinkWelcome, firstName(u.Name))); err != nil {
		return Outcome{}, err
	}
	return Menu(), nil
}

func (x *Executor) logout(ctx context.Context, t *Turn) (Outcome, error) {
	if t.Conv.IsLinked() {
		if err := t.UnlinkUser(ctx); err != nil {
			return Outcome{}, err
		}
		if err := t.Text(ctx, msgLoggedOut); err != nil {
			return Outcome{}, err
		}
	}
	return Menu(), nil
}
