package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

type outcomeKind int

const (
	outcomeStay outcomeKind = iota
	outcomeGoto
	outcomeMenu
)

// Outcome is what a flow handler asks the executor to persist.
type Outcome struct {
	kind outcomeKind
	flow domain.FlowName
	data domain.FlowData
}

// Stay keeps the current flow and data, re-prompting the party.
func Stay() Outcome { return Outcome{kind: outcomeStay} }

// Goto transitions to flow with data. Data not owned by flow is dropped.
func Goto(flow domain.FlowName, data domain.FlowData) Outcome {
	return Outcome{kind: outcomeGoto, flow: flow, data: data}
}

// Idle returns the conversation to idle without sending anything.
func Idle() Outcome { return Outcome{kind: outcomeGoto, flow: domain.FlowIdle} }

// Menu sends the role-appropriate menu and moves to its flow.
func Menu() Outcome { return Outcome{kind: outcomeMenu} }

// FlowHandler handles one inbound event for the conversation's current flow.
type FlowHandler func(ctx context.Context, t *Turn) (Outcome, error)

// Turn is the per-event view a flow handler works on.
type Turn struct {
	Conv  domain.Conversation
	Event domain.InboundEvent
	Now   time.Time

	x    *Executor
	user *domain.User
}

// Address is the canonical channel address of the party.
func (t *Turn) Address() string {
	return t.Conv.ChannelAddress
}

// Flow is the conversation's current flow.
func (t *Turn) Flow() domain.FlowName {
	return t.Conv.State.Flow
}

// Data returns a copy of the current flow's draft, safe to extend and pass to
// Goto.
func (t *Turn) Data() domain.FlowData {
	return t.Conv.State.Data.For(t.Conv.State.Flow)
}

func (t *Turn) Text(ctx context.Context, body string) error {
	return t.x.sendText(ctx, t, body)
}

func (t *Turn) Buttons(ctx context.Context, body string, buttons ...domain.Button) error {
	return t.x.sendButtons(ctx, t, body, buttons)
}

func (t *Turn) List(ctx context.Context, body, label string, sections ...domain.ListSection) error {
	return t.x.sendList(ctx, t, body, label, sections)
}

// User returns the linked account. ok is false for anonymous parties and for
// links whose account no longer exists; the latter are unlinked.
func (t *Turn) User(ctx context.Context) (domain.User, bool, error) {
	if t.user != nil {
		return *t.user, true, nil
	}
	if !t.Conv.IsLinked() {
		return domain.User{}, false, nil
	}
	u, err := t.x.accounts.GetUser(ctx, t.Conv.LinkedUserID)
	if errors.Is(err, domain.ErrNotFound) {
		if err := t.UnlinkUser(ctx); err != nil {
			return domain.User{}, false, err
		}
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, newError(ErrorUpstream, "get_user", err)
	}
	t.user = &u
	return u, true, nil
}

// LinkUser binds the conversation to u after a credential check or a fresh
// registration.
func (t *Turn) LinkUser(ctx context.Context, u domain.User) error {
	if err := t.x.store.LinkUser(ctx, t.Conv.ID, u.ID); err != nil {
		return newError(ErrorStore, "link_user", err)
	}
	t.Conv.LinkedUserID = u.ID
	t.user = &u
	return nil
}

func (t *Turn) UnlinkUser(ctx context.Context) error {
	if err := t.x.store.UnlinkUser(ctx, t.Conv.ID); err != nil {
		return newError(ErrorStore, "unlink_user", err)
	}
	t.Conv.LinkedUserID = ""
	t.user = nil
	return nil
}

// setUser replaces the cached account after a change such as a role upgrade.
func (t *Turn) setUser(u domain.User) {
	t.user = &u
}
