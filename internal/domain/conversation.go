package domain

import "time"

// Conversation is the durable record kept per remote channel address.
type Conversation struct {
	ID             string
	ChannelAddress string
	LinkedUserID   string
	State          FlowState
	IsActive       bool
	CreatedAt      time.Time
}

// FlowState is written as a whole document on every update. Corrupt is set
// by a store whose persisted data could not be decoded; it is never stored.
type FlowState struct {
	Flow         FlowName
	Data         FlowData
	LastActivity time.Time
	Corrupt      bool
}

// IsLinked reports whether the conversation is bound to a platform account.
func (c Conversation) IsLinked() bool {
	return c.LinkedUserID != ""
}

// IdleState returns the reset state stamped at now.
func IdleState(now time.Time) FlowState {
	return FlowState{Flow: FlowIdle, LastActivity: now}
}

// Normalize enforces the state invariants after a load: unknown flows and
// undecodable data become idle, and data not owned by the current flow is
// dropped. It reports whether the state had to be reset.
func (s FlowState) Normalize() (FlowState, bool) {
	if s.Corrupt || !s.Flow.Known() {
		return FlowState{Flow: FlowIdle, LastActivity: s.LastActivity}, true
	}
	s.Data = s.Data.For(s.Flow)
	return s, false
}

// AuditDirection marks whether a logged message was received or sent.
type AuditDirection string

const (
	DirectionInbound  AuditDirection = "in"
	DirectionOutbound AuditDirection = "out"
)

// AuditRecord is a single logged message in a conversation's audit trail.
type AuditRecord struct {
	ConversationID    string
	ChannelAddress    string
	Direction         AuditDirection
	Kind              string
	Body              string
	ProviderMessageID string
	At                time.Time
}
