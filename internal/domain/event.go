package domain

import "strings"

// EventKind is the shape of an inbound reply.
type EventKind string

const (
	EventText   EventKind = "text"
	EventButton EventKind = "button"
	EventList   EventKind = "list"
)

// InboundEvent is a transport-neutral inbound message. Exactly one of Text
// and ChoiceID is set.
type InboundEvent struct {
	From              string
	ProviderMessageID string
	Kind              EventKind
	Text              string
	ChoiceID          string
}

// IsChoice reports whether the event is a button or list selection.
func (e InboundEvent) IsChoice() bool {
	return e.Kind == EventButton || e.Kind == EventList
}

// Command returns the upper-cased trimmed text, or "" for choices.
func (e InboundEvent) Command() string {
	if e.IsChoice() {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(e.Text))
}

// Input returns the trimmed text, or the choice id for choices.
func (e InboundEvent) Input() string {
	if e.IsChoice() {
		return e.ChoiceID
	}
	return strings.TrimSpace(e.Text)
}

// NormalizeAddress canonicalizes a channel address by keeping only digits, so
// "+1 (555) 123-0001" and "15551230001" map to the same conversation.
func NormalizeAddress(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
