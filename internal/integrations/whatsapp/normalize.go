package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

// ErrMalformedEvent marks a message that carries neither text nor a choice.
var ErrMalformedEvent = errors.New("whatsapp: malformed event")

// envelope is the Cloud API webhook delivery shape, reduced to the fields the
// bot reads.
type envelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Messages []inboundMessage `json:"messages"`
	Statuses []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"statuses"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
}

// Normalize turns a webhook delivery into inbound events. Status callbacks
// yield nothing. Messages without text or a choice are logged and skipped;
// only an unparseable body is an error.
func Normalize(raw []byte) ([]domain.InboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}

	var out []domain.InboundEvent
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				ev, err := toEvent(msg)
				if err != nil {
					slog.Warn("dropping inbound message",
						"message_id", msg.ID,
						"type", msg.Type,
						"err", err,
					)
					continue
				}
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

func toEvent(msg inboundMessage) (domain.InboundEvent, error) {
	ev := domain.InboundEvent{
		From:              domain.NormalizeAddress(msg.From),
		ProviderMessageID: msg.ID,
	}
	if ev.From == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: missing sender", ErrMalformedEvent)
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil && strings.TrimSpace(msg.Text.Body) != "" {
			ev.Kind = domain.EventText
			ev.Text = msg.Text.Body
			return ev, nil
		}
	case "interactive":
		in := msg.Interactive
		switch {
		case in == nil:
		case in.ButtonReply != nil && in.ButtonReply.ID != "":
			ev.Kind = domain.EventButton
			ev.ChoiceID = in.ButtonReply.ID
			return ev, nil
		case in.ListReply != nil && in.ListReply.ID != "":
			ev.Kind = domain.EventList
			ev.ChoiceID = in.ListReply.ID
			return ev, nil
		}
	case "button":
		if msg.Button != nil && msg.Button.Payload != "" {
			ev.Kind = domain.EventButton
			ev.ChoiceID = msg.Button.Payload
			return ev, nil
		}
	default:
		return domain.InboundEvent{}, fmt.Errorf("%w: unsupported type %q", ErrMalformedEvent, msg.Type)
	}
	return domain.InboundEvent{}, fmt.Errorf("%w: no text or choice", ErrMalformedEvent)
}
