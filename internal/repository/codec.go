package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const (
	// seenTTL bounds how long a provider message id is remembered.
	seenTTL = 24 * time.Hour
	// auditTTL is the retention of audit trail rows.
	auditTTL = 30 * 24 * time.Hour

	// timeLayout is fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

func encodeFlowData(flow domain.FlowName, data domain.FlowData) (string, error) {
	data = data.For(flow)
	if data.IsEmpty() {
		return "{}", nil
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("repository: encode flow data: %w", err)
	}
	return string(buf), nil
}

// decodeFlowState rebuilds a stored flow state. Data that no longer decodes
// is dropped and the state is marked corrupt so the engine resets it.
func decodeFlowState(flow, raw string, last time.Time) domain.FlowState {
	state := domain.FlowState{Flow: domain.FlowName(flow), LastActivity: last}
	if raw == "" {
		return state
	}
	if err := json.Unmarshal([]byte(raw), &state.Data); err != nil {
		return domain.FlowState{Flow: state.Flow, LastActivity: last, Corrupt: true}
	}
	return state
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse time %q: %w", s, err)
	}
	return t, nil
}

func newConversation(id, address string, now time.Time) domain.Conversation {
	return domain.Conversation{
		ID:             id,
		ChannelAddress: address,
		State:          domain.IdleState(now),
		IsActive:       true,
		CreatedAt:      now,
	}
}
