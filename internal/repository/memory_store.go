package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

// MemoryStore is a goroutine-safe conversation store backed by maps. It is
// used by tests and the single-process development mode.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]domain.Conversation
	byAddress map[string]string
	seen      map[string]time.Time
	leases    map[string]lease
	messages  []domain.AuditRecord
	now       func() time.Time
}

// NewMemoryStore creates an empty MemoryStore. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		byID:      make(map[string]domain.Conversation),
		byAddress: make(map[string]string),
		seen:      make(map[string]time.Time),
		leases:    make(map[string]lease),
		now:       now,
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, address string) (domain.Conversation, error) {
	address = domain.NormalizeAddress(address)
	if address == "" {
		return domain.Conversation{}, errors.New("repository: GetOrCreate: address must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAddress[address]; ok {
		return cloneConversation(s.byID[id]), nil
	}
	conv := newConversation(uuid.NewString(), address, s.now().UTC())
	s.byID[conv.ID] = conv
	s.byAddress[address] = conv.ID
	return cloneConversation(conv), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.byID[id]
	if !ok {
		return domain.Conversation{}, fmt.Errorf("repository: Get %q: %w", id, domain.ErrNotFound)
	}
	return cloneConversation(conv), nil
}

func (s *MemoryStore) UpdateFlow(_ context.Context, id string, flow domain.FlowName, data domain.FlowData) error {
	return s.mutate(id, func(c *domain.Conversation) {
		c.State = domain.FlowState{
			Flow:         flow,
			Data:         data.For(flow),
			LastActivity: s.now().UTC(),
		}
	})
}

func (s *MemoryStore) LinkUser(_ context.Context, id, userID string) error {
	if userID == "" {
		return errors.New("repository: LinkUser: user id must not be empty")
	}
	return s.mutate(id, func(c *domain.Conversation) { c.LinkedUserID = userID })
}

func (s *MemoryStore) UnlinkUser(_ context.Context, id string) error {
	return s.mutate(id, func(c *domain.Conversation) { c.LinkedUserID = "" })
}

// SetActive flips the soft-disable flag.
func (s *MemoryStore) SetActive(id string, active bool) error {
	return s.mutate(id, func(c *domain.Conversation) { c.IsActive = active })
}

// Put overwrites a conversation. Tests use it to seed stale or corrupt state.
func (s *MemoryStore) Put(conv domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[conv.ID] = cloneConversation(conv)
	s.byAddress[conv.ChannelAddress] = conv.ID
}

func (s *MemoryStore) mutate(id string, fn func(*domain.Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("repository: conversation %q: %w", id, domain.ErrNotFound)
	}
	fn(&conv)
	s.byID[id] = conv
	return nil
}

func (s *MemoryStore) MarkSeen(_ context.Context, id, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := id + "/" + providerMessageID
	if at, ok := s.seen[k]; ok && now.Sub(at) < seenTTL {
		return false, nil
	}
	s.seen[k] = now
	return true, nil
}

type lease struct {
	owner   string
	expires time.Time
}

// AcquireLease grants owner exclusive use of address until ttl elapses. It
// returns false while another owner holds an unexpired lease.
func (s *MemoryStore) AcquireLease(_ context.Context, address, owner string, ttl time.Duration) (bool, error) {
	address = domain.NormalizeAddress(address)
	if address == "" || owner == "" {
		return false, errors.New("repository: AcquireLease: address and owner are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, ok := s.leases[address]; ok && l.owner != owner && now.Before(l.expires) {
		return false, nil
	}
	s.leases[address] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// ReleaseLease drops the lease on address if owner still holds it.
func (s *MemoryStore) ReleaseLease(_ context.Context, address, owner string) error {
	address = domain.NormalizeAddress(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leases[address]; ok && l.owner == owner {
		delete(s.leases, address)
	}
	return nil
}

func (s *MemoryStore) WriteMessage(_ context.Context, rec domain.AuditRecord) error {
	if rec.ConversationID == "" {
		return errors.New("repository: WriteMessage: conversation id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, rec)
	return nil
}

// Messages returns a copy of the audit trail.
func (s *MemoryStore) Messages() []domain.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditRecord(nil), s.messages...)
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	c.State.Data = c.State.Data.Clone()
	return c
}
