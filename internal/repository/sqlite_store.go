package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

// SQLiteStore is a conversation store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("repository: init sqlite schema: %w", err)
	}
	return s, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		channel_address TEXT NOT NULL UNIQUE,
		linked_user_id TEXT NOT NULL DEFAULT '',
		flow TEXT NOT NULL,
		flow_data TEXT NOT NULL DEFAULT '{}',
		last_activity TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS seen_messages (
		conversation_id TEXT NOT NULL,
		provider_message_id TEXT NOT NULL,
		seen_at TEXT NOT NULL,
		PRIMARY KEY (conversation_id, provider_message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS message_log (
		conversation_id TEXT NOT NULL,
		channel_address TEXT NOT NULL,
		direction TEXT NOT NULL,
		kind TEXT NOT NULL,
		body TEXT NOT NULL,
		provider_message_id TEXT NOT NULL DEFAULT '',
		at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_leases (
		channel_address TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		expires_at TEXT NOT NULL
	)`,
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, address string) (domain.Conversation, error) {
	address = domain.NormalizeAddress(address)
	if address == "" {
		return domain.Conversation{}, errors.New("repository: GetOrCreate: address must not be empty")
	}

	conv := newConversation(uuid.NewString(), address, s.now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, channel_address, flow, flow_data, last_activity, is_active, created_at)
		VALUES (?, ?, ?, '{}', ?, 1, ?)
		ON CONFLICT(channel_address) DO NOTHING`,
		conv.ID,
		conv.ChannelAddress,
		string(conv.State.Flow),
		formatTime(conv.State.LastActivity),
		formatTime(conv.CreatedAt),
	)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetOrCreate insert: %w", err)
	}

	row := s.db.QueryRowContext(ctx, selectConversation+` WHERE channel_address = ?`, address)
	out, err := scanConversation(row)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetOrCreate: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, selectConversation+` WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: Get %q: %w", id, err)
	}
	return conv, nil
}

func (s *SQLiteStore) UpdateFlow(ctx context.Context, id string, flow domain.FlowName, data domain.FlowData) error {
	raw, err := encodeFlowData(flow, data)
	if err != nil {
		return err
	}
	return s.exec(ctx, "UpdateFlow", id,
		`UPDATE conversations SET flow = ?, flow_data = ?, last_activity = ? WHERE id = ?`,
		string(flow), raw, formatTime(s.now()), id)
}

func (s *SQLiteStore) LinkUser(ctx context.Context, id, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: LinkUser: user id must not be empty")
	}
	return s.exec(ctx, "LinkUser", id, `UPDATE conversations SET linked_user_id = ? WHERE id = ?`, userID, id)
}

func (s *SQLiteStore) UnlinkUser(ctx context.Context, id string) error {
	return s.exec(ctx, "UnlinkUser", id, `UPDATE conversations SET linked_user_id = '' WHERE id = ?`, id)
}

func (s *SQLiteStore) exec(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("repository: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: %s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("repository: %s conversation %q: %w", op, id, domain.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, id, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return true, nil
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM seen_messages WHERE seen_at < ?`, formatTime(now.Add(-seenTTL))); err != nil {
		return false, fmt.Errorf("repository: MarkSeen prune: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_messages (conversation_id, provider_message_id, seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id, provider_message_id) DO NOTHING`,
		id, providerMessageID, formatTime(now))
	if err != nil {
		return false, fmt.Errorf("repository: MarkSeen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository: MarkSeen rows affected: %w", err)
	}
	return n == 1, nil
}

// AcquireLease takes or renews the lease on address. An expired lease held by
// someone else is taken over.
func (s *SQLiteStore) AcquireLease(ctx context.Context, address, owner string, ttl time.Duration) (bool, error) {
	address = domain.NormalizeAddress(address)
	if address == "" || owner == "" {
		return false, errors.New("repository: AcquireLease: address and owner are required")
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_leases (channel_address, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(channel_address) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE conversation_leases.expires_at <= ? OR conversation_leases.owner = excluded.owner`,
		address, owner, formatTime(now.Add(ttl)), formatTime(now))
	if err != nil {
		return false, fmt.Errorf("repository: AcquireLease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository: AcquireLease rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, address, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_leases WHERE channel_address = ? AND owner = ?`,
		domain.NormalizeAddress(address), owner)
	if err != nil {
		return fmt.Errorf("repository: ReleaseLease: %w", err)
	}
	return nil
}

func (s *SQLiteStore) WriteMessage(ctx context.Context, rec domain.AuditRecord) error {
	if rec.ConversationID == "" {
		return errors.New("repository: WriteMessage: conversation id is required")
	}
	if rec.At.IsZero() {
		rec.At = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_log (conversation_id, channel_address, direction, kind, body, provider_message_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ConversationID, rec.ChannelAddress, string(rec.Direction), rec.Kind, rec.Body, rec.ProviderMessageID, formatTime(rec.At))
	if err != nil {
		return fmt.Errorf("repository: WriteMessage: %w", err)
	}
	return nil
}

const selectConversation = `
	SELECT id, channel_address, linked_user_id, flow, flow_data, last_activity, is_active, created_at
	FROM conversations`

func scanConversation(row *sql.Row) (domain.Conversation, error) {
	var (
		conv                domain.Conversation
		flow, rawData       string
		lastRaw, createdRaw string
		active              int
	)
	err := row.Scan(&conv.ID, &conv.ChannelAddress, &conv.LinkedUserID, &flow, &rawData, &lastRaw, &active, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	last, err := parseTime(lastRaw)
	if err != nil {
		return domain.Conversation{}, err
	}
	created, err := parseTime(createdRaw)
	if err != nil {
		return domain.Conversation{}, err
	}
	conv.State = decodeFlowState(flow, rawData, last)
	conv.IsActive = active == 1
	conv.CreatedAt = created
	return conv, nil
}
