package usecase

import (
	"context"
	"time"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/guard"
)

// ConversationStore persists one conversation per channel address. Flow
// updates replace the whole flow state document.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, address string) (domain.Conversation, error)
	Get(ctx context.Context, id string) (domain.Conversation, error)
	UpdateFlow(ctx context.Context, id string, flow domain.FlowName, data domain.FlowData) error
	LinkUser(ctx context.Context, id, userID string) error
	UnlinkUser(ctx context.Context, id string) error
	MarkSeen(ctx context.Context, id, providerMessageID string) (bool, error)

	// AcquireLease grants owner exclusive processing of address until ttl
	// elapses. It returns false while another owner holds the lease. Leases
	// live in the store so they hold across processes.
	AcquireLease(ctx context.Context, address, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, address, owner string) error
}

// AuditWriter receives the best-effort message log.
type AuditWriter interface {
	WriteMessage(ctx context.Context, rec domain.AuditRecord) error
}

// Messenger delivers outbound messages to a channel address.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []domain.Button, header, footer string) error
	SendList(ctx context.Context, to, body, buttonLabel string, sections []domain.ListSection, header, footer string) error
}

// SecretChecker gates entry into the admin sub-session.
type SecretChecker interface {
	Check(address, candidate string) guard.Result
}

type Accounts interface {
	Authenticate(ctx context.Context, email, password string) (domain.User, error)
	Register(ctx context.Context, draft domain.RegistrationDraft, password, phone string) (domain.User, error)
	RedeemLinkCode(ctx context.Context, code, phone string) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	UpgradeToFreelancer(ctx context.Context, userID string) (domain.User, error)
}

type Wallet interface {
	Balance(ctx context.Context, userID string) (int, error)
	PurchaseVoucher(ctx context.Context, userID string, draft domain.VoucherDraft) (domain.Voucher, error)
	Withdraw(ctx context.Context, userID string, amount int) (domain.Withdrawal, error)
}

type Classroom interface {
	Courses(ctx context.Context, userID string) ([]domain.Course, error)
	Bookings(ctx context.Context, userID string) ([]domain.Booking, error)
	CreateAssignment(ctx context.Context, userID string, draft domain.AssignmentDraft) (string, error)
	SetAvailability(ctx context.Context, userID string, days []string, from, to string) error
}

type Backoffice interface {
	Stats(ctx context.Context) (domain.PlatformStats, error)
	FindUser(ctx context.Context, query string) (domain.User, error)
	DeactivateUser(ctx context.Context, userID string) error
	Broadcast(ctx context.Context, message string) (int, error)
}
