package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/guard"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/repository"
)

const (
	testAddress = "15551230001"
	testSecret  = "correct#horse-battery"
)

var (
	studentUser = domain.User{ID: "u-student", Name: "Sam Student", Email: "sam@example.com", Phone: testAddress, Role: domain.RoleStudent, IsActive: true}
	teacherUser = domain.User{ID: "u-teacher", Name: "Tina Teacher", Email: "tina@example.com", Role: domain.RoleTeacher, IsActive: true}
	adminUser   = domain.User{ID: "u-admin", Name: "Ada Admin", Email: "ada@example.com", Role: domain.RoleTeacher, IsAdmin: true, IsActive: true}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	Kind     string
	To       string
	Body     string
	Buttons  []domain.Button
	Label    string
	Sections []domain.ListSection
	Footer   string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *fakeMessenger) record(msg sentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMessenger) SendText(_ context.Context, to, body string) error {
	return m.record(sentMessage{Kind: "text", To: to, Body: body})
}

func (m *fakeMessenger) SendButtons(_ context.Context, to, body string, buttons []domain.Button, _, footer string) error {
	return m.record(sentMessage{Kind: "buttons", To: to, Body: body, Buttons: buttons, Footer: footer})
}

func (m *fakeMessenger) SendList(_ context.Context, to, body, label string, sections []domain.ListSection, _, footer string) error {
	return m.record(sentMessage{Kind: "list", To: to, Body: body, Label: label, Sections: sections, Footer: footer})
}

func (m *fakeMessenger) all() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *fakeMessenger) last(t *testing.T) sentMessage {
	t.Helper()
	all := m.all()
	require.NotEmpty(t, all, "no message sent")
	return all[len(all)-1]
}

func (m *fakeMessenger) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type fakeAccounts struct {
	users     map[string]domain.User
	passwords map[string]string
	codes     map[string]string

	registered []domain.RegistrationDraft
	regPasswd  []string
	getErr     error
}

func newFakeAccounts(users ...domain.User) *fakeAccounts {
	a := &fakeAccounts{
		users:     make(map[string]domain.User),
		passwords: make(map[string]string),
		codes:     make(map[string]string),
	}
	for _, u := range users {
		a.users[u.ID] = u
		a.passwords[u.Email] = "pass1234"
	}
	return a
}

func (a *fakeAccounts) byEmail(email string) (domain.User, bool) {
	for _, u := range a.users {
		if u.Email == email {
			return u, true
		}
	}
	return domain.User{}, false
}

func (a *fakeAccounts) Authenticate(_ context.Context, email, password string) (domain.User, error) {
	u, ok := a.byEmail(email)
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	if a.passwords[email] != password {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return u, nil
}

func (a *fakeAccounts) Register(_ context.Context, draft domain.RegistrationDraft, password, phone string) (domain.User, error) {
	if _, ok := a.byEmail(draft.Email); ok {
		return domain.User{}, domain.ErrAlreadyExists
	}
	a.registered = append(a.registered, draft)
	a.regPasswd = append(a.regPasswd, password)
	u := domain.User{
		ID:       fmt.Sprintf("u-new-%d", len(a.registered)),
		Name:     draft.Name,
		Email:    draft.Email,
		Phone:    phone,
		Role:     draft.Role,
		IsActive: true,
	}
	a.users[u.ID] = u
	a.passwords[u.Email] = password
	return u, nil
}

func (a *fakeAccounts) RedeemLinkCode(_ context.Context, code, _ string) (domain.User, error) {
	id, ok := a.codes[code]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	delete(a.codes, code)
	return a.users[id], nil
}

func (a *fakeAccounts) GetUser(_ context.Context, id string) (domain.User, error) {
	if a.getErr != nil {
		return domain.User{}, a.getErr
	}
	u, ok := a.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (a *fakeAccounts) UpgradeToFreelancer(_ context.Context, userID string) (domain.User, error) {
	u, ok := a.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	u.Role = domain.RoleFreelancer
	a.users[userID] = u
	return u, nil
}

type fakeWallet struct {
	mu          sync.Mutex
	balance     int
	err         error
	vouchers    []domain.VoucherDraft
	withdrawals []int
}

func (w *fakeWallet) Balance(context.Context, string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, w.err
}

func (w *fakeWallet) PurchaseVoucher(_ context.Context, _ string, draft domain.VoucherDraft) (domain.Voucher, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return domain.Voucher{}, w.err
	}
	if draft.Amount > w.balance {
		return domain.Voucher{}, domain.ErrInsufficientFunds
	}
	w.balance -= draft.Amount
	w.vouchers = append(w.vouchers, draft)
	return domain.Voucher{Code: fmt.Sprintf("VCH-%d", len(w.vouchers)), Amount: draft.Amount}, nil
}

func (w *fakeWallet) Withdraw(_ context.Context, _ string, amount int) (domain.Withdrawal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return domain.Withdrawal{}, w.err
	}
	if amount > w.balance {
		return domain.Withdrawal{}, domain.ErrInsufficientFunds
	}
	w.balance -= amount
	w.withdrawals = append(w.withdrawals, amount)
	return domain.Withdrawal{Reference: fmt.Sprintf("WD-%d", len(w.withdrawals)), Amount: amount}, nil
}

type availability struct {
	days     []string
	from, to string
}

type fakeClassroom struct {
	courses      []domain.Course
	bookings     []domain.Booking
	assignments  []domain.AssignmentDraft
	availability []availability
	panicCourses bool
}

func (c *fakeClassroom) Courses(context.Context, string) ([]domain.Course, error) {
	if c.panicCourses {
		panic("courses index out of range")
	}
	return c.courses, nil
}

func (c *fakeClassroom) Bookings(context.Context, string) ([]domain.Booking, error) {
	return c.bookings, nil
}

func (c *fakeClassroom) CreateAssignment(_ context.Context, _ string, draft domain.AssignmentDraft) (string, error) {
	c.assignments = append(c.assignments, draft)
	return fmt.Sprintf("A-%d", len(c.assignments)), nil
}

func (c *fakeClassroom) SetAvailability(_ context.Context, _ string, days []string, from, to string) error {
	c.availability = append(c.availability, availability{days: days, from: from, to: to})
	return nil
}

type fakeBackoffice struct {
	accounts    *fakeAccounts
	stats       domain.PlatformStats
	broadcasts  []string
	deactivated []string
}

func (b *fakeBackoffice) Stats(context.Context) (domain.PlatformStats, error) {
	return b.stats, nil
}

func (b *fakeBackoffice) FindUser(_ context.Context, query string) (domain.User, error) {
	for _, u := range b.accounts.users {
		if u.Email == query || u.Phone == query {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (b *fakeBackoffice) DeactivateUser(_ context.Context, userID string) error {
	if _, ok := b.accounts.users[userID]; !ok {
		return domain.ErrNotFound
	}
	b.deactivated = append(b.deactivated, userID)
	return nil
}

func (b *fakeBackoffice) Broadcast(_ context.Context, message string) (int, error) {
	b.broadcasts = append(b.broadcasts, message)
	return len(b.accounts.users), nil
}

type failingAudit struct{}

func (failingAudit) WriteMessage(context.Context, domain.AuditRecord) error {
	return errors.New("audit table unavailable")
}

type harness struct {
	engine     *Engine
	store      *repository.MemoryStore
	guard      *guard.Guard
	messenger  *fakeMessenger
	accounts   *fakeAccounts
	wallet     *fakeWallet
	classroom  *fakeClassroom
	backoffice *fakeBackoffice
	clock      *testClock
	cfg        Config
	seq        int
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	g, err := guard.New(testSecret, guard.WithClock(clock.Now))
	require.NoError(t, err)

	accounts := newFakeAccounts(studentUser, teacherUser, adminUser)
	h := &harness{
		store:      repository.NewMemoryStore(clock.Now),
		guard:      g,
		messenger:  &fakeMessenger{},
		accounts:   accounts,
		wallet:     &fakeWallet{balance: 100},
		classroom:  &fakeClassroom{},
		backoffice: &fakeBackoffice{accounts: accounts},
		clock:      clock,
	}
	cfg := Config{
		Store:      h.store,
		Audit:      h.store,
		Messenger:  h.messenger,
		Guard:      g,
		Accounts:   h.accounts,
		Wallet:     h.wallet,
		Classroom:  h.classroom,
		Backoffice: h.backoffice,
		Now:        clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.cfg = cfg
	h.engine, err = NewEngine(cfg)
	require.NoError(t, err)
	return h
}

// sibling returns a second engine over the same store and collaborators, as
// another process would run.
func (h *harness) sibling(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(h.cfg)
	require.NoError(t, err)
	return e
}

func (h *harness) nextID() string {
	h.seq++
	return fmt.Sprintf("wamid.%d", h.seq)
}

func (h *harness) text(t *testing.T, body string) {
	t.Helper()
	ev := domain.InboundEvent{From: testAddress, ProviderMessageID: h.nextID(), Kind: domain.EventText, Text: body}
	require.NoError(t, h.engine.Process(context.Background(), ev))
}

func (h *harness) choose(t *testing.T, kind domain.EventKind, id string) {
	t.Helper()
	ev := domain.InboundEvent{From: testAddress, ProviderMessageID: h.nextID(), Kind: kind, ChoiceID: id}
	require.NoError(t, h.engine.Process(context.Background(), ev))
}

func (h *harness) conv(t *testing.T) domain.Conversation {
	t.Helper()
	conv, err := h.store.GetOrCreate(context.Background(), testAddress)
	require.NoError(t, err)
	return conv
}

// seed puts the test conversation into flow with data, linked to user (if
// any), last active now.
func (h *harness) seed(t *testing.T, user *domain.User, flow domain.FlowName, data domain.FlowData) domain.Conversation {
	t.Helper()
	conv := h.conv(t)
	conv.State = domain.FlowState{Flow: flow, Data: data, LastActivity: h.clock.Now()}
	conv.LinkedUserID = ""
	if user != nil {
		conv.LinkedUserID = user.ID
	}
	h.store.Put(conv)
	return conv
}

func buttonTitles(msg sentMessage) []string {
	out := make([]string, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		out = append(out, b.Title)
	}
	return out
}

func rowIDs(msg sentMessage) []string {
	var out []string
	for _, s := range msg.Sections {
		for _, r := range s.Rows {
			out = append(out, r.ID)
		}
	}
	return out
}
