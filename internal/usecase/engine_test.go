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
)

func TestNewEngineValidatesCollaborators(t *testing.T) {
	_, err := NewEngine(Config{})
	require.EqualError(t, err, "usecase: conversation store must not be nil")

	h := newHarness(t)
	_, err = NewEngine(Config{Store: h.store, Messenger: h.messenger, Guard: h.guard})
	require.EqualError(t, err, "usecase: platform collaborators must not be nil")

	require.Empty(t, h.engine.exec.unregistered(), "every known flow needs a handler")
}

func TestProcessRejectsEmptyEvents(t *testing.T) {
	h := newHarness(t)

	err := h.engine.Process(context.Background(), domain.InboundEvent{Kind: domain.EventText, Text: "hi"})
	var ue *Error
	require.True(t, errors.As(err, &ue))
	require.Equal(t, ErrorInvalidEvent, ue.Code)

	err = h.engine.Process(context.Background(), domain.InboundEvent{From: testAddress, Kind: domain.EventButton})
	require.True(t, errors.As(err, &ue))
	require.Equal(t, "missing_payload", ue.Reason)
	require.Empty(t, h.messenger.all())
}

func TestVoucherAmountChoiceKeepsGiftFields(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &studentUser, domain.FlowVoucherAmount, domain.FlowData{
		Voucher: &domain.VoucherDraft{IsGift: true, RecipientEmail: "a@b.com"},
	})

	h.choose(t, domain.EventList, "voucher_50")

	conv := h.conv(t)
	require.Equal(t, domain.FlowVoucherConfirm, conv.State.Flow)
	require.Equal(t, &domain.VoucherDraft{IsGift: true, RecipientEmail: "a@b.com", Amount: 50}, conv.State.Data.Voucher)
	msg := h.messenger.last(t)
	require.Equal(t, "buttons", msg.Kind)
	require.Equal(t, "Buy a $50 voucher as a gift for a@b.com?", msg.Body)
}

func TestExpiredSessionIsProcessedAsIdle(t *testing.T) {
	h := newHarness(t)
	h.seed(t, nil, domain.FlowRegisterEmail, domain.FlowData{Registration: &domain.RegistrationDraft{Role: domain.RoleStudent, Name: "Ann"}})
	h.clock.Advance(31 * time.Minute)

	h.text(t, "ann@example.com")

	conv := h.conv(t)
	require.Equal(t, domain.FlowIdle, conv.State.Flow)
	require.True(t, conv.State.Data.IsEmpty())
	require.Equal(t, h.clock.Now(), conv.State.LastActivity)
	require.Equal(t, msgWelcome, h.messenger.last(t).Body)
}

func TestSessionWithinTimeoutContinues(t *testing.T) {
	h := newHarness(t)
	h.seed(t, nil, domain.FlowRegisterEmail, domain.FlowData{Registration: &domain.RegistrationDraft{Role: domain.RoleStudent, Name: "Ann"}})
	h.clock.Advance(29 * time.Minute)

	h.text(t, "ann@example.com")

	conv := h.conv(t)
	require.Equal(t, domain.FlowRegisterConfirm, conv.State.Flow)
	require.Equal(t, "ann@example.com", conv.State.Data.Registration.Email)
}

func TestIdleConversationNeverExpires(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &studentUser, domain.FlowIdle, domain.FlowData{})
	h.clock.Advance(30 * 24 * time.Hour)

	h.text(t, "LOGIN")

	require.Contains(t, h.messenger.all()[0].Body, "already logged in")
}

func TestUnknownStoredFlowFallsBackToIdle(t *testing.T) {
	h := newHarness(t)
	h.seed(t, nil, domain.FlowName("legacy_checkout_step"), domain.FlowData{Voucher: &domain.VoucherDraft{Amount: 10}})

	h.text(t, "yes")

	conv := h.conv(t)
	require.Equal(t, domain.FlowIdle, conv.State.Flow)
	require.True(t, conv.State.Data.IsEmpty())
	require.Equal(t, msgWelcome, h.messenger.last(t).Body)
	require.Empty(t, h.wallet.vouchers)
}

func TestRedeliveredMessageIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &studentUser, domain.FlowVoucherConfirm, domain.FlowData{Voucher: &domain.VoucherDraft{Amount: 25}})
	ev := domain.InboundEvent{From: testAddress, ProviderMessageID: "wamid.dup", Kind: domain.EventButton, ChoiceID: "confirm"}

	require.NoError(t, h.engine.Process(context.Background(), ev))
	require.NoError(t, h.engine.Process(context.Background(), ev))

	require.Len(t, h.wallet.vouchers, 1)
	require.Len(t, h.messenger.all(), 1)
	require.Equal(t, 75, h.wallet.balance)
}

func TestConcurrentEnginesSerializePerAddress(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &studentUser, domain.FlowVoucherConfirm, domain.FlowData{Voucher: &domain.VoucherDraft{Amount: 25}})
	engines := []*Engine{h.engine, h.sibling(t)}

	var wg sync.WaitGroup
	errs := make([]error, len(engines))
	for i, e := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := domain.InboundEvent{From: testAddress, ProviderMessageID: fmt.Sprintf("wamid.tap-%d", i), Kind: domain.EventButton, ChoiceID: "confirm"}
			errs[i] = e.Process(context.Background(), ev)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, h.wallet.vouchers, 1)
	require.Equal(t, 75, h.wallet.balance)
	require.NotEqual(t, domain.FlowVoucherConfirm, h.conv(t).State.Flow)

	ok, err := h.store.AcquireLease(context.Background(), testAddress, "after", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "lease must be released once processing ends")
}

func TestBusyConversationTimesOut(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.HandlerTimeout = 50 * time.Millisecond
		c.LeaseRetry = 5 * time.Millisecond
	})
	ctx := context.Background()
	ok, err := h.store.AcquireLease(ctx, testAddress, "other-worker", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = h.engine.Process(ctx, domain.InboundEvent{From: testAddress, ProviderMessageID: "wamid.busy", Kind: domain.EventText, Text: "MENU"})
	var ue *Error
	require.True(t, errors.As(err, &ue))
	require.Equal(t, ErrorBusy, ue.Code)
	require.Empty(t, h.messenger.all())

	require.NoError(t, h.store.ReleaseLease(ctx, testAddress, "other-worker"))
	h.text(t, "MENU")
	require.NotEmpty(t, h.messenger.all())
}

func TestUndecodableStoredDataResetsToIdle(t *testing.T) {
	h := newHarness(t)
	conv := h.conv(t)
	conv.LinkedUserID = studentUser.ID
	conv.State = domain.FlowState{Flow: domain.FlowVoucherAmount, LastActivity: h.clock.Now(), Corrupt: true}
	h.store.Put(conv)

	h.text(t, "50")

	got := h.conv(t)
	require.Equal(t, domain.FlowIdle, got.State.Flow)
	require.True(t, got.State.Data.IsEmpty())
	require.NotEmpty(t, h.messenger.all())
	require.Empty(t, h.wallet.vouchers)
}

func TestInactiveConversationIsDropped(t *testing.T) {
	h := newHarness(t)
	conv := h.conv(t)
	require.NoError(t, h.store.SetActive(conv.ID, false))

	h.text(t, "MENU")

	require.Empty(t, h.messenger.all())
}

func TestAddressFormsShareOneConversation(t *testing.T) {
	h := newHarness(t)
	h.text(t, "REGISTER")

	ev := domain.InboundEvent{From: "+1 (555) 123-0001", ProviderMessageID: "wamid.x", Kind: domain.EventButton, ChoiceID: "role_teacher"}
	require.NoError(t, h.engine.Process(context.Background(), ev))

	conv := h.conv(t)
	require.Equal(t, domain.FlowRegisterName, conv.State.Flow)
	require.Equal(t, domain.RoleTeacher, conv.State.Data.Registration.Role)
}

func TestLinkToDeletedAccountIsDropped(t *testing.T) {
	h := newHarness(t)
	ghost := domain.User{ID: "u-gone"}
	h.seed(t, &ghost, domain.FlowStudentMenu, domain.FlowData{})

	h.text(t, "MENU")

	conv := h.conv(t)
	require.False(t, conv.IsLinked())
	require.Equal(t, domain.FlowIdle, conv.State.Flow)
}

func TestAuditRedactsCredentials(t *testing.T) {
	h := newHarness(t)
	h.seed(t, nil, domain.FlowLoginPassword, domain.FlowData{Login: &domain.LoginDraft{Email: "sam@example.com"}})

	h.text(t, "pass1234")
	h.text(t, testSecret)
	h.engine.Flush()

	var inbound []domain.AuditRecord
	for _, rec := range h.store.Messages() {
		if rec.Direction == domain.DirectionInbound {
			inbound = append(inbound, rec)
		}
	}
	require.Len(t, inbound, 2)
	for _, rec := range inbound {
		require.Equal(t, redacted, rec.Body)
		require.NotEmpty(t, rec.ProviderMessageID)
	}
}

func TestAuditRecordsOutbound(t *testing.T) {
	h := newHarness(t)

	h.text(t, "hi")
	h.engine.Flush()

	msgs := h.store.Messages()
	require.Len(t, msgs, 2)
	byDir := map[domain.AuditDirection]domain.AuditRecord{}
	for _, m := range msgs {
		byDir[m.Direction] = m
	}
	require.Equal(t, "hi", byDir[domain.DirectionInbound].Body)
	require.Equal(t, "buttons", byDir[domain.DirectionOutbound].Kind)
	require.Equal(t, msgWelcome, byDir[domain.DirectionOutbound].Body)
}

func TestAuditFailuresAreCountedNotFatal(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Audit = failingAudit{} })

	h.text(t, "REGISTER")
	h.engine.Flush()

	require.Equal(t, domain.FlowRegisterRole, h.conv(t).State.Flow)
	require.Equal(t, int64(2), h.engine.AuditFailures())
}

type slowAudit struct {
	release chan struct{}
	mu      sync.Mutex
	written int
}

func (a *slowAudit) WriteMessage(ctx context.Context, _ domain.AuditRecord) error {
	select {
	case <-a.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	a.mu.Lock()
	a.written++
	a.mu.Unlock()
	return nil
}

func TestDrainWaitsForAuditWrites(t *testing.T) {
	audit := &slowAudit{release: make(chan struct{})}
	h := newHarness(t, func(c *Config) { c.Audit = audit })

	h.text(t, "hi")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.engine.Drain(ctx), context.DeadlineExceeded)

	close(audit.release)
	require.NoError(t, h.engine.Drain(context.Background()))
	audit.mu.Lock()
	defer audit.mu.Unlock()
	require.Equal(t, 2, audit.written)
	require.Zero(t, h.engine.AuditFailures())
}

func TestSendFailureResetsToIdle(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &studentUser, domain.FlowVoucherType, domain.FlowData{Voucher: &domain.VoucherDraft{}})
	h.messenger.err = errors.New("provider 503")

	err := h.engine.Process(context.Background(), domain.InboundEvent{
		From: testAddress, ProviderMessageID: "wamid.503", Kind: domain.EventButton, ChoiceID: "voucher_gift",
	})

	require.NoError(t, err)
	require.Equal(t, domain.FlowIdle, h.conv(t).State.Flow)
}
