package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

type recordingProcessor struct {
	mu      sync.Mutex
	order   map[string][]string
	active  map[string]int
	overlap atomic.Bool
	calls   atomic.Int64
	block   chan struct{}
	started chan struct{}
	err     error
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{order: make(map[string][]string), active: make(map[string]int)}
}

func (p *recordingProcessor) Process(_ context.Context, ev domain.InboundEvent) error {
	p.mu.Lock()
	p.active[ev.From]++
	if p.active[ev.From] > 1 {
		p.overlap.Store(true)
	}
	p.mu.Unlock()

	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	time.Sleep(time.Millisecond)

	p.mu.Lock()
	p.active[ev.From]--
	p.order[ev.From] = append(p.order[ev.From], ev.ProviderMessageID)
	p.mu.Unlock()
	p.calls.Add(1)
	return p.err
}

func textEvent(from, id string) domain.InboundEvent {
	return domain.InboundEvent{From: from, ProviderMessageID: id, Kind: domain.EventText, Text: "hi"}
}

func TestDispatcherKeepsPerAddressOrder(t *testing.T) {
	proc := newRecordingProcessor()
	d, err := NewDispatcher(context.Background(), proc, 64, nil)
	require.NoError(t, err)

	addresses := []string{"15550000001", "15550000002", "15550000003"}
	for i := 0; i < 10; i++ {
		for _, a := range addresses {
			require.NoError(t, d.Submit(textEvent(a, fmt.Sprintf("m%d", i))))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	require.False(t, proc.overlap.Load(), "events for one address overlapped")
	for _, a := range addresses {
		require.Equal(t, []string{"m0", "m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9"}, proc.order[a])
	}
	require.Zero(t, d.Pending())
}

func TestDispatcherDropsWhenMailboxFull(t *testing.T) {
	proc := newRecordingProcessor()
	proc.block = make(chan struct{})
	proc.started = make(chan struct{}, 1)
	d, err := NewDispatcher(context.Background(), proc, 1, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit(textEvent(testAddress, "first")))
	<-proc.started
	require.NoError(t, d.Submit(textEvent(testAddress, "second")))
	require.Error(t, d.Submit(textEvent(testAddress, "third")))
	require.Equal(t, int64(1), d.Dropped())

	close(proc.block)
	require.NoError(t, d.Wait(context.Background()))
	require.Equal(t, []string{"first", "second"}, proc.order[testAddress])
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	proc := newRecordingProcessor()
	d, err := NewDispatcher(context.Background(), proc, 4, nil)
	require.NoError(t, err)
	require.NoError(t, d.Submit(textEvent(testAddress, "m1")))

	require.NoError(t, d.Close(context.Background()))

	require.ErrorIs(t, d.Submit(textEvent(testAddress, "m2")), ErrDispatcherClosed)
	require.Equal(t, int64(1), proc.calls.Load())
}

func TestDispatcherSurvivesProcessingErrors(t *testing.T) {
	proc := newRecordingProcessor()
	proc.err = errors.New("store unavailable")
	d, err := NewDispatcher(context.Background(), proc, 4, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit(textEvent(testAddress, "m1")))
	require.NoError(t, d.Submit(textEvent(testAddress, "m2")))
	require.NoError(t, d.Wait(context.Background()))

	require.Equal(t, int64(2), proc.calls.Load())
}

func TestDispatcherWaitHonoursContext(t *testing.T) {
	proc := newRecordingProcessor()
	proc.block = make(chan struct{})
	d, err := NewDispatcher(context.Background(), proc, 4, nil)
	require.NoError(t, err)
	require.NoError(t, d.Submit(textEvent(testAddress, "m1")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(proc.block)
	require.NoError(t, d.Wait(context.Background()))
}

func TestDispatcherDrivesEngine(t *testing.T) {
	h := newHarness(t)
	d, err := NewDispatcher(context.Background(), h.engine, 8, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit(domain.InboundEvent{From: testAddress, ProviderMessageID: "w1", Kind: domain.EventText, Text: "REGISTER"}))
	require.NoError(t, d.Submit(domain.InboundEvent{From: testAddress, ProviderMessageID: "w2", Kind: domain.EventButton, ChoiceID: "role_student"}))
	require.NoError(t, d.Submit(domain.InboundEvent{From: testAddress, ProviderMessageID: "w3", Kind: domain.EventText, Text: "Ann Learner"}))
	require.NoError(t, d.Wait(context.Background()))

	conv := h.conv(t)
	require.Equal(t, domain.FlowRegisterEmail, conv.State.Flow)
	require.Equal(t, &domain.RegistrationDraft{Role: domain.RoleStudent, Name: "Ann Learner"}, conv.State.Data.Registration)
}
