package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/guard"
)

const (
	meterName    = "github.com/ty2499/filiova-learning-platform-sub004/internal/usecase"
	auditTimeout = 5 * time.Second
	redacted     = "[redacted]"
)

// Auditor writes the message log in the background. A failed write never
// affects the conversation; it is counted and logged instead.
type Auditor struct {
	writer AuditWriter
	log    *slog.Logger
	now    func() time.Time

	failures atomic.Int64
	counter  metric.Int64Counter
	wg       sync.WaitGroup
}

func newAuditor(w AuditWriter, log *slog.Logger, now func() time.Time) *Auditor {
	counter, err := otel.Meter(meterName).Int64Counter(
		"chatbot.audit.write_failures",
		metric.WithDescription("Message log writes that failed and were dropped."),
	)
	if err != nil {
		log.Warn("audit failure counter unavailable", "err", err)
	}
	return &Auditor{writer: w, log: log, now: now, counter: counter}
}

// Inbound logs ev. Bodies that may carry a credential are redacted.
func (a *Auditor) Inbound(ctx context.Context, conv domain.Conversation, ev domain.InboundEvent) {
	body := ev.Input()
	if !ev.IsChoice() && (conv.State.Flow.CarriesCredential() || guard.LooksLikeSecret(body)) {
		body = redacted
	}
	a.write(ctx, domain.AuditRecord{
		ConversationID:    conv.ID,
		ChannelAddress:    conv.ChannelAddress,
		Direction:         domain.DirectionInbound,
		Kind:              string(ev.Kind),
		Body:              body,
		ProviderMessageID: ev.ProviderMessageID,
	})
}

func (a *Auditor) Outbound(ctx context.Context, conv domain.Conversation, kind, body string) {
	a.write(ctx, domain.AuditRecord{
		ConversationID: conv.ID,
		ChannelAddress: conv.ChannelAddress,
		Direction:      domain.DirectionOutbound,
		Kind:           kind,
		Body:           body,
	})
}

func (a *Auditor) write(ctx context.Context, rec domain.AuditRecord) {
	if a == nil || a.writer == nil {
		return
	}
	rec.At = a.now()
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, auditTimeout)
		defer cancel()
		if err := a.writer.WriteMessage(ctx, rec); err != nil {
			a.failures.Add(1)
			if a.counter != nil {
				a.counter.Add(ctx, 1)
			}
			a.log.Warn("audit write failed",
				"conversation_id", rec.ConversationID,
				"direction", rec.Direction,
				"err", err,
			)
		}
	}()
}

// Failures returns the number of dropped audit writes since start.
func (a *Auditor) Failures() int64 {
	if a == nil {
		return 0
	}
	return a.failures.Load()
}

// Wait blocks until in-flight writes finish.
func (a *Auditor) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}
