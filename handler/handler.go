package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/integrations/whatsapp"
	"github.com/ty2499/filiova-learning-platform-sub004/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	signatureHeader   = "X-Hub-Signature-256"
	maxBodyBytes      = 1 << 20
)

// Submitter accepts normalized events for asynchronous processing.
type Submitter interface {
	Submit(ev domain.InboundEvent) error
}

// Waiter blocks until submitted events have been processed. Lambda mode
// needs it because the runtime freezes once the response is returned.
type Waiter interface {
	Wait(ctx context.Context) error
}

type Handler struct {
	submitter   Submitter
	waiter      Waiter
	appSecret   []byte
	verifyToken string
	log         *slog.Logger
}

type Option func(*Handler)

func WithWaiter(w Waiter) Option {
	return func(h *Handler) {
		h.waiter = w
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

type ackResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func NewHandler(sub Submitter, appSecret, verifyToken string, opts ...Option) (*Handler, error) {
	if sub == nil {
		return nil, errors.New("handler: submitter must not be nil")
	}
	if appSecret == "" {
		return nil, errors.New("handler: app secret must not be empty")
	}
	if verifyToken == "" {
		return nil, errors.New("handler: verify token must not be empty")
	}
	h := &Handler{
		submitter:   sub,
		appSecret:   []byte(appSecret),
		verifyToken: verifyToken,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves the webhook behind API Gateway. GET answers the subscription
// handshake; POST acknowledges a delivery once its events are queued.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.log.With("correlation_id", correlationID)

	switch req.HTTPMethod {
	case http.MethodGet:
		return h.verify(req, correlationID, log), nil
	case http.MethodPost:
		return h.deliver(ctx, req, correlationID, log), nil
	default:
		return errorJSON(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "", correlationID), nil
	}
}

func (h *Handler) verify(req events.APIGatewayProxyRequest, correlationID string, log *slog.Logger) events.APIGatewayProxyResponse {
	q := req.QueryStringParameters
	token := q["hub.verify_token"]
	if q["hub.mode"] != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		log.Warn("webhook verification rejected", "mode", q["hub.mode"])
		return errorJSON(http.StatusForbidden, "FORBIDDEN", "", correlationID)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":    "text/plain",
			correlationHeader: correlationID,
		},
		Body: q["hub.challenge"],
	}
}

func (h *Handler) deliver(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string, log *slog.Logger) events.APIGatewayProxyResponse {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Warn("webhook body is not valid base64", "err", err)
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidEvent), "body is not valid base64", correlationID)
		}
		body = decoded
	}

	if !h.validSignature(body, headerValue(req.Headers, signatureHeader)) {
		log.Warn("webhook signature mismatch")
		return errorJSON(http.StatusUnauthorized, "INVALID_SIGNATURE", "", correlationID)
	}

	evs, err := whatsapp.Normalize(body)
	if err != nil {
		log.Warn("webhook body rejected", "err", err)
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidEvent), "body is not a webhook delivery", correlationID)
	}

	accepted := 0
	for _, ev := range evs {
		err := h.submitter.Submit(ev)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, usecase.ErrDispatcherClosed):
			log.Warn("webhook delivery refused while shutting down", "accepted", accepted)
			return errorJSON(http.StatusServiceUnavailable, "UNAVAILABLE", "shutting down", correlationID)
		default:
			log.Warn("inbound event not queued", "message_id", ev.ProviderMessageID, "err", err)
		}
	}

	if h.waiter != nil && accepted > 0 {
		if err := h.waiter.Wait(ctx); err != nil {
			log.Error("waiting for event processing", "err", err)
		}
	}

	log.Info("webhook delivery accepted", "events", len(evs), "accepted", accepted)
	return jsonResponse(http.StatusOK, ackResponse{Status: "ok", Accepted: accepted}, correlationID)
}

func (h *Handler) validSignature(body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.appSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ServeHTTP adapts Handle for the long-running server mode.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	req := events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               make(map[string]string, len(r.Header)),
		QueryStringParameters: make(map[string]string),
		Body:                  string(body),
	}
	for k := range r.Header {
		req.Headers[k] = r.Header.Get(k)
	}
	for k := range r.URL.Query() {
		req.QueryStringParameters[k] = r.URL.Query().Get(k)
	}

	resp, _ := h.Handle(r.Context(), req)
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func jsonResponse(status int, v any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func errorJSON(status int, code, message, correlationID string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorResponse{Error: code, Message: message}, correlationID)
}
