package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v21.0"

	maxButtons        = 3
	maxButtonTitleLen = 20
	maxListRows       = 10
	maxRowTitleLen    = 24
	maxRowDescLen     = 72
	maxListLabelLen   = 20
	maxTextBodyLen    = 4096
	maxInteractiveLen = 1024
	maxHeaderLen      = 60
	maxFooterLen      = 60
)

// ErrInvalidMessage is returned before any request for shapes the Cloud API
// would reject.
var ErrInvalidMessage = errors.New("whatsapp: invalid message")

type outboundMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type interactive struct {
	Type   string     `json:"type"`
	Header *header    `json:"header,omitempty"`
	Body   plainText  `json:"body"`
	Footer *plainText `json:"footer,omitempty"`
	Action action     `json:"action"`
}

type header struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type plainText struct {
	Text string `json:"text"`
}

type action struct {
	Buttons  []replyButton `json:"buttons,omitempty"`
	Button   string        `json:"button,omitempty"`
	Sections []listSection `json:"sections,omitempty"`
}

type replyButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type listSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []listRow `json:"rows"`
}

type listRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// tokenPayload is the JSON shape stored in SSM for the access token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx responses from the Graph API.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("whatsapp: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client sends messages through the Cloud API for one business phone number.
type Client struct {
	baseURL       string
	phoneNumberID string
	httpClient    *http.Client
	limiter       *rate.Limiter
	getter        Getter
	paramPrefix   string

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit caps outbound sends per second across all recipients.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a Client. The access token is read from the parameter
// store on the first send and cached for the life of the process.
func NewClient(ps Getter, paramPrefix, phoneNumberID string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("whatsapp: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("whatsapp: parameter prefix must not be empty")
	}
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" {
		return nil, errors.New("whatsapp: phone number id must not be empty")
	}
	c := &Client{
		baseURL:       defaultBaseURL,
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(20), 20),
		getter:        ps,
		paramPrefix:   paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveToken caches the token after the first successful fetch. A failed
// fetch is retried on the next send.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := fetchToken(ctx, c.getter, c.paramPrefix+"/whatsapp-token")
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) messagesURL() string {
	base := strings.TrimRight(c.baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + "/" + c.phoneNumberID + "/messages"
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	if err := checkLen("text body", body, 1, maxTextBodyLen); err != nil {
		return err
	}
	return c.send(ctx, outboundMessage{
		To:   to,
		Type: "text",
		Text: &textBody{Body: body},
	})
}

func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []domain.Button, head, foot string) error {
	if len(buttons) == 0 || len(buttons) > maxButtons {
		return fmt.Errorf("%w: %d buttons, want 1 to %d", ErrInvalidMessage, len(buttons), maxButtons)
	}
	msg := interactive{Type: "button"}
	for _, b := range buttons {
		if b.ID == "" {
			return fmt.Errorf("%w: button without id", ErrInvalidMessage)
		}
		if err := checkLen("button title", b.Title, 1, maxButtonTitleLen); err != nil {
			return err
		}
		rb := replyButton{Type: "reply"}
		rb.Reply.ID = b.ID
		rb.Reply.Title = b.Title
		msg.Action.Buttons = append(msg.Action.Buttons, rb)
	}
	if err := decorate(&msg, body, head, foot); err != nil {
		return err
	}
	return c.send(ctx, outboundMessage{To: to, Type: "interactive", Interactive: &msg})
}

func (c *Client) SendList(ctx context.Context, to, body, buttonLabel string, sections []domain.ListSection, head, foot string) error {
	if err := checkLen("list button label", buttonLabel, 1, maxListLabelLen); err != nil {
		return err
	}
	msg := interactive{Type: "list"}
	msg.Action.Button = buttonLabel
	rows := 0
	for _, s := range sections {
		ls := listSection{Title: s.Title}
		for _, r := range s.Rows {
			if r.ID == "" {
				return fmt.Errorf("%w: list row without id", ErrInvalidMessage)
			}
			if err := checkLen("row title", r.Title, 1, maxRowTitleLen); err != nil {
				return err
			}
			if err := checkLen("row description", r.Description, 0, maxRowDescLen); err != nil {
				return err
			}
			ls.Rows = append(ls.Rows, listRow{ID: r.ID, Title: r.Title, Description: r.Description})
			rows++
		}
		msg.Action.Sections = append(msg.Action.Sections, ls)
	}
	if rows == 0 || rows > maxListRows {
		return fmt.Errorf("%w: %d list rows, want 1 to %d", ErrInvalidMessage, rows, maxListRows)
	}
	if len(msg.Action.Sections) > 1 {
		for _, s := range msg.Action.Sections {
			if s.Title == "" {
				return fmt.Errorf("%w: multi-section lists need section titles", ErrInvalidMessage)
			}
		}
	}
	if err := decorate(&msg, body, head, foot); err != nil {
		return err
	}
	return c.send(ctx, outboundMessage{To: to, Type: "interactive", Interactive: &msg})
}

func decorate(msg *interactive, body, head, foot string) error {
	if err := checkLen("interactive body", body, 1, maxInteractiveLen); err != nil {
		return err
	}
	msg.Body = plainText{Text: body}
	if head != "" {
		if err := checkLen("header", head, 1, maxHeaderLen); err != nil {
			return err
		}
		msg.Header = &header{Type: "text", Text: head}
	}
	if foot != "" {
		if err := checkLen("footer", foot, 1, maxFooterLen); err != nil {
			return err
		}
		msg.Footer = &plainText{Text: foot}
	}
	return nil
}

func checkLen(field, s string, lo, hi int) error {
	if n := utf8.RuneCountInString(s); n < lo || n > hi {
		return fmt.Errorf("%w: %s length %d outside %d..%d", ErrInvalidMessage, field, n, lo, hi)
	}
	return nil
}

func (c *Client) send(ctx context.Context, msg outboundMessage) error {
	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"
	if msg.To == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("whatsapp: rate limit wait: %w", err)
		}
	}
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal message: %w", err)
	}
	url := c.messagesURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send %s: %w", msg.Type, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
	return nil
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("whatsapp: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("whatsapp: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("whatsapp: access token is empty")
	}
	return tp.Token, nil
}
