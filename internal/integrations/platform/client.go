package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx responses that do not map to a domain
// error.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("platform: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type tokenPayload struct {
	Token string `json:"token"`
}

// Client talks to the learning platform's bot API. It covers accounts,
// wallet, classroom and back-office calls.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(ps Getter, paramPrefix, baseURL string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("platform: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("platform: parameter prefix must not be empty")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("platform: base url must not be empty")
	}
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveToken caches the token after the first successful fetch. Errors are
// not cached, so a throttled parameter read is retried on the next call.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	raw, err := c.getter.GetParameter(ctx, c.paramPrefix+"/platform-token")
	if err != nil {
		return "", fmt.Errorf("platform: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("platform: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("platform: service token is empty")
	}
	c.token = tp.Token
	return c.token, nil
}

func userPath(userID string, rest ...string) string {
	p := "/bot/users/" + url.PathEscape(userID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	var u domain.User
	in := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/bot/auth/login", in, &u)
	return u, err
}

func (c *Client) Register(ctx context.Context, draft domain.RegistrationDraft, password, phone string) (domain.User, error) {
	in := struct {
		Role     domain.Role `json:"role"`
		Name     string      `json:"name"`
		Email    string      `json:"email"`
		Password string      `json:"password"`
		Phone    string      `json:"phone"`
	}{draft.Role, draft.Name, draft.Email, password, phone}
	var u domain.User
	err := c.do(ctx, http.MethodPost, "/bot/users", in, &u)
	return u, err
}

func (c *Client) RedeemLinkCode(ctx context.Context, code, phone string) (domain.User, error) {
	var u domain.User
	err := c.do(ctx, http.MethodPost, "/bot/link-codes/redeem", map[string]string{"code": code, "phone": phone}, &u)
	return u, err
}

func (c *Client) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := c.do(ctx, http.MethodGet, userPath(id), nil, &u)
	return u, err
}

func (c *Client) UpgradeToFreelancer(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := c.do(ctx, http.MethodPost, userPath(userID, "upgrade"), map[string]string{"role": string(domain.RoleFreelancer)}, &u)
	return u, err
}

func (c *Client) Balance(ctx context.Context, userID string) (int, error) {
	var out struct {
		Balance int `json:"balance"`
	}
	err := c.do(ctx, http.MethodGet, userPath(userID, "wallet"), nil, &out)
	return out.Balance, err
}

func (c *Client) PurchaseVoucher(ctx context.Context, userID string, draft domain.VoucherDraft) (domain.Voucher, error) {
	in := struct {
		Amount         int    `json:"amount"`
		IsGift         bool   `json:"isGift"`
		RecipientEmail string `json:"recipientEmail,omitempty"`
	}{draft.Amount, draft.IsGift, draft.RecipientEmail}
	var v domain.Voucher
	err := c.do(ctx, http.MethodPost, userPath(userID, "vouchers"), in, &v)
	return v, err
}

func (c *Client) Withdraw(ctx context.Context, userID string, amount int) (domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := c.do(ctx, http.MethodPost, userPath(userID, "withdrawals"), map[string]int{"amount": amount}, &w)
	return w, err
}

func (c *Client) Courses(ctx context.Context, userID string) ([]domain.Course, error) {
	var out struct {
		Courses []domain.Course `json:"courses"`
	}
	err := c.do(ctx, http.MethodGet, userPath(userID, "courses"), nil, &out)
	return out.Courses, err
}

func (c *Client) Bookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	var out struct {
		Bookings []domain.Booking `json:"bookings"`
	}
	err := c.do(ctx, http.MethodGet, userPath(userID, "bookings"), nil, &out)
	return out.Bookings, err
}

func (c *Client) CreateAssignment(ctx context.Context, userID string, draft domain.AssignmentDraft) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, userPath(userID, "assignments"), draft, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) SetAvailability(ctx context.Context, userID string, days []string, from, to string) error {
	in := struct {
		Days []string `json:"days"`
		From string   `json:"from"`
		To   string   `json:"to"`
	}{days, from, to}
	return c.do(ctx, http.MethodPut, userPath(userID, "availability"), in, nil)
}

func (c *Client) Stats(ctx context.Context) (domain.PlatformStats, error) {
	var s domain.PlatformStats
	err := c.do(ctx, http.MethodGet, "/bot/admin/stats", nil, &s)
	return s, err
}

func (c *Client) FindUser(ctx context.Context, query string) (domain.User, error) {
	var u domain.User
	err := c.do(ctx, http.MethodGet, "/bot/admin/users?"+url.Values{"q": {query}}.Encode(), nil, &u)
	return u, err
}

func (c *Client) DeactivateUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/bot/admin/users/"+url.PathEscape(userID)+"/deactivate", nil, nil)
}

func (c *Client) Broadcast(ctx context.Context, message string) (int, error) {
	var out struct {
		Recipients int `json:"recipients"`
	}
	err := c.do(ctx, http.MethodPost, "/bot/admin/broadcasts", map[string]string{"message": message}, &out)
	return out.Recipients, err
}

// do sends a JSON request and decodes a JSON response into out when it is
// non-nil. Status codes with a domain meaning map to domain errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("platform: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("platform: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if sentinel := statusError(res.StatusCode); sentinel != nil {
			return fmt.Errorf("platform: %s %s: %w", method, path, sentinel)
		}
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}
	if out == nil {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("platform: read response body: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}

func statusError(code int) error {
	switch code {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized:
		return domain.ErrInvalidCredentials
	case http.StatusConflict:
		return domain.ErrAlreadyExists
	case http.StatusPaymentRequired:
		return domain.ErrInsufficientFunds
	}
	return nil
}
