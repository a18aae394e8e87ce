// Package client is the Go client for the pairing API, used by display
// devices: request a code, poll its status, or consume a code on behalf of a
// control surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors mirror the server's error taxonomy so callers can branch
// on outcome without parsing response bodies.
var (
	ErrNotFoundOrExpired  = errors.New("code invalid or expired")
	ErrAlreadyConsumed    = errors.New("code already activated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("rate limited")
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests and
// callers that need custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CodeInfo is a freshly issued pairing code and its server-side expiry.
type CodeInfo struct {
	Code      string    `json:"activationCode"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Status is the state of a live code as seen by the display device.
type Status struct {
	Valid       bool    `json:"valid"`
	IsActivated bool    `json:"isActivated"`
	UserID      *string `json:"userId,omitempty"`
}

// User is the account returned on successful activation.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreateCode requests a new pairing code.
func (c *Client) CreateCode(ctx context.Context) (*CodeInfo, error) {
	var info CodeInfo
	if err := c.do(ctx, http.MethodPost, "/api/activation", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Status reads the state of a code. Returns ErrNotFoundOrExpired once the
// code is dead.
func (c *Client) Status(ctx context.Context, code string) (*Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/api/activation?code="+code, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Activate consumes a code with an identity assertion.
func (c *Client) Activate(ctx context.Context, code, email, password string) (*User, error) {
	body := map[string]string{"code": code, "email": email, "password": password}

	var resp struct {
		Success bool `json:"success"`
		User    User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/activation", body, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	return c.decodeError(resp)
}

func (c *Client) decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&body)

	switch body.Code {
	case "NOT_FOUND_OR_EXPIRED":
		return ErrNotFoundOrExpired
	case "ALREADY_CONSUMED":
		return ErrAlreadyConsumed
	case "INVALID_CREDENTIALS":
		return ErrInvalidCredentials
	case "RATE_LIMIT_EXCEEDED":
		return ErrRateLimited
	}

	if body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
