// Package auth delegates identity checks to the external auth service. The
// service owns credentials and session-cookie issuance; this client only asks
// "who is this cookie" and forwards logout.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fahadahaf/chat-ui/internal/log"
)

// ErrUnauthenticated indicates the session cookie is missing or invalid.
var ErrUnauthenticated = errors.New("unauthenticated")

// SessionCookie is the cookie name carrying the opaque session token.
const SessionCookie = "session"

// Identity is the authenticated caller as reported by the auth service.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
}

// Client talks to one auth service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Client for the auth service at baseURL.
func New(baseURL string, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("auth: base URL is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}, nil
}

// Me resolves the session token to an identity. An empty token or a 401/403
// from the service maps to ErrUnauthenticated.
func (c *Client) Me(ctx context.Context, sessionToken string) (Identity, error) {
	if sessionToken == "" {
		return Identity{}, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("building me request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sessionToken})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("resolving identity: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return Identity{}, ErrUnauthenticated
	default:
		return Identity{}, fmt.Errorf("me request failed with status %d", resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decoding identity: %w", err)
	}
	if id.UserID == "" {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// Logout invalidates the session token. A best-effort fire-and-forget
// command: the service not knowing the token is still a successful logout.
func (c *Client) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("building logout request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sessionToken})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}
	return nil
}
