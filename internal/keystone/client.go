// Package keystone mirrors papers and updates into the Keystone admin CMS
// over its GraphQL API. The mirror is best effort: the SQLite store is the
// system of record and a failed sync never fails the originating request.
package keystone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 30 * time.Second

// Config holds the connection settings for the Keystone admin API.
type Config struct {
	// Endpoint is the GraphQL endpoint, e.g. http://localhost:3002/api/graphql.
	Endpoint string
	// AuthEndpoint is the session login endpoint, e.g. http://localhost:3002/api/session.
	AuthEndpoint string
	// Email and Password are the service-account credentials.
	Email    string
	Password string
	// Timeout bounds each HTTP call. Zero selects 30 seconds.
	Timeout time.Duration
}

// Client executes authenticated GraphQL queries against Keystone. The
// session cookie is obtained lazily on first use, cached for all callers,
// and refreshed once when a call comes back unauthorized. Concurrent
// refreshes collapse into a single login request.
type Client struct {
	cfg    Config
	client *http.Client

	mu      sync.Mutex
	session string
	login   singleflight.Group
}

// NewClient creates a Client for the given Keystone instance.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// graphQLRequest is the body POSTed to the GraphQL endpoint.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the GraphQL-over-HTTP response envelope.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// loginRequest is the body POSTed to the session endpoint.
type loginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

// Execute runs a GraphQL query or mutation and unmarshals the data payload
// into out (which may be nil for mutations whose result is ignored). An
// unauthorized response invalidates the cached session and replays the call
// exactly once after re-authenticating; any other failure propagates
// immediately.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, out any) error {
	session, err := c.currentSession(ctx)
	if err != nil {
		return err
	}

	data, status, err := c.post(ctx, session, query, variables)
	if status == http.StatusUnauthorized {
		slog.Info("keystone session expired, reauthenticating")
		session, err = c.refreshSession(ctx, session)
		if err != nil {
			return err
		}
		data, _, err = c.post(ctx, session, query, variables)
	}
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parsing graphql data: %w", err)
		}
	}
	return nil
}

// post sends a single GraphQL request with the given session cookie. The
// HTTP status code is returned alongside the error so Execute can detect an
// expired session.
func (c *Client) post(ctx context.Context, session, query string, variables map[string]any) (json.RawMessage, int, error) {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("creating graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", session)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sending graphql request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading graphql response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, resp.StatusCode, fmt.Errorf("keystone rejected session (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected graphql status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("parsing graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, resp.StatusCode, fmt.Errorf("graphql execution failed: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, resp.StatusCode, nil
}

// currentSession returns the cached session cookie, logging in first if none
// is cached yet.
func (c *Client) currentSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != "" {
		return session, nil
	}
	return c.refreshSession(ctx, "")
}

// refreshSession replaces the cached session cookie. Concurrent callers that
// observed the same stale session share a single login request; a caller
// whose stale value was already replaced gets the fresh cookie without
// logging in again.
func (c *Client) refreshSession(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.session != "" && c.session != stale {
		session := c.session
		c.mu.Unlock()
		return session, nil
	}
	c.session = ""
	c.mu.Unlock()

	result, err, _ := c.login.Do("login", func() (any, error) {
		// The login result is shared with every caller waiting on this
		// flight, so it must outlive the initiating caller's request context.
		// The HTTP client timeout still bounds the call.
		session, err := c.authenticate(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
		return session, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// authenticate logs in with the service-account credentials and returns the
// session cookie (the first Set-Cookie value, up to the attribute list).
func (c *Client) authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(loginRequest{Identity: c.cfg.Email, Password: c.cfg.Password})
	if err != nil {
		return "", fmt.Errorf("marshaling login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticating with keystone: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // body content is irrelevant

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("keystone login failed with status %d", resp.StatusCode)
	}

	cookie := resp.Header.Get("Set-Cookie")
	if cookie == "" {
		return "", fmt.Errorf("keystone login returned no session cookie")
	}
	session, _, _ := strings.Cut(cookie, ";")

	slog.Info("authenticated with keystone")
	return session, nil
}
