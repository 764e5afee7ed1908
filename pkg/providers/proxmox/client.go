package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// APIError is a non-2xx response from the provider, carrying the native
// error text the API returned.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Method and Path identify the failed request.
	Method string
	Path   string

	// Body is the raw response body, usually the provider's error text.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// client is the low-level HTTPS transport for the provider's api2/json
// surface. It caches the session ticket and CSRF token and refreshes them
// lazily when absent.
type client struct {
	endpoint string
	username string
	password string
	http     *http.Client

	mu        sync.Mutex
	ticket    string
	csrfToken string
}

func newClient(cfg Config) *client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator-controlled flag for self-signed lab certs
		},
	}
	return &client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
	}
}

// authenticate exchanges the credential pair for a session ticket and a
// CSRF prevention token and caches both on the client.
func (c *client) authenticate(ctx context.Context) error {
	form := url.Values{
		"username": {c.username},
		"password": {c.password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/api2/json/access/ticket",
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authentication request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Status: resp.StatusCode,
			Method: http.MethodPost,
			Path:   "access/ticket",
			Body:   strings.TrimSpace(string(body)),
		}
	}

	var payload struct {
		Data struct {
			Ticket    string `json:"ticket"`
			CSRFToken string `json:"CSRFPreventionToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode authentication response: %w", err)
	}
	if payload.Data.Ticket == "" {
		return fmt.Errorf("authentication response carried no ticket")
	}

	c.mu.Lock()
	c.ticket = payload.Data.Ticket
	c.csrfToken = payload.Data.CSRFToken
	c.mu.Unlock()
	return nil
}

// authenticated reports whether a session ticket is cached.
func (c *client) authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticket != ""
}

// invalidate drops the cached session so the next request re-authenticates.
func (c *client) invalidate() {
	c.mu.Lock()
	c.ticket = ""
	c.csrfToken = ""
	c.mu.Unlock()
}

func (c *client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *client) post(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, form, out)
}

func (c *client) del(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// do issues one request against api2/json, refreshing the session lazily.
// Responses arrive wrapped in a {"data": ...} envelope; out, when non-nil,
// receives the unwrapped data value.
func (c *client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if !c.authenticated() {
		if err := c.authenticate(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method,
		c.endpoint+"/api2/json/"+path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.mu.Lock()
	req.AddCookie(&http.Cookie{Name: "PVEAuthCookie", Value: c.ticket})
	if method != http.MethodGet {
		req.Header.Set("CSRFPreventionToken", c.csrfToken)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Ticket expired; force a fresh authentication on the next call.
		c.invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Status: resp.StatusCode,
			Method: method,
			Path:   path,
			Body:   strings.TrimSpace(string(raw)),
		}
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode data: %w", method, path, err)
	}
	return nil
}

// isServerError reports whether err is a provider response with a 5xx
// status, which the engine treats as transient.
func isServerError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return false
}

// guestNotFound reports whether an API error indicates the target guest no
// longer exists, which destroy treats as success.
func guestNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusNotFound {
		return true
	}
	return strings.Contains(apiErr.Body, "does not exist")
}
