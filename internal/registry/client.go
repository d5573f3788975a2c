// Package registry is the client for the remote Registry Service.
//
// The service exposes three endpoints:
//
//	POST /reports   submit one report, 200/201 on acceptance, 400 on validation failure
//	GET  /reports   all accepted reports, newest first
//	GET  /health    liveness probe
//
// Every response body is an envelope {success, data, error, detail}.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/fieldnode/internal/model"
)

// DefaultTimeout bounds each call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Request headers carrying the node identity.
const (
	HeaderNodeID    = "X-Node-Id"
	HeaderSignature = "X-Node-Signature"
)

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

// Response is the envelope returned by every endpoint.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Ack is the data of an accepted POST /reports.
type Ack struct {
	ID string `json:"id"`
}

// Health is the data of GET /health.
type Health struct {
	Status string `json:"status"`
}

// Error is a non-2xx or unsuccessful response from the registry.
type Error struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("registry: status %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// StatusCode returns the HTTP status of a registry error, or 0 for
// transport failures and timeouts.
func StatusCode(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

// Signer identifies and signs outgoing submissions.
// Implemented by identity.Manager.
type Signer interface {
	NodeID() string
	Sign(payload []byte) (string, error)
}

// Client talks to the Registry Service over HTTP.
//
// Thread-safety: safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	signer  Signer
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithSigner attaches node id and signature headers to submissions.
func WithSigner(s Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the registry at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("registry: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("registry: base url %q must be http or https", baseURL)
	}

	c := &Client{
		base:    u,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the registry base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Submit posts one report. The report is checked against the schema
// first; a report the registry would reject is not sent.
func (c *Client) Submit(ctx context.Context, obs model.Observation) (Ack, error) {
	body, err := json.Marshal(obs)
	if err != nil {
		return Ack{}, fmt.Errorf("registry: encode report %s: %w", obs.ID, err)
	}
	if err := ValidateReport(body); err != nil {
		return Ack{}, fmt.Errorf("registry: report %s: %w", obs.ID, err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if c.signer != nil {
		if nodeID := c.signer.NodeID(); nodeID != "" {
			header.Set(HeaderNodeID, nodeID)
		}
		if sig, err := c.signer.Sign(body); err == nil {
			header.Set(HeaderSignature, sig)
		} else {
			c.logger.Debug("submitting unsigned report", "id", obs.ID, "reason", err)
		}
	}

	var resp Response[Ack]
	if err := c.do(ctx, http.MethodPost, "/reports", header, body, &resp); err != nil {
		return Ack{}, err
	}
	if resp.Data.ID == "" {
		resp.Data.ID = obs.ID
	}
	return resp.Data, nil
}

// List fetches all accepted reports, newest first.
func (c *Client) List(ctx context.Context) ([]model.Observation, error) {
	var resp Response[[]model.Observation]
	if err := c.do(ctx, http.MethodGet, "/reports", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []model.Observation{}, nil
	}
	return resp.Data, nil
}

// Health probes GET /health. A nil error means the registry is reachable
// and reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	var resp Response[Health]
	return c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
}

// do performs one bounded request and decodes the envelope into out.
// Transport errors, timeouts, non-2xx statuses and success=false all
// return an error.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("registry: %s %s: %w", method, path, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return fmt.Errorf("registry: %s %s: read body: %w", method, path, err)
	}

	var env struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	// The envelope is optional on error responses; a proxy or crash page
	// leaves env zero and the status text stands in.
	_ = json.Unmarshal(data, &env)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return &Error{StatusCode: res.StatusCode, Message: msg, Detail: env.Detail}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("registry: %s %s: decode response: %w", method, path, err)
	}
	if !env.Success {
		return &Error{StatusCode: res.StatusCode, Message: env.Error, Detail: env.Detail}
	}
	return nil
}
