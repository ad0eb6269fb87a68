package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"fieldsync/internal/config"
	"fieldsync/internal/entity"
	"fieldsync/internal/logging"
	"fieldsync/internal/services"
	"fieldsync/internal/syncer"
)

const component = "remote"

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// Client talks to the remote authority over HTTP JSON.
type Client struct {
	baseURL    string
	userAgent  string
	compress   bool
	httpClient *http.Client
	logger     *slog.Logger
}

var _ syncer.RemoteAPI = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a client from the [remote] config section.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.Remote.BaseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "remote.base_url required", nil)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "invalid remote.base_url", err)
	}
	timeout := cfg.RemoteTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  cfg.Remote.UserAgent,
		compress:   cfg.Remote.CompressFrames,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, component),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type trimPayload struct {
	TrimStartMillis *int64    `json:"trim_start_ms"`
	TrimEndMillis   *int64    `json:"trim_end_ms"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type framesPayload struct {
	Frames []entity.Frame `json:"frames"`
}

// CreateSession posts a new session.
func (c *Client) CreateSession(ctx context.Context, session entity.Session) error {
	return c.do(ctx, "create_session", http.MethodPost, "/sessions", session, nil)
}

// GetSession fetches the remote snapshot of a session.
func (c *Client) GetSession(ctx context.Context, id string) (entity.Session, error) {
	var session entity.Session
	err := c.do(ctx, "get_session", http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &session)
	return session, err
}

// SetTrim pushes the session's trim bounds.
func (c *Client) SetTrim(ctx context.Context, session entity.Session) error {
	body := trimPayload{
		TrimStartMillis: session.TrimStartMillis,
		TrimEndMillis:   session.TrimEndMillis,
		UpdatedAt:       session.UpdatedAt,
	}
	return c.do(ctx, "set_trim", http.MethodPut, "/sessions/"+url.PathEscape(session.ID)+"/trim", body, nil)
}

// DeleteSession removes a session remotely.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete_session", http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
}

// SubmitFrameBatch uploads one chunk of frames, gzip compressed when enabled.
func (c *Client) SubmitFrameBatch(ctx context.Context, sessionID string, frames []entity.Frame) error {
	return c.do(ctx, "submit_frames", http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/frames",
		framesPayload{Frames: frames}, nil, withCompression(c.compress))
}

// CreatePhase posts a new phase annotation.
func (c *Client) CreatePhase(ctx context.Context, phase entity.Phase) error {
	return c.do(ctx, "create_phase", http.MethodPost, "/phases", phase, nil)
}

// GetPhase fetches the remote snapshot of a phase.
func (c *Client) GetPhase(ctx context.Context, id string) (entity.Phase, error) {
	var phase entity.Phase
	err := c.do(ctx, "get_phase", http.MethodGet, "/phases/"+url.PathEscape(id), nil, &phase)
	return phase, err
}

// UpdatePhase replaces a phase remotely.
func (c *Client) UpdatePhase(ctx context.Context, phase entity.Phase) error {
	return c.do(ctx, "update_phase", http.MethodPut, "/phases/"+url.PathEscape(phase.ID), phase, nil)
}

// DeletePhase removes a phase remotely.
func (c *Client) DeletePhase(ctx context.Context, id string) error {
	return c.do(ctx, "delete_phase", http.MethodDelete, "/phases/"+url.PathEscape(id), nil, nil)
}

// PutSetupConfig upserts a setup config.
func (c *Client) PutSetupConfig(ctx context.Context, setup entity.SetupConfig) error {
	return c.do(ctx, "put_setup_config", http.MethodPut, "/setup-configs/"+url.PathEscape(setup.ID), setup, nil)
}

// DeleteSetupConfig removes a setup config remotely.
func (c *Client) DeleteSetupConfig(ctx context.Context, id string) error {
	return c.do(ctx, "delete_setup_config", http.MethodDelete, "/setup-configs/"+url.PathEscape(id), nil, nil)
}

type requestOptions struct {
	gzip bool
}

type requestOption func(*requestOptions)

func withCompression(enabled bool) requestOption {
	return func(o *requestOptions) { o.gzip = enabled }
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out any, opts ...requestOption) error {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	var body io.Reader
	if in != nil {
		payload, err := encodeBody(in, ro.gzip)
		if err != nil {
			return services.Wrap(services.ErrValidation, component, operation, "encode request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, component, operation, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		if ro.gzip {
			req.Header.Set("Content-Encoding", "gzip")
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(transportMarker(err), component, operation,
			fmt.Sprintf("%s %s (latency=%v)", method, path, latency.Round(time.Millisecond)), err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote request",
		logging.String("operation", operation),
		logging.Int("status", resp.StatusCode),
		logging.Duration("latency", latency),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode)
		if text := strings.TrimSpace(string(detail)); text != "" {
			message += ": " + text
		}
		return services.Wrap(StatusMarker(resp.StatusCode), component, operation, message, nil)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrValidation, component, operation, "decode response", err)
	}
	return nil
}

func encodeBody(in any, compress bool) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	if !compress {
		return payload, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StatusMarker maps an HTTP status onto the error taxonomy.
func StatusMarker(status int) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return services.ErrNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return services.ErrValidation
	case status == http.StatusConflict:
		return services.ErrConflict
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return services.ErrTimeout
	case status == http.StatusTooManyRequests || status >= 500:
		return services.ErrNetwork
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.ErrConfiguration
	default:
		return services.ErrValidation
	}
}

func transportMarker(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.ErrTimeout
	}
	return services.ErrNetwork
}
