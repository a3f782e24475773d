package zcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultEndpoint is the vendor TR50 API endpoint.
	DefaultEndpoint = "https://api-de.devicewise.com/api"
	// DefaultAppToken identifies the lawn mower companion application to
	// the vendor cloud. Override via ZCS_APP_TOKEN for other deployments.
	DefaultAppToken = "DJMYYngGNEit40vA"
)

// API is the surface consumed by the coordinator, the service router and the
// provisioning helpers. Execute performs one authenticated command exchange;
// Response returns the decoded payload of the last successful Execute.
type API interface {
	Execute(ctx context.Context, command string, params map[string]any) error
	Response() map[string]any
}

// Config carries the per-account credentials. The client key doubles as
// application id and thing key, matching how the vendor provisions
// companion clients.
type Config struct {
	Endpoint string
	AppID    string
	AppToken string
	ThingKey string
}

// Client talks to the vendor TR50 endpoint. It owns transport concerns:
// HTTP, session authentication and response decoding. Safe for concurrent
// use; command exchanges are serialized.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	sessionID string
	last      map[string]any
}

// NewClient creates a vendor API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.AppToken == "" {
		cfg.AppToken = DefaultAppToken
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

type commandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

type commandResult struct {
	Success bool           `json:"success"`
	Params  map[string]any `json:"params"`
	Errors  []string       `json:"errorMessages"`
}

// Execute runs one command against the vendor cloud, authenticating first
// when no session is established. A session that expires server-side is
// re-established transparently: the command is retried once after a fresh
// authentication, and only a rejected re-authentication surfaces as an auth
// failure. The decoded payload is retained for Response.
func (c *Client) Execute(ctx context.Context, command string, params map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hadSession := c.sessionID != ""
	if !hadSession {
		if err := c.authenticate(ctx); err != nil {
			return err
		}
	}

	err := c.exec(ctx, command, params)
	if err == nil || !hadSession || !sessionExpired(err) {
		return err
	}

	c.sessionID = ""
	c.logger.Debug("Vendor session expired, re-authenticating",
		zap.String("command", command))
	if err := c.authenticate(ctx); err != nil {
		return err
	}
	return c.exec(ctx, command, params)
}

// exec performs one command exchange over the current session. Called with
// c.mu held.
func (c *Client) exec(ctx context.Context, command string, params map[string]any) error {
	envelope := map[string]any{
		"auth": map[string]any{"sessionId": c.sessionID},
		"1":    commandRequest{Command: command, Params: params},
	}

	var decoded struct {
		Result commandResult `json:"1"`
	}
	if err := c.post(ctx, envelope, &decoded); err != nil {
		return fmt.Errorf("execute %s: %w", command, err)
	}
	if !decoded.Result.Success {
		return &APIError{Command: command, Messages: decoded.Result.Errors}
	}

	c.last = decoded.Result.Params
	c.logger.Debug("Command executed",
		zap.String("command", command))
	return nil
}

// sessionExpired reports whether a command failure means the session is no
// longer valid. The endpoint signals this either at the transport level
// (HTTP 401/403) or as a command failure naming the session or
// authentication state.
func sessionExpired(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		for _, msg := range apiErr.Messages {
			lower := strings.ToLower(msg)
			if strings.Contains(lower, "session") || strings.Contains(lower, "auth") {
				return true
			}
		}
	}
	return false
}

// Response returns the decoded payload of the last successful command.
func (c *Client) Response() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// authenticate opens a vendor session. Called with c.mu held.
func (c *Client) authenticate(ctx context.Context) error {
	envelope := map[string]any{
		"auth": commandRequest{
			Command: "api.authenticate",
			Params: map[string]any{
				"appId":    c.cfg.AppID,
				"appToken": c.cfg.AppToken,
				"thingKey": c.cfg.ThingKey,
			},
		},
	}

	var decoded struct {
		Auth commandResult `json:"auth"`
	}
	if err := c.post(ctx, envelope, &decoded); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if !decoded.Auth.Success {
		reason := "credentials rejected"
		if len(decoded.Auth.Errors) > 0 {
			reason = decoded.Auth.Errors[0]
		}
		return &AuthError{Reason: reason}
	}

	sessionID, _ := decoded.Auth.Params["sessionId"].(string)
	if sessionID == "" {
		return &AuthError{Reason: "no session id in response"}
	}
	c.sessionID = sessionID
	c.logger.Debug("Vendor session established",
		zap.String("app_id", c.cfg.AppID))
	return nil
}

func (c *Client) post(ctx context.Context, envelope any, out any) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Drop the session so the next call authenticates again.
		c.sessionID = ""
		return &AuthError{Reason: fmt.Sprintf("endpoint returned HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
