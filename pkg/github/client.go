// Package github provides the tracker client used by the assignment engine.
package github

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

	"github.com/codeGROOVE-dev/auto-assign/pkg/cache"

	"github.com/codeGROOVE-dev/retry"
)

const (
	apiBase      = "https://api.github.com"
	teamCacheTTL = 15 * time.Minute
	userAgent    = "codeGROOVE-auto-assign"
)

// Retry constants.
const (
	maxRetryAttempts  = 10              // Maximum retry attempts for API calls
	initialRetryDelay = 1 * time.Second // Initial delay for retry attempts
	maxRetryDelay     = 2 * time.Minute // Maximum delay cap
)

// Client handles all GitHub API interactions.
type Client struct {
	httpClient  *http.Client
	cache       *cache.Cache
	tokenExpiry time.Time
	appID       string
	token       string
	teamsURL    string
	org         string
	privateKey  []byte
	tokenMutex  sync.RWMutex
	isAppAuth   bool
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	AppID       string
	AppKeyPath  string
	Token       string // Personal access token (for non-app auth)
	TeamsURL    string // Team directory endpoint
	Org         string // Organization the App installation belongs to
	HTTPTimeout time.Duration
	UseAppAuth  bool
}

// New creates a new GitHub API client using a personal token or GitHub App
// authentication.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.UseAppAuth {
		return newAppAuthClient(ctx, cfg)
	}
	return newPersonalTokenClient(ctx, cfg)
}

// drainAndCloseBody drains and closes an HTTP response body to prevent
// connection churn.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// doRequest performs an authenticated HTTP request with retry and backoff.
// The caller owns the returned body.
func (c *Client) doRequest(ctx context.Context, method, url string, payload any) (*http.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var resp *http.Response
	err := retryWithBackoff(ctx, method+" "+url, func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		token, err := c.currentToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("User-Agent", userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		localResp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		switch {
		case localResp.StatusCode == http.StatusForbidden || localResp.StatusCode == http.StatusTooManyRequests:
			drainAndCloseBody(localResp.Body)
			slog.Warn("Rate limited - will retry with backoff", "method", method, "url", url, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: rate limited", localResp.StatusCode)
		case localResp.StatusCode >= 500:
			drainAndCloseBody(localResp.Body)
			slog.Warn("Server error - will retry with backoff", "method", method, "url", url, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: server error", localResp.StatusCode)
		default:
		}

		resp = localResp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// retryWithBackoff executes a function with exponential backoff and jitter.
func retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(maxRetryAttempts)),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(initialRetryDelay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "component", "retry", "operation", operation, "attempt", n+1, "max_attempts", maxRetryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if err == nil {
				return false
			}
			errStr := err.Error()
			return strings.Contains(errStr, "rate limited") ||
				strings.Contains(errStr, "server error") ||
				strings.Contains(errStr, "connection refused") ||
				strings.Contains(errStr, "timeout") ||
				strings.Contains(errStr, "EOF")
		}),
	)
}
