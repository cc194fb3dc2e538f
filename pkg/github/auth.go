package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/auto-assign/pkg/cache"

	"github.com/codeGROOVE-dev/gsm"
	"github.com/golang-jwt/jwt/v5"
)

const (
	appKeySecretName = "GITHUB_APP_KEY" // Secret name in Google Secret Manager
	jwtLifetime      = 10 * time.Minute // GitHub App JWTs expire after 10 minutes max
	tokenSlack       = 5 * time.Minute  // Refresh installation tokens early
)

// generateJWT generates a JWT for GitHub App authentication.
func generateJWT(appID string, privateKey []byte) (string, error) {
	block, _ := pem.Decode(privateKey)
	if block == nil {
		return "", errors.New("failed to parse PEM block containing the private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format if PKCS1 fails
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		key, ok = parsedKey.(*rsa.PrivateKey)
		if !ok {
			return "", errors.New("private key is not RSA")
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(jwtLifetime).Unix(),
		"iss": appID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

// loadPrivateKey loads the App private key from a file, or from Google Secret
// Manager when no path is given.
func loadPrivateKey(ctx context.Context, keyPath string) ([]byte, error) {
	if keyPath != "" {
		key, err := os.ReadFile(keyPath) //nolint:gosec // path comes from operator configuration
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		return key, nil
	}
	slog.Info("[AUTH] No key path provided, fetching private key from Google Secret Manager", "secret", appKeySecretName)
	secret, err := gsm.Secret(ctx, appKeySecretName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from secret manager: %w", appKeySecretName, err)
	}
	return []byte(secret), nil
}

// newAppAuthClient creates a client authenticated as a GitHub App installation.
func newAppAuthClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.AppID == "" {
		return nil, errors.New("GitHub App ID is required for app authentication")
	}
	if cfg.Org == "" {
		return nil, errors.New("organization is required for app authentication")
	}

	privateKey, err := loadPrivateKey(ctx, cfg.AppKeyPath)
	if err != nil {
		return nil, err
	}

	if _, err := generateJWT(cfg.AppID, privateKey); err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	slog.Info("[AUTH] Successfully generated JWT for GitHub App")

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		cache:      cache.New(teamCacheTTL),
		appID:      cfg.AppID,
		privateKey: privateKey,
		teamsURL:   cfg.TeamsURL,
		org:        cfg.Org,
		isAppAuth:  true,
	}
	return c, nil
}

// newPersonalTokenClient creates a client authenticated with a personal token.
// If no token is provided, it falls back to the gh CLI.
func newPersonalTokenClient(ctx context.Context, cfg Config) (*Client, error) {
	token := cfg.Token
	if token == "" {
		cmd := exec.CommandContext(ctx, "gh", "auth", "token")
		output, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("failed to get GitHub token (set a token or install gh): %w", err)
		}
		token = strings.TrimSpace(string(output))
	}
	if token == "" {
		return nil, errors.New("empty GitHub token")
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		cache:      cache.New(teamCacheTTL),
		token:      token,
		teamsURL:   cfg.TeamsURL,
		org:        cfg.Org,
	}, nil
}

// currentToken returns a valid token, refreshing the installation token for
// App authentication when it is near expiry.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.tokenMutex.RLock()
	token := c.token
	expiry := c.tokenExpiry
	isApp := c.isAppAuth
	c.tokenMutex.RUnlock()

	if !isApp {
		return token, nil
	}
	if token != "" && time.Now().Before(expiry.Add(-tokenSlack)) {
		return token, nil
	}
	return c.refreshInstallationToken(ctx)
}

// refreshInstallationToken exchanges an App JWT for an installation token.
func (c *Client) refreshInstallationToken(ctx context.Context) (string, error) {
	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenSlack)) {
		return c.token, nil
	}

	appJWT, err := generateJWT(c.appID, c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT: %w", err)
	}

	installationID, err := c.installationIDForOrg(ctx, appJWT)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", apiBase, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create installation token: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("failed to create installation token: status %d", resp.StatusCode)
	}

	var tokenResp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode installation token: %w", err)
	}

	c.token = tokenResp.Token
	c.tokenExpiry = tokenResp.ExpiresAt
	slog.Info("[AUTH] Refreshed installation token", "org", c.org, "expires_at", tokenResp.ExpiresAt)
	return c.token, nil
}

// installationIDForOrg finds the App installation for the configured org.
func (c *Client) installationIDForOrg(ctx context.Context, appJWT string) (int64, error) {
	url := fmt.Sprintf("%s/orgs/%s/installation", apiBase, c.org)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create installation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to look up installation for %s: %w", c.org, err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to look up installation for %s: status %d", c.org, resp.StatusCode)
	}

	var installation struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&installation); err != nil {
		return 0, fmt.Errorf("failed to decode installation: %w", err)
	}
	return installation.ID, nil
}

// Token returns the current token for external use (e.g. the event feed).
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.currentToken(ctx)
}
