// Package vault implements the IronKeyVault user-plane API client: token
// and service-account authentication headers, record fetches, and record
// listing, with bounded retry on transient network failures.
package vault

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/logging"
	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
)

const (
	defaultTimeout    = 30 * time.Second
	maxRetryElapsed   = 15 * time.Second
	initialRetryDelay = 250 * time.Millisecond
)

// Record is the metadata the vault returns for an env record listing.
type Record struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at"`
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Tenant    string
	APIKey    string // service-account mode when both APIKey
	MasterKey string // and MasterKey are set

	CACert             string // path to a PEM bundle for private CAs
	InsecureSkipVerify bool   // dev vaults with self-signed certs
	Timeout            time.Duration

	Tokens *tokenstore.Store // interactive-mode token source
	Logger *logging.Logger
}

// Client talks to one tenant's IronKeyVault.
type Client struct {
	baseURL   string
	tenant    string
	apiKey    string
	masterKey string

	httpClient *http.Client
	tokens     *tokenstore.Store
	logger     *logging.Logger
}

// New creates a client from explicit options.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ikverrors.UserError{
			Message:    "Vault URL is required",
			Suggestion: "Set IKV_VAULT_URL or run '" + ikverrors.LoginSuggestion(opts.Tenant) + "' first",
		}
	}
	if opts.Tenant == "" {
		return nil, ikverrors.UserError{
			Message:    "Tenant name is required",
			Suggestion: "Set IKV_TENANT or use --tenant",
		}
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
	}

	if opts.CACert != "" {
		caCert, err := os.ReadFile(opts.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", opts.CACert)
		}
		transport.TLSClientConfig.RootCAs = caCertPool
	}

	if opts.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(false, true)
	}

	return &Client{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		tenant:    opts.Tenant,
		apiKey:    opts.APIKey,
		masterKey: opts.MasterKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		tokens: opts.Tokens,
		logger: logger,
	}, nil
}

// FromEnv creates a client from the IKV_* environment variables.
func FromEnv(tokens *tokenstore.Store, logger *logging.Logger) (*Client, error) {
	return New(Options{
		BaseURL:   os.Getenv("IKV_VAULT_URL"),
		Tenant:    os.Getenv("IKV_TENANT"),
		APIKey:    os.Getenv("IKV_API_KEY"),
		MasterKey: os.Getenv("IKV_MASTER_KEY"),
		Tokens:    tokens,
		Logger:    logger,
	})
}

// Tenant returns the tenant this client is bound to.
func (c *Client) Tenant() string {
	return c.tenant
}

// serviceAccount reports whether the client holds CI/CD credentials.
func (c *Client) serviceAccount() bool {
	return c.apiKey != "" && c.masterKey != ""
}

// authHeaders builds the per-request authentication headers.
//
// Service-account mode signs "timestamp:nonce:tenant" with HMAC-SHA256
// keyed by the API key; interactive mode sends the stored bearer token.
func (c *Client) authHeaders() (http.Header, error) {
	h := http.Header{}

	if c.serviceAccount() {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
		timestamp := fmt.Sprintf("%d", time.Now().Unix())
		nonceHex := hex.EncodeToString(nonce)

		mac := hmac.New(sha256.New, []byte(c.apiKey))
		fmt.Fprintf(mac, "%s:%s:%s", timestamp, nonceHex, c.tenant)

		h.Set("X-API-Key", c.apiKey)
		h.Set("X-Master-Key", c.masterKey)
		h.Set("X-Timestamp", timestamp)
		h.Set("X-Nonce", nonceHex)
		h.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
		return h, nil
	}

	if c.tokens == nil {
		return nil, ikverrors.AuthError{
			Tenant:     c.tenant,
			Message:    "not logged in",
			Suggestion: ikverrors.LoginSuggestion(c.tenant),
		}
	}

	tok, err := c.tokens.Get(c.tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored token: %w", err)
	}
	if tok == nil {
		return nil, ikverrors.AuthError{
			Tenant:     c.tenant,
			Message:    "not logged in",
			Suggestion: ikverrors.LoginSuggestion(c.tenant),
		}
	}
	if tok.Expired() {
		return nil, ikverrors.AuthError{
			Tenant:     c.tenant,
			Message:    "token expired",
			Suggestion: ikverrors.LoginSuggestion(c.tenant),
		}
	}

	h.Set("Authorization", "Bearer "+tok.AccessToken)
	return h, nil
}

// FetchRecord retrieves all variables of an env record by id or name.
func (c *Client) FetchRecord(ctx context.Context, record string) (map[string]string, error) {
	c.logger.Debug("fetching record %s from %s", record, c.baseURL)

	var payload struct {
		Variables map[string]string `json:"variables"`
	}

	endpoint := fmt.Sprintf("%s/api/v1/env/%s", c.baseURL, url.PathEscape(record))
	if err := c.getJSON(ctx, endpoint, record, &payload); err != nil {
		return nil, err
	}

	if payload.Variables == nil {
		payload.Variables = map[string]string{}
	}
	c.logger.Debug("record %s resolved with %d variables", record, len(payload.Variables))
	return payload.Variables, nil
}

// ListRecords returns the metadata of all env records visible to the tenant.
func (c *Client) ListRecords(ctx context.Context) ([]Record, error) {
	var payload struct {
		Records []Record `json:"records"`
	}

	if err := c.getJSON(ctx, c.baseURL+"/api/v1/env", "", &payload); err != nil {
		return nil, err
	}
	return payload.Records, nil
}

// getJSON performs an authenticated GET with bounded retry and decodes
// the response into out. record names the resource for 404 errors.
func (c *Client) getJSON(ctx context.Context, endpoint, record string, out interface{}) error {
	operation := func() error {
		headers, err := c.authHeaders()
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")

		// Fresh id per attempt so retries are distinguishable in the
		// vault's request logs.
		requestID := uuid.NewString()
		req.Header.Set("X-Request-ID", requestID)
		c.logger.Debug("GET %s (request id %s)", endpoint, requestID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Connection-level failures are worth a retry.
			return ikverrors.Simplify(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if apiErr := c.statusError(resp.StatusCode, body, record); apiErr != nil {
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("invalid response from vault: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialRetryDelay
	bo.MaxElapsedTime = maxRetryElapsed

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

// statusError maps HTTP status codes to the client error taxonomy.
func (c *Client) statusError(status int, body []byte, record string) error {
	switch {
	case status >= 200 && status < 300:
		return nil

	case status == http.StatusUnauthorized:
		return ikverrors.AuthError{
			Tenant:     c.tenant,
			Message:    "authentication failed",
			Suggestion: ikverrors.LoginSuggestion(c.tenant),
		}

	case status == http.StatusForbidden:
		var tier struct {
			Error        string `json:"error"`
			RequiredTier string `json:"required_tier"`
			CurrentTier  string `json:"current_tier"`
		}
		_ = json.Unmarshal(body, &tier)
		msg := tier.Error
		if msg == "" {
			msg = "feature requires a higher tier"
		}
		required := tier.RequiredTier
		if required == "" {
			required = "premium"
		}
		current := tier.CurrentTier
		if current == "" {
			current = "unknown"
		}
		return ikverrors.TierError{
			Message:      msg,
			RequiredTier: required,
			CurrentTier:  current,
		}

	case status == http.StatusNotFound:
		if record == "" {
			return fmt.Errorf("vault returned 404 for %s", c.baseURL)
		}
		return ikverrors.NotFoundError{Record: record}

	default:
		detail := strings.TrimSpace(string(body))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return fmt.Errorf("vault returned %d: %s", status, detail)
	}
}
