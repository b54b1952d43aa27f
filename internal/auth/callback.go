package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
)

const successPage = `<!DOCTYPE html>
<html>
<head>
  <title>Login Successful</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
           background: #0a0f1a; color: #fff; display: flex; justify-content: center;
           align-items: center; height: 100vh; margin: 0; }
    .container { text-align: center; }
    h1 { color: #10b981; margin-bottom: 1rem; }
    p { color: #888; }
  </style>
</head>
<body>
  <div class="container">
    <h1>&#x2705; Login Successful!</h1>
    <p>You can close this window and return to your terminal.</p>
  </div>
  <script>setTimeout(() => window.close(), 2000);</script>
</body>
</html>`

const failurePage = `<!DOCTYPE html>
<html>
<head>
  <title>Login Failed</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
           background: #0a0f1a; color: #fff; display: flex; justify-content: center;
           align-items: center; height: 100vh; margin: 0; }
    .container { text-align: center; }
    h1 { color: #ef4444; margin-bottom: 1rem; }
    p { color: #888; }
  </style>
</head>
<body>
  <div class="container">
    <h1>&#x274C; Login Failed</h1>
    <p>%s</p>
  </div>
</body>
</html>`

// callbackResult is what the localhost callback handler hands back to
// the waiting login flow.
type callbackResult struct {
	code string
	err  error
}

// browserLogin runs the interactive authorization-code flow: start a
// localhost callback listener, send the user's browser to the vault
// login page, wait for the redirect, then exchange the code for a token.
func (f *Flow) browserLogin(ctx context.Context, tenant, vaultURL string, force bool) (*tokenstore.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, LoginTimeout)
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}

	callbackURL := fmt.Sprintf("http://%s/callback", listener.Addr())
	state, err := stateToken()
	if err != nil {
		listener.Close()
		return nil, err
	}
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		switch {
		case query.Get("error") != "":
			msg := query.Get("error_description")
			if msg == "" {
				msg = query.Get("error")
			}
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, failurePage, msg)
			results <- callbackResult{err: ikverrors.AuthError{
				Tenant:  tenant,
				Message: "authentication failed: " + msg,
			}}

		case query.Get("code") == "" || query.Get("state") != state:
			w.WriteHeader(http.StatusBadRequest)
			results <- callbackResult{err: ikverrors.AuthError{
				Tenant:  tenant,
				Message: "callback rejected: missing code or state mismatch",
			}}

		default:
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, successPage)
			results <- callbackResult{code: query.Get("code")}
		}
	})

	server := &http.Server{Handler: mux}
	go func() {
		// ErrServerClosed is the normal shutdown path.
		_ = server.Serve(listener)
	}()
	defer server.Close()

	authURL := fmt.Sprintf("%s/auth/oauth/start?%s", vaultURL, url.Values{
		"redirect_uri":       {callbackURL},
		"state":              {state},
		"device_fingerprint": {deviceFingerprint()},
		"force_login":        {boolParam(force)},
	}.Encode())

	f.Logger.Info("Opening browser for IronKeyVault login (vault: %s)", vaultURL)
	f.Logger.Info("If the browser does not open, visit:\n   %s", authURL)

	if err := f.openBrowser(authURL); err != nil {
		f.Logger.Warn("Could not open browser: %v", err)
	}

	f.Logger.Info("Waiting for login...")

	var code string
	select {
	case result := <-results:
		if result.err != nil {
			return nil, result.err
		}
		code = result.code
	case <-ctx.Done():
		return nil, ikverrors.AuthError{
			Tenant:     tenant,
			Message:    "authentication timed out",
			Suggestion: "Run the login again and complete it within 5 minutes",
		}
	}

	tok, err := f.exchangeCode(ctx, tenant, vaultURL, code, callbackURL)
	if err != nil {
		return nil, err
	}
	return tok, f.persist(tenant, vaultURL, tok)
}

// exchangeCode trades the authorization code for an access token.
func (f *Flow) exchangeCode(ctx context.Context, tenant, vaultURL, code, callbackURL string) (*tokenstore.Token, error) {
	payload, err := json.Marshal(map[string]string{
		"code":         code,
		"redirect_uri": callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		vaultURL+"/auth/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return nil, ikverrors.Simplify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &errBody)
		msg := errBody.ErrorDescription
		if msg == "" {
			msg = fmt.Sprintf("token exchange failed with status %d", resp.StatusCode)
		}
		return nil, ikverrors.AuthError{Tenant: tenant, Message: msg}
	}

	return f.tokenFromResponse(tenant, body)
}

// stateToken generates the CSRF state for the callback: 16 random
// bytes, URL-safe base64 without padding (22 characters).
func stateToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
