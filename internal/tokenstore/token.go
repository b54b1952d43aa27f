package tokenstore

import (
	"time"
)

// DefaultTTL is the token lifetime assumed when the vault response does
// not carry an explicit expiry.
const DefaultTTL = 4 * time.Hour

// expiryBuffer treats a token as expired slightly before its real expiry
// so an in-flight request never races the server-side cutoff.
const expiryBuffer = 5 * time.Minute

// Token is a bearer credential for one tenant, as persisted in the OS
// keyring or the tokens.json fallback.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	Tenant      string `json:"tenant"`
}

// Expired reports whether the token is past (or within the buffer of)
// its expiry.
func (t Token) Expired() bool {
	return time.Now().Unix() > t.ExpiresAt-int64(expiryBuffer.Seconds())
}

// ExpiresIn returns the time until expiry, never negative.
func (t Token) ExpiresIn() time.Duration {
	remaining := time.Until(time.Unix(t.ExpiresAt, 0))
	if remaining < 0 {
		return 0
	}
	return remaining
}
