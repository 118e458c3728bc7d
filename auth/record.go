package auth

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// Record is the unit of authentication state shared between memory and disk.
// It pairs the long-lived identity token obtained through the device flow
// with the short-lived access token minted from it. A record that only
// carries an identity token is in the pre-exchange state; the access-token
// fields are then treated as absent.
type Record struct {
	// IdentityToken is the long-lived secret used to mint access tokens.
	IdentityToken string `json:"identity_token"`

	// AccessToken is the short-lived bearer secret presented on API calls.
	AccessToken string `json:"access_token,omitempty"`

	// ExpiresAt is the absolute instant, in epoch seconds, after which
	// AccessToken must not be used.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// RefreshIn is the provider's suggested number of seconds until the
	// next refresh. Informational only, never authoritative.
	RefreshIn int64 `json:"refresh_in,omitempty"`

	// CreatedAt records when this record was first written. Diagnostic only.
	CreatedAt strfmt.DateTime `json:"created_at,omitempty"`

	// Principal is an optional human-readable identity label.
	Principal string `json:"principal,omitempty"`
}

// HasAccessToken reports whether the record carries a usable access token.
// An access token without an expiry violates the record invariant and is
// treated as absent.
func (r Record) HasAccessToken() bool {
	return r.AccessToken != "" && r.ExpiresAt > 0
}

// ValidAt reports whether the access token can still be used at the given
// instant. The skew is a safety margin subtracted from the real expiry so
// that callers never race a token that is about to lapse mid-request.
func (r Record) ValidAt(now time.Time, skew time.Duration) bool {
	if !r.HasAccessToken() {
		return false
	}
	return r.ExpiresAt > now.Add(skew).Unix()
}

// DeviceSession is the transient state of one device-authorization attempt.
// It is never persisted; it lives from the session request until the grant
// is obtained or the session expires.
type DeviceSession struct {
	// DeviceCode is the opaque code used when polling for the grant.
	DeviceCode string `json:"device_code"`

	// UserCode is the short code the human enters at VerificationURI.
	UserCode string `json:"user_code"`

	// VerificationURI is where the human approves the request.
	VerificationURI string `json:"verification_uri"`

	// ExpiresIn is the session TTL in seconds.
	ExpiresIn int `json:"expires_in"`

	// Interval is the provider-requested polling cadence in seconds.
	Interval int `json:"interval"`
}

// AccessToken is the result of exchanging an identity token with the API
// provider.
type AccessToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	RefreshIn int64  `json:"refresh_in"`
}
