package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casualjim/wingman/pkg/slogx"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
)

const (
	defaultDeviceCodeURL = "https://github.com/login/device/code"
	defaultGrantURL      = "https://github.com/login/oauth/access_token"

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// pollMargin is added to the provider-requested interval so we never
	// poll faster than asked.
	pollMargin = time.Second

	// slowDownDelay is the one-shot backoff applied when the provider
	// answers slow_down. It does not change the interval for subsequent
	// iterations.
	slowDownDelay = 5 * time.Second
)

// Authorizer drives the OAuth device-authorization grant:
// request a session, show the user code out-of-band, poll until the human
// approves or the session dies.
type Authorizer struct {
	client        *http.Client
	clientID      string
	deviceCodeURL string
	grantURL      string
	sleep         func(context.Context, time.Duration) error
}

var (
	// WithHTTPClient overrides the HTTP client used for provider calls.
	WithHTTPClient = opts.ForName[Authorizer, *http.Client]("client")
	// WithDeviceCodeURL overrides the device-code issuance endpoint.
	WithDeviceCodeURL = opts.ForName[Authorizer, string]("deviceCodeURL")
	// WithGrantURL overrides the access-token polling endpoint.
	WithGrantURL = opts.ForName[Authorizer, string]("grantURL")
)

// WithSleep replaces the delay between poll attempts. Tests use this to run
// the polling state machine without real time passing.
func WithSleep(sleep func(context.Context, time.Duration) error) opts.Option[Authorizer] {
	return opts.Type[Authorizer](func(a *Authorizer) error {
		a.sleep = sleep
		return nil
	})
}

// NewAuthorizer creates an authorizer for the given OAuth client id.
func NewAuthorizer(clientID string, options ...opts.Option[Authorizer]) (*Authorizer, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("client id is required")
	}

	a := &Authorizer{
		client:        http.DefaultClient,
		clientID:      clientID,
		deviceCodeURL: defaultDeviceCodeURL,
		grantURL:      defaultGrantURL,
		sleep:         sleepContext,
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, fmt.Errorf("failed to apply authorizer options: %w", err)
	}
	return a, nil
}

// RequestSession asks the identity provider for a new device session.
func (a *Authorizer) RequestSession(ctx context.Context, scopes ...string) (*DeviceSession, error) {
	body := url.Values{
		"client_id": {a.clientID},
		"scope":     {strings.Join(scopes, " ")},
	}

	var session DeviceSession
	if err := a.post(ctx, a.deviceCodeURL, body, &session); err != nil {
		return nil, fmt.Errorf("failed to request device session: %w", err)
	}
	if session.DeviceCode == "" || session.UserCode == "" {
		return nil, fmt.Errorf("device session response is missing codes")
	}

	slog.Debug("device session issued",
		slog.String("verification_uri", session.VerificationURI),
		slog.Int("expires_in", session.ExpiresIn),
		slog.Int("interval", session.Interval))
	return &session, nil
}

// grantResponse is the wire shape of one poll attempt. Exactly one of
// AccessToken and Error is populated.
type grantResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// PollForGrant polls the identity provider until the session resolves and
// returns the identity token. The loop advances through
// pending -> (same interval), slow_down -> (one longer backoff), and the
// terminal states granted, expired and denied. The session TTL is enforced
// locally as well, so a provider that keeps answering pending past
// ExpiresIn cannot pin the caller forever.
func (a *Authorizer) PollForGrant(ctx context.Context, session *DeviceSession) (string, error) {
	interval := time.Duration(session.Interval)*time.Second + pollMargin
	deadline := time.Now().Add(time.Duration(session.ExpiresIn) * time.Second)

	delay := interval
	for {
		if err := a.sleep(ctx, delay); err != nil {
			return "", err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return "", &Error{Message: "device authorization session expired before approval, run `wingman login` again"}
		}
		delay = interval

		body := url.Values{
			"client_id":   {a.clientID},
			"device_code": {session.DeviceCode},
			"grant_type":  {deviceGrantType},
		}
		var grant grantResponse
		if err := a.post(ctx, a.grantURL, body, &grant); err != nil {
			return "", fmt.Errorf("failed to poll for device grant: %w", err)
		}

		switch {
		case grant.AccessToken != "":
			slog.Debug("device authorization granted", slogx.Token("identity_token", grant.AccessToken))
			return grant.AccessToken, nil
		case grant.Error == "authorization_pending":
			continue
		case grant.Error == "slow_down":
			delay = slowDownDelay
		case grant.Error == "expired_token":
			return "", &Error{Message: "device authorization session expired before approval, run `wingman login` again"}
		case grant.Error != "":
			msg := grant.Error
			if grant.ErrorDescription != "" {
				msg += ": " + grant.ErrorDescription
			}
			return "", &Error{Message: "device authorization failed: " + msg}
		default:
			return "", fmt.Errorf("identity provider returned neither a token nor an error")
		}
	}
}

func (a *Authorizer) post(ctx context.Context, endpoint string, body url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("identity provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
