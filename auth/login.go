package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
)

// PromptFunc presents the user code and verification URI to the human who
// has to approve the device out-of-band.
type PromptFunc func(userCode, verificationURI string)

// Login runs the full first-time authorization: request a device session,
// hand the codes to prompt, poll until the human approves, exchange the
// granted identity token for an access token and persist the new record.
func Login(ctx context.Context, authorizer *Authorizer, exchange Exchanger, store *Store, prompt PromptFunc, scopes ...string) (*Record, error) {
	session, err := authorizer.RequestSession(ctx, scopes...)
	if err != nil {
		return nil, err
	}

	if prompt != nil {
		prompt(session.UserCode, session.VerificationURI)
	}

	identity, err := authorizer.PollForGrant(ctx, session)
	if err != nil {
		return nil, err
	}

	tok, err := exchange.Exchange(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("device grant succeeded but token exchange failed: %w", err)
	}

	rec := &Record{
		IdentityToken: identity,
		AccessToken:   tok.Token,
		ExpiresAt:     tok.ExpiresAt,
		RefreshIn:     tok.RefreshIn,
		CreatedAt:     strfmt.DateTime(time.Now().UTC()),
	}
	if err := store.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
