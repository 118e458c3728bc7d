package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/wingman/pkg/slogx"
	"github.com/fogfish/opts"
	"golang.org/x/sync/singleflight"
)

// DefaultSkew is the safety margin subtracted from the access-token expiry.
// A token inside the margin is treated as already expired so refreshes
// happen before the provider starts rejecting it.
const DefaultSkew = 60 * time.Second

// Exchanger mints a short-lived access token from the long-lived identity
// token. The API client implements it against the provider's exchange
// endpoint; tests implement it in memory.
type Exchanger interface {
	Exchange(ctx context.Context, identityToken string) (*AccessToken, error)
}

// ExchangeFunc adapts a function to the Exchanger interface.
type ExchangeFunc func(ctx context.Context, identityToken string) (*AccessToken, error)

func (f ExchangeFunc) Exchange(ctx context.Context, identityToken string) (*AccessToken, error) {
	return f(ctx, identityToken)
}

// TokenSource owns the in-memory credential record for one process. It
// decides validity, refreshes through the Exchanger when needed and
// persists every successful refresh through the Store. The store file is
// the cross-process source of truth; there is no cross-process locking.
type TokenSource struct {
	store    *Store
	exchange Exchanger
	skew     time.Duration
	now      func() time.Time

	mu  sync.RWMutex
	rec *Record

	// flight collapses concurrent refreshes into a single exchange call.
	flight singleflight.Group
}

// WithSkew overrides the expiry safety margin.
var WithSkew = opts.ForName[TokenSource, time.Duration]("skew")

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) opts.Option[TokenSource] {
	return opts.Type[TokenSource](func(ts *TokenSource) error {
		ts.now = now
		return nil
	})
}

// NewTokenSource creates a token source reading and writing through store
// and refreshing through exchange. The record is loaded lazily on first
// use so construction never touches the disk.
func NewTokenSource(store *Store, exchange Exchanger, options ...opts.Option[TokenSource]) (*TokenSource, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if exchange == nil {
		return nil, fmt.Errorf("exchanger is required")
	}

	ts := &TokenSource{
		store:    store,
		exchange: exchange,
		skew:     DefaultSkew,
		now:      time.Now,
	}
	if err := opts.Apply(ts, options); err != nil {
		return nil, fmt.Errorf("failed to apply token source options: %w", err)
	}
	return ts, nil
}

// SetRecord replaces the in-memory record, typically right after a login.
// It does not persist; the login flow already did.
func (ts *TokenSource) SetRecord(rec *Record) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	cp := *rec
	ts.rec = &cp
}

// Record returns a copy of the current in-memory record, loading it from
// the store on first use.
func (ts *TokenSource) Record() (Record, error) {
	return ts.current()
}

// Valid reports whether the current access token is usable at the given
// instant, honoring the configured skew. A missing record is simply
// invalid, not an error.
func (ts *TokenSource) Valid(now time.Time) bool {
	rec, err := ts.current()
	if err != nil {
		return false
	}
	return rec.ValidAt(now, ts.skew)
}

// EnsureValid returns a record whose access token is valid, refreshing and
// persisting first when it is not. Concurrent callers share a single
// in-flight refresh; each caller still honors its own context while
// waiting.
func (ts *TokenSource) EnsureValid(ctx context.Context) (Record, error) {
	rec, err := ts.current()
	if err != nil {
		return Record{}, err
	}
	if rec.ValidAt(ts.now(), ts.skew) {
		return rec, nil
	}

	// The shared refresh is detached from the first caller's context so a
	// single cancellation does not fail every waiter.
	ch := ts.flight.DoChan("refresh", func() (any, error) {
		return ts.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Record{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Record{}, res.Err
		}
		return res.Val.(Record), nil
	}
}

// current returns a copy of the in-memory record, loading it from the store
// on first use. Records behind ts.rec are never mutated once published, so
// the copy is safe without holding the lock across the dereference.
func (ts *TokenSource) current() (Record, error) {
	ts.mu.RLock()
	rec := ts.rec
	ts.mu.RUnlock()
	if rec != nil {
		return *rec, nil
	}

	loaded, err := ts.store.Load()
	if err != nil {
		return Record{}, err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.rec == nil {
		ts.rec = loaded
	}
	return *ts.rec, nil
}

// refresh exchanges the identity token for a fresh access token and installs
// a new record that differs from the old one in exactly the access-token
// fields. The old record is left untouched for readers still holding it.
// Persistence failures surface: a refreshed-but-unpersisted token causes
// redundant refreshes on the next process start.
func (ts *TokenSource) refresh(ctx context.Context) (Record, error) {
	ts.mu.RLock()
	rec := ts.rec
	ts.mu.RUnlock()

	// Another waiter may have finished the refresh while we queued.
	if rec != nil && rec.ValidAt(ts.now(), ts.skew) {
		return *rec, nil
	}
	if rec == nil || rec.IdentityToken == "" {
		return Record{}, &Error{Message: "no identity token available, run `wingman login` first"}
	}

	tok, err := ts.exchange.Exchange(ctx, rec.IdentityToken)
	if err != nil {
		return Record{}, fmt.Errorf("failed to refresh access token: %w", err)
	}

	updated := *rec
	updated.AccessToken = tok.Token
	updated.ExpiresAt = tok.ExpiresAt
	updated.RefreshIn = tok.RefreshIn

	ts.mu.Lock()
	ts.rec = &updated
	ts.mu.Unlock()

	if err := ts.store.Save(&updated); err != nil {
		return Record{}, fmt.Errorf("refreshed token could not be persisted: %w", err)
	}

	slog.Debug("access token refreshed",
		slogx.Token("access_token", updated.AccessToken),
		slog.Int64("expires_at", updated.ExpiresAt),
		slog.Int64("refresh_in", updated.RefreshIn))
	return updated, nil
}
