package auth

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingExchanger hands out sequential tokens and tracks how many
// exchanges actually happened.
type countingExchanger struct {
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (e *countingExchanger) Exchange(ctx context.Context, identityToken string) (*AccessToken, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return &AccessToken{
		Token:     "fresh-token",
		ExpiresAt: time.Now().Add(30 * time.Minute).Unix(),
		RefreshIn: 1500,
	}, nil
}

func seededStore(t *testing.T, rec *Record) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	if rec != nil {
		require.NoError(t, store.Save(rec))
	}
	return store
}

func TestTokenSource_MissingFile(t *testing.T) {
	ex := &countingExchanger{}
	ts, err := NewTokenSource(seededStore(t, nil), ex)
	require.NoError(t, err)

	_, err = ts.EnsureValid(context.Background())
	require.Error(t, err)

	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, ex.calls.Load(), "no exchange may be attempted without a credential file")
}

func TestTokenSource_RefreshExpiredToken(t *testing.T) {
	created := strfmt.DateTime(time.Now().UTC().Truncate(time.Second))
	store := seededStore(t, &Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "stale-token",
		ExpiresAt:     time.Now().Unix() - 1,
		CreatedAt:     created,
		Principal:     "octocat",
	})

	ex := &countingExchanger{}
	ts, err := NewTokenSource(store, ex)
	require.NoError(t, err)

	rec, err := ts.EnsureValid(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), ex.calls.Load())
	assert.Equal(t, "fresh-token", rec.AccessToken)
	assert.Greater(t, rec.ExpiresAt, time.Now().Unix())

	// Only the access-token fields may change.
	assert.Equal(t, "ghu_identity", rec.IdentityToken)
	assert.Equal(t, "octocat", rec.Principal)
	assert.Equal(t, created, rec.CreatedAt)

	// The refreshed record must be on disk.
	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, rec, *persisted)
}

func TestTokenSource_ValidTokenSkipsRefresh(t *testing.T) {
	store := seededStore(t, &Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "live-token",
		ExpiresAt:     time.Now().Add(time.Hour).Unix(),
	})

	ex := &countingExchanger{}
	ts, err := NewTokenSource(store, ex)
	require.NoError(t, err)

	rec, err := ts.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "live-token", rec.AccessToken)
	assert.Zero(t, ex.calls.Load())
}

func TestTokenSource_SkewTreatsNearExpiryAsInvalid(t *testing.T) {
	store := seededStore(t, &Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "nearly-dead",
		ExpiresAt:     time.Now().Add(30 * time.Second).Unix(),
	})

	ex := &countingExchanger{}
	ts, err := NewTokenSource(store, ex)
	require.NoError(t, err)

	// Within the default 60s skew the token counts as expired.
	rec, err := ts.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", rec.AccessToken)
	assert.Equal(t, int64(1), ex.calls.Load())
}

func TestTokenSource_ConcurrentRefreshDeduplicated(t *testing.T) {
	store := seededStore(t, &Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "stale-token",
		ExpiresAt:     time.Now().Unix() - 1,
	})

	ex := &countingExchanger{delay: 50 * time.Millisecond}
	ts, err := NewTokenSource(store, ex)
	require.NoError(t, err)

	const callers = 10
	var wg sync.WaitGroup
	records := make([]Record, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records[i], errs[i] = ts.EnsureValid(context.Background())
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh-token", records[i].AccessToken)
	}
	assert.Equal(t, int64(1), ex.calls.Load(), "concurrent callers must share one refresh")
}

func TestTokenSource_ReadersDuringRefresh(t *testing.T) {
	store := seededStore(t, &Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "stale-token",
		ExpiresAt:     time.Now().Unix() - 1,
	})

	ex := &countingExchanger{delay: 5 * time.Millisecond}
	ts, err := NewTokenSource(store, ex)
	require.NoError(t, err)

	// Readers and refreshers must not observe a half-written record; run
	// with the race detector to verify the record swap is synchronized.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				rec, err := ts.EnsureValid(context.Background())
				if assert.NoError(t, err) {
					assert.Equal(t, "ghu_identity", rec.IdentityToken)
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				ts.Valid(time.Now())
				if rec, err := ts.Record(); err == nil {
					assert.Equal(t, "ghu_identity", rec.IdentityToken)
				}
			}
		}()
	}
	wg.Wait()
}

func TestTokenSource_MissingIdentityToken(t *testing.T) {
	store := seededStore(t, &Record{
		AccessToken: "orphan",
		ExpiresAt:   time.Now().Unix() - 1,
	})

	ex := &countingExchanger{}
	ts, err := NewTokenSource(store, ex)
	require.NoError(t, err)

	_, err = ts.EnsureValid(context.Background())
	require.Error(t, err)

	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "wingman login")
	assert.Zero(t, ex.calls.Load())
}

func TestTokenSource_PersistFailureSurfaces(t *testing.T) {
	// Seed a readable record, then make the store path unwritable by
	// replacing the file's parent with a plain file.
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "creds", "credentials.json"))
	require.NoError(t, store.Save(&Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "stale-token",
		ExpiresAt:     time.Now().Unix() - 1,
	}))

	ts, err := NewTokenSource(store, &countingExchanger{})
	require.NoError(t, err)

	// Prime the in-memory record, then break the directory.
	_, err = ts.Record()
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "creds")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "creds"), []byte("in the way"), 0o600))

	_, err = ts.EnsureValid(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persisted")
}

func TestTokenSource_Valid(t *testing.T) {
	store := seededStore(t, &Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "live-token",
		ExpiresAt:     time.Now().Add(time.Hour).Unix(),
	})

	ts, err := NewTokenSource(store, &countingExchanger{})
	require.NoError(t, err)

	assert.True(t, ts.Valid(time.Now()))
	assert.False(t, ts.Valid(time.Now().Add(2*time.Hour)))
}
