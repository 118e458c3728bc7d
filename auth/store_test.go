package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewStore(path)

	rec := &Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "tid=access",
		ExpiresAt:     1_700_003_600,
		RefreshIn:     1500,
		CreatedAt:     strfmt.DateTime(time.Now().UTC().Truncate(time.Second)),
		Principal:     "octocat",
	}
	require.NoError(t, store.Save(rec))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)
}

func TestStore_PersistedShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewStore(path)

	require.NoError(t, store.Save(&Record{
		IdentityToken: "ghu_identity",
		AccessToken:   "tid=access",
		ExpiresAt:     1_700_003_600,
		RefreshIn:     1500,
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(data))

	result := gjson.ParseBytes(data)
	assert.Equal(t, "ghu_identity", result.Get("identity_token").String())
	assert.Equal(t, "tid=access", result.Get("access_token").String())
	assert.Equal(t, int64(1_700_003_600), result.Get("expires_at").Int())
	assert.Equal(t, int64(1500), result.Get("refresh_in").Int())
	assert.False(t, result.Get("principal").Exists())
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	_, err := store.Load()
	require.Error(t, err)

	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "wingman login")
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewStore(path).Load()
	require.Error(t, err)

	var authErr *Error
	assert.False(t, errors.As(err, &authErr), "corrupt file is not an authentication error")
}

func TestStore_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, NewStore(path).Save(&Record{IdentityToken: "id"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
