package session

import (
	"context"
	"testing"

	"github.com/nkkko/lista/internal/storage"
	"github.com/nkkko/lista/internal/tokencodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T, key string) *tokencodec.Codec {
	t.Helper()
	codec, err := tokencodec.New(key)
	require.NoError(t, err)
	return codec
}

func newMemorySession(t *testing.T) *Session {
	t.Helper()
	s, err := Open(Config{InMemory: true}, newCodec(t, "test-key"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_Token(t *testing.T) {
	s := newMemorySession(t)
	ctx := context.Background()

	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.SetToken(ctx, "a.b.c"))
	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", token)

	raw, err := s.store.Get(ctx, cookieToken)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "a.b.c", "the cookie holds ciphertext")

	assert.ErrorIs(t, s.SetToken(ctx, ""), tokencodec.ErrEmptySecret)
}

func TestSession_UnreadableTokenIsDiscarded(t *testing.T) {
	s := newMemorySession(t)
	ctx := context.Background()

	require.NoError(t, s.store.Set(ctx, cookieToken, []byte("garbage")))
	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = s.store.Get(ctx, cookieToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSession_Cookies(t *testing.T) {
	s := newMemorySession(t)
	ctx := context.Background()

	assert.False(t, s.Registered(ctx))
	require.NoError(t, s.SetRegistered(ctx, true))
	assert.True(t, s.Registered(ctx))

	assert.Empty(t, s.UserName(ctx))
	require.NoError(t, s.SetUserName(ctx, "Ana"))
	assert.Equal(t, "Ana", s.UserName(ctx))
	raw, err := s.store.Get(ctx, cookieUserName)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userName":"Ana"}`, string(raw))

	require.NoError(t, s.SetListID(ctx, 12))
	assert.EqualValues(t, 12, s.ListID(ctx))
	require.NoError(t, s.SetListID(ctx, 0))
	assert.Zero(t, s.ListID(ctx))

	require.NoError(t, s.SetToken(ctx, "tok"))
	require.NoError(t, s.SetTheme(ctx, "dark"))
	require.NoError(t, s.Clear(ctx))

	assert.False(t, s.Registered(ctx))
	assert.Empty(t, s.UserName(ctx))
	_, err = s.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Equal(t, "dark", s.Theme(ctx), "preferences survive logout")
}

func TestSession_Preferences(t *testing.T) {
	s := newMemorySession(t)
	ctx := context.Background()

	assert.Equal(t, DefaultTheme, s.Theme(ctx))
	assert.Equal(t, DefaultLanguage, s.Language(ctx))

	require.NoError(t, s.SetLanguage(ctx, "sl"))
	assert.Equal(t, "sl", s.Language(ctx))
	require.NoError(t, s.SetLanguage(ctx, ""))
	assert.Equal(t, DefaultLanguage, s.Language(ctx))

	first, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 36)

	second, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSession_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	codec := newCodec(t, "reopen-key")

	s, err := Open(Config{DataDir: dir}, codec)
	require.NoError(t, err)
	require.NoError(t, s.SetToken(ctx, "persisted"))
	require.NoError(t, s.SetUserName(ctx, "Bo"))
	require.NoError(t, s.SetTheme(ctx, "light"))
	deviceID, err := s.DeviceID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(Config{DataDir: dir}, codec)
	require.NoError(t, err)
	defer s.Close()

	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
	assert.Equal(t, "Bo", s.UserName(ctx))
	assert.Equal(t, "light", s.Theme(ctx))

	again, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, deviceID, again)

	// A different key cannot read the cookie
	other := New(s.store, newCodec(t, "another-key"))
	got, err := other.Token(ctx)
	assert.True(t, err != nil || got != "persisted")
}
