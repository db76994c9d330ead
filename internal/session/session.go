// Package session persists client state between runs: the cookie set that
// carries the credential and a small, non-authoritative preference cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/storage"
	"github.com/nkkko/lista/internal/tokencodec"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// ErrNoToken is returned when no usable credential is stored
var ErrNoToken = errors.New("session: no token")

const (
	cookieToken      = "cookie:token"
	cookieRegistered = "cookie:registered"
	cookieUserName   = "cookie:username"
	cookieListID     = "cookie:listId"

	prefDeviceID = "pref:device_id"
	prefTheme    = "pref:theme"
	prefLanguage = "pref:language"
)

// Default preference values
const (
	DefaultTheme    = "system"
	DefaultLanguage = "en"
)

// Config contains session settings
type Config struct {
	DataDir  string
	InMemory bool
}

// Session reads and writes persisted client state
type Session struct {
	store  storage.Storage
	codec  *tokencodec.Codec
	owned  bool
	mu     sync.Mutex
	logger zerolog.Logger
}

// New creates a session over an existing store
func New(store storage.Storage, codec *tokencodec.Codec) *Session {
	return &Session{
		store:  store,
		codec:  codec,
		logger: logging.Component("session"),
	}
}

// Open opens a store for config and creates a session that owns it
func Open(config Config, codec *tokencodec.Codec) (*Session, error) {
	storeConfig := storage.DefaultConfig()
	storeConfig.DataDir = config.DataDir
	storeConfig.InMemory = config.InMemory

	store, err := storage.NewStorage(storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	s := New(store, codec)
	s.owned = true
	return s, nil
}

// Close releases the store if the session opened it
func (s *Session) Close() error {
	if !s.owned {
		return nil
	}
	return s.store.Close()
}

// SetToken encrypts and stores the bearer credential
func (s *Session) SetToken(ctx context.Context, token string) error {
	encoded, err := s.codec.Encode(token)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, cookieToken, []byte(encoded))
}

// Token returns the stored bearer credential.
// A cookie that no longer decodes is removed and reported as ErrNoToken.
func (s *Session) Token(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, cookieToken)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}

	token, err := s.codec.Decode(string(raw))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Discarding unreadable token cookie")
		if err := s.store.Delete(ctx, cookieToken); err != nil {
			return "", err
		}
		return "", ErrNoToken
	}
	return token, nil
}

// SetRegistered sets or clears the registered marker
func (s *Session) SetRegistered(ctx context.Context, registered bool) error {
	if !registered {
		return s.store.Delete(ctx, cookieRegistered)
	}
	return s.store.Set(ctx, cookieRegistered, []byte("yes"))
}

// Registered reports whether the registered marker is "yes"
func (s *Session) Registered(ctx context.Context) bool {
	raw, err := s.store.Get(ctx, cookieRegistered)
	return err == nil && string(raw) == "yes"
}

type userNameCookie struct {
	UserName string `json:"userName"`
}

// SetUserName stores the display name of the signed-in user
func (s *Session) SetUserName(ctx context.Context, name string) error {
	return storage.SetJSON(ctx, s.store, cookieUserName, userNameCookie{UserName: name})
}

// UserName returns the stored display name, or "" when absent or unreadable
func (s *Session) UserName(ctx context.Context) string {
	var cookie userNameCookie
	if err := storage.GetJSON(ctx, s.store, cookieUserName, &cookie); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug().Err(err).Msg("Ignoring username cookie")
		}
		return ""
	}
	return cookie.UserName
}

// SetListID remembers the list the user navigated into
func (s *Session) SetListID(ctx context.Context, id proto.ID) error {
	if id.IsZero() {
		return s.store.Delete(ctx, cookieListID)
	}
	return s.store.Set(ctx, cookieListID, []byte(id.String()))
}

// ListID returns the remembered list, or zero
func (s *Session) ListID(ctx context.Context) proto.ID {
	raw, err := s.store.Get(ctx, cookieListID)
	if err != nil {
		return 0
	}
	id, err := proto.ParseID(string(raw))
	if err != nil {
		return 0
	}
	return id
}

// Clear removes every cookie; preferences are kept
func (s *Session) Clear(ctx context.Context) error {
	for _, key := range []string{cookieToken, cookieRegistered, cookieUserName, cookieListID} {
		if err := s.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// DeviceID returns the device id, generating one on first use
func (s *Session) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.store.Get(ctx, prefDeviceID)
	if err == nil {
		return string(raw), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	id := uuid.NewString()
	if err := s.store.Set(ctx, prefDeviceID, []byte(id)); err != nil {
		return "", err
	}
	s.logger.Debug().Str("device_id", id).Msg("Generated device id")
	return id, nil
}

// Theme returns the preferred theme
func (s *Session) Theme(ctx context.Context) string {
	return s.pref(ctx, prefTheme, DefaultTheme)
}

// SetTheme stores the preferred theme
func (s *Session) SetTheme(ctx context.Context, theme string) error {
	return s.setPref(ctx, prefTheme, theme)
}

// Language returns the preferred language
func (s *Session) Language(ctx context.Context) string {
	return s.pref(ctx, prefLanguage, DefaultLanguage)
}

// SetLanguage stores the preferred language
func (s *Session) SetLanguage(ctx context.Context, language string) error {
	return s.setPref(ctx, prefLanguage, language)
}

func (s *Session) pref(ctx context.Context, key, fallback string) string {
	raw, err := s.store.Get(ctx, key)
	if err != nil || len(raw) == 0 {
		return fallback
	}
	return string(raw)
}

func (s *Session) setPref(ctx context.Context, key, value string) error {
	if value == "" {
		return s.store.Delete(ctx, key)
	}
	return s.store.Set(ctx, key, []byte(value))
}
