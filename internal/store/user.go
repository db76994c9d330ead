package store

import (
	"context"
	"errors"
	"sync"

	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/session"
	"github.com/nkkko/lista/internal/tokencodec"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// User holds the signed-in user
type User struct {
	gw      UserGateway
	session *session.Session
	mutate  mutator
	logger  zerolog.Logger

	mu        sync.RWMutex
	id        proto.ID
	name      string
	email     string
	observers []func(proto.User)
}

// NewUser creates a signed-out user store. sess may be nil, in which case
// nothing is persisted.
func NewUser(gw UserGateway, sess *session.Session, notifier Notifier) *User {
	logger := logging.Component("store.user")
	return &User{
		gw:      gw,
		session: sess,
		mutate:  newMutator("user", notifier, logger),
		logger:  logger,
	}
}

// LoadFromToken signs in with a bearer token. The local user id and name are
// read from the token's claims; the token is persisted in the session.
func (u *User) LoadFromToken(ctx context.Context, token string) error {
	if err := u.adopt(token); err != nil {
		return err
	}
	if u.session == nil {
		return nil
	}
	if err := u.session.SetToken(ctx, token); err != nil {
		return err
	}
	if err := u.session.SetRegistered(ctx, true); err != nil {
		return err
	}
	if name := u.Name(); name != "" {
		return u.session.SetUserName(ctx, name)
	}
	return nil
}

// Restore signs in with the token persisted by an earlier run.
// It reports false when there is none.
func (u *User) Restore(ctx context.Context) (bool, error) {
	if u.session == nil {
		return false, nil
	}
	token, err := u.session.Token(ctx)
	if errors.Is(err, session.ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := u.adopt(token); err != nil {
		u.logger.Warn().Err(err).Msg("Stored token is not usable")
		return false, nil
	}
	if name := u.session.UserName(ctx); name != "" && u.Name() == "" {
		u.set(func() { u.name = name })
	}
	return true, nil
}

func (u *User) adopt(token string) error {
	claims, err := tokencodec.ParseClaims(token)
	if err != nil {
		return err
	}
	u.gw.SetToken(token)
	u.set(func() {
		u.id = claims.UserID()
		u.name = claims.Name
		u.email = ""
	})
	u.logger.Debug().Stringer("user_id", claims.UserID()).Msg("Signed in")
	return nil
}

// Refresh loads the user's profile from the content API
func (u *User) Refresh(ctx context.Context) error {
	me, err := u.gw.Me(ctx)
	if err != nil {
		return u.mutate.fail(ctx, "refresh", "Could not load your profile", err)
	}
	u.set(func() {
		if !me.Id.IsZero() {
			u.id = me.Id
		}
		u.name = me.Name
		u.email = me.Email
	})
	if u.session != nil && me.Name != "" {
		return u.session.SetUserName(ctx, me.Name)
	}
	return nil
}

// Logout forgets the user and clears the persisted cookies
func (u *User) Logout(ctx context.Context) error {
	u.gw.SetToken("")
	u.set(func() {
		u.id = 0
		u.name = ""
		u.email = ""
	})
	if u.session != nil {
		return u.session.Clear(ctx)
	}
	return nil
}

// ID returns the local user id, or zero when signed out
func (u *User) ID() proto.ID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.id
}

// Name returns the display name
func (u *User) Name() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.name
}

// Current returns the signed-in user
func (u *User) Current() proto.User {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return proto.User{Id: u.id, Name: u.name, Email: u.email}
}

// LoggedIn reports whether a user is signed in
func (u *User) LoggedIn() bool {
	return !u.ID().IsZero()
}

// Theme returns the preferred theme
func (u *User) Theme(ctx context.Context) string {
	if u.session == nil {
		return session.DefaultTheme
	}
	return u.session.Theme(ctx)
}

// SetTheme stores the preferred theme
func (u *User) SetTheme(ctx context.Context, theme string) error {
	if u.session == nil {
		return nil
	}
	return u.session.SetTheme(ctx, theme)
}

// Language returns the preferred language
func (u *User) Language(ctx context.Context) string {
	if u.session == nil {
		return session.DefaultLanguage
	}
	return u.session.Language(ctx)
}

// SetLanguage stores the preferred language
func (u *User) SetLanguage(ctx context.Context, language string) error {
	if u.session == nil {
		return nil
	}
	return u.session.SetLanguage(ctx, language)
}

// OnChange registers fn to be called with the user after every change
func (u *User) OnChange(fn func(proto.User)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.observers = append(u.observers[:len(u.observers):len(u.observers)], fn)
}

func (u *User) set(fn func()) {
	u.mu.Lock()
	fn()
	current := proto.User{Id: u.id, Name: u.name, Email: u.email}
	observers := u.observers
	u.mu.Unlock()

	for _, o := range observers {
		o(current)
	}
}
