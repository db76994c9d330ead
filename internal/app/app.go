// Package app wires the client side together: the content API gateway, the
// persisted session, the state stores and the realtime hooks that keep them
// current.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/realtime"
	"github.com/nkkko/lista/internal/session"
	"github.com/nkkko/lista/internal/store"
	"github.com/nkkko/lista/internal/tokencodec"
	"github.com/nkkko/lista/pkg/client"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// Config contains everything the client needs to reach the hosted services
type Config struct {
	BaseURL       string
	ClientOptions []client.ClientOption
	Realtime      realtime.Config
	Session       session.Config
	TokenKey      string
	Notifications store.NotificationConfig
}

// App owns the client stores and their realtime subscriptions
type App struct {
	Gateway       *client.Client
	Session       *session.Session
	User          *store.User
	Lists         *store.Lists
	Products      *store.Products
	Notifications *store.Notifications
	Forms         *store.Validation
	Overlay       *store.Overlay

	provider     *realtime.Provider
	summary      *realtime.SummaryHook
	share        *realtime.ShareHook
	listsDeleted *realtime.ListsDeletedHook
	listDeleted  *realtime.ListDeletedHook
	listUpdated  *realtime.ListUpdatedHook

	pendingMu sync.Mutex
	pending   pending
	wake      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	redirectMu sync.Mutex
	onRedirect func(listID proto.ID)

	logger zerolog.Logger
}

// pending is realtime follow-up work waiting for the worker. Repeated updates
// collapse into the latest value, so a busy worker never loses any.
type pending struct {
	userID    proto.ID
	userDirty bool

	listIDs    []proto.ID
	listsDirty bool

	leave   map[proto.ID]struct{}
	refresh map[proto.ID]struct{}

	waiters []chan struct{}
}

// taskTimeout bounds each step the worker takes
const taskTimeout = 15 * time.Second

// New opens the session and builds the stores and hooks. Nothing is
// subscribed until a user is signed in.
func New(config Config) (*App, error) {
	passphrase := config.TokenKey
	if passphrase == "" {
		passphrase = tokencodec.DevPassphrase
	}
	codec, err := tokencodec.New(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	sess, err := session.Open(config.Session, codec)
	if err != nil {
		return nil, err
	}

	return newApp(config, sess, realtime.NewWSProvider(config.Realtime)), nil
}

// newApp wires an app around an open session and push provider
func newApp(config Config, sess *session.Session, provider *realtime.Provider) *App {
	gw := client.New(config.BaseURL, config.ClientOptions...)
	notifications := store.NewNotifications(config.Notifications)
	forms := store.NewValidation()

	a := &App{
		Gateway:       gw,
		Session:       sess,
		User:          store.NewUser(gw, sess, notifications),
		Lists:         store.NewLists(gw, notifications, forms),
		Products:      store.NewProducts(gw, notifications, forms),
		Notifications: notifications,
		Forms:         forms,
		Overlay:       store.NewOverlay(),
		provider:      provider,
		wake:          make(chan struct{}, 1),
		logger:        logging.Component("app"),
	}

	opts := realtime.HookOptions{
		Provider: provider,
		Self:     a.User.ID,
		Notifier: notifications,
	}
	a.summary = realtime.NewSummaryHook(opts, a.Lists, a.Products)
	a.share = realtime.NewShareHook(opts, a.Lists, a.Products, a.leaveActive)
	a.listsDeleted = realtime.NewListsDeletedHook(opts, a.Lists)
	a.listDeleted = realtime.NewListDeletedHook(opts, a.leaveActive)
	a.listUpdated = realtime.NewListUpdatedHook(opts, a.refreshActive)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go a.run(ctx)

	a.User.OnChange(func(u proto.User) {
		a.schedule(func(p *pending) {
			p.userID = u.Id
			p.userDirty = true
		})
	})
	a.Lists.OnChange(func(lists []proto.List) {
		ids := make([]proto.ID, len(lists))
		for i, l := range lists {
			ids[i] = l.Id
		}
		a.schedule(func(p *pending) {
			p.listIDs = ids
			p.listsDirty = true
		})
	})

	return a
}

// OnRedirect registers fn to be called when the open list goes away under
// the user, either deleted or after losing access to it
func (a *App) OnRedirect(fn func(listID proto.ID)) {
	a.redirectMu.Lock()
	defer a.redirectMu.Unlock()
	a.onRedirect = fn
}

// Start restores a persisted sign-in and loads the user's lists.
// It reports whether a user is signed in.
func (a *App) Start(ctx context.Context) (bool, error) {
	ok, err := a.User.Restore(ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := a.Lists.Fetch(ctx); err != nil {
		return true, err
	}
	if id := a.Session.ListID(ctx); !id.IsZero() && a.Lists.Contains(id) {
		if err := a.OpenList(ctx, id); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Login signs in with a bearer token and loads the user's lists
func (a *App) Login(ctx context.Context, token string) error {
	if err := a.User.LoadFromToken(ctx, token); err != nil {
		return err
	}
	if err := a.User.Refresh(ctx); err != nil {
		return err
	}
	return a.Lists.Fetch(ctx)
}

// Logout closes the open list, forgets the user and drops every subscription
func (a *App) Logout(ctx context.Context) error {
	a.CloseList(ctx)
	a.Lists.Clear()
	return a.User.Logout(ctx)
}

// OpenList makes id the active list and watches it
func (a *App) OpenList(ctx context.Context, id proto.ID) error {
	list, ok := a.Lists.Get(id)
	if !ok {
		return fmt.Errorf("list %s: %w", id, store.ErrUnknownList)
	}
	if err := a.Products.Open(ctx, id, list.Title); err != nil {
		return err
	}
	a.listDeleted.SetID(ctx, id)
	a.listUpdated.SetID(ctx, id)
	if err := a.Session.SetListID(ctx, id); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to remember the open list")
	}
	return nil
}

// CloseList returns to the home view
func (a *App) CloseList(ctx context.Context) {
	a.Products.CloseList()
	a.listDeleted.SetID(ctx, 0)
	a.listUpdated.SetID(ctx, 0)
	if err := a.Session.SetListID(ctx, 0); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to forget the open list")
	}
}

// Close releases every hook, the push connection and the session
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.cancel()
		a.wg.Wait()

		a.listUpdated.Close()
		a.listDeleted.Close()
		a.listsDeleted.Close()
		a.share.Close()
		a.summary.Close()

		if cerr := a.provider.Close(); cerr != nil {
			a.logger.Debug().Err(cerr).Msg("Failed to close push provider")
		}
		err = a.Session.Close()
	})
	return err
}

// leaveActive closes the open list when it is the one that went away
func (a *App) leaveActive(listID proto.ID) {
	if a.Products.ActiveListID() != listID {
		return
	}
	a.schedule(func(p *pending) {
		if p.leave == nil {
			p.leave = make(map[proto.ID]struct{})
		}
		p.leave[listID] = struct{}{}
	})
}

// refreshActive reloads the open list after another member changed it
func (a *App) refreshActive(listID proto.ID, _ json.RawMessage) {
	a.schedule(func(p *pending) {
		if p.refresh == nil {
			p.refresh = make(map[proto.ID]struct{})
		}
		p.refresh[listID] = struct{}{}
	})
}

// schedule records follow-up work and wakes the worker without blocking the
// caller. Realtime handlers and store observers must not call back into the
// stores directly.
func (a *App) schedule(fn func(p *pending)) {
	a.pendingMu.Lock()
	fn(&a.pending)
	a.pendingMu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Settle blocks until all follow-up work scheduled so far has run or ctx is done
func (a *App) Settle(ctx context.Context) error {
	done := make(chan struct{})
	a.schedule(func(p *pending) { p.waiters = append(p.waiters, done) })

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
			a.drain(ctx)
		}
	}
}

// drain takes everything pending and applies it: subscriptions first, then
// departures from the open list, then reloads
func (a *App) drain(ctx context.Context) {
	a.pendingMu.Lock()
	p := a.pending
	a.pending = pending{}
	a.pendingMu.Unlock()

	if p.userDirty {
		a.step(ctx, func(ctx context.Context) {
			a.summary.SetID(ctx, p.userID)
			a.share.SetID(ctx, p.userID)
		})
	}
	if p.listsDirty {
		a.step(ctx, func(ctx context.Context) {
			a.listsDeleted.SetListIDs(ctx, p.listIDs)
		})
	}
	for listID := range p.leave {
		a.step(ctx, func(ctx context.Context) { a.leave(ctx, listID) })
	}
	for listID := range p.refresh {
		a.step(ctx, func(ctx context.Context) { a.refresh(ctx, listID) })
	}

	for _, done := range p.waiters {
		close(done)
	}
}

func (a *App) step(ctx context.Context, fn func(context.Context)) {
	if ctx.Err() != nil {
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()
	fn(stepCtx)
}

func (a *App) leave(ctx context.Context, listID proto.ID) {
	if a.Products.ActiveListID() != listID {
		return
	}
	a.CloseList(ctx)

	a.redirectMu.Lock()
	fn := a.onRedirect
	a.redirectMu.Unlock()
	if fn != nil {
		fn(listID)
	}
}

func (a *App) refresh(ctx context.Context, listID proto.ID) {
	if a.Products.ActiveListID() != listID {
		return
	}
	if err := a.Products.Refresh(ctx); err != nil {
		a.logger.Debug().Err(err).Stringer("list_id", listID).Msg("Refresh after update failed")
	}
}
