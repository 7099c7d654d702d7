// Package session owns the single live wallet session of the process. It
// establishes sessions on demand, keeps them on the configured chain, reacts to
// wallet notifications and persists enough state to reconnect silently later.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/sync/singleflight"

	"blockcoop/observability"
	"blockcoop/wallet"
)

// DefaultRole is recorded when no role resolver is installed.
const DefaultRole = "user"

// ensureTimeout bounds a shared initialization, including an interactive prompt.
const ensureTimeout = 5 * time.Minute

// ErrNotConnected is returned by operations that need a live session.
var ErrNotConnected = errors.New("session: not connected")

// Session is the live binding between the client and a wallet account.
type Session struct {
	ChainID   uint64
	Account   common.Address
	Connected bool
}

// ChangeKind labels a session transition.
type ChangeKind string

const (
	Connected      ChangeKind = "connected"
	Restored       ChangeKind = "restored"
	Disconnected   ChangeKind = "disconnected"
	AccountChanged ChangeKind = "accountChanged"
	ChainChanged   ChangeKind = "chainChanged"
)

// Change is broadcast to subscribers on every transition. Current is the zero
// Session when the transition left the client disconnected.
type Change struct {
	Kind     ChangeKind
	Previous Session
	Current  Session
	Role     string
}

// RoleFunc resolves the role of a freshly connected account. It must not fail;
// implementations degrade to the least privileged role.
type RoleFunc func(ctx context.Context, account common.Address) string

// Adapter is the Wallet Session Adapter.
type Adapter struct {
	provider wallet.Provider
	chain    wallet.ChainParams
	store    *Store
	roleOf   RoleFunc
	logger   *slog.Logger
	metrics  *observability.SessionMetrics
	now      func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	current *Session
	role    string

	feed      event.FeedOf[Change]
	scope     event.SubscriptionScope
	listeners atomic.Int64
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithStore persists session state in store.
func WithStore(store *Store) Option {
	return func(a *Adapter) { a.store = store }
}

// WithRoleResolver installs the role lookup run after each connect.
func WithRoleResolver(fn RoleFunc) Option {
	return func(a *Adapter) { a.roleOf = fn }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock overrides the clock used for persisted timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// WithMetrics records session transitions in metrics.
func WithMetrics(metrics *observability.SessionMetrics) Option {
	return func(a *Adapter) { a.metrics = metrics }
}

// NewAdapter builds an adapter bound to chain. provider may be nil, in which case
// every connect attempt fails with wallet.ErrWalletUnavailable.
func NewAdapter(provider wallet.Provider, chain wallet.ChainParams, opts ...Option) *Adapter {
	a := &Adapter{
		provider: provider,
		chain:    chain,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("component", "session"))
	return a
}

// Provider exposes the wallet backing the session.
func (a *Adapter) Provider() wallet.Provider { return a.provider }

// ChainID returns the configured chain id.
func (a *Adapter) ChainID() uint64 { return a.chain.ChainID }

// Current returns the live session, if any.
func (a *Adapter) Current() (Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Session{}, false
	}
	return *a.current, true
}

// Role returns the role resolved for the live session.
func (a *Adapter) Role() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return ""
	}
	return a.role
}

// Connect asks the wallet for an account, moves it to the configured chain and
// establishes the session.
func (a *Adapter) Connect(ctx context.Context) (Session, error) {
	if a.provider == nil {
		return Session{}, wallet.ErrWalletUnavailable
	}
	accounts, err := a.provider.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("session: request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return Session{}, wallet.ErrAccountsEmpty
	}
	if err := a.ensureChain(ctx); err != nil {
		return Session{}, err
	}
	return a.establish(ctx, accounts[0], Connected), nil
}

// ensureChain switches the wallet to the configured chain, adding it first when
// the wallet reports 4902.
func (a *Adapter) ensureChain(ctx context.Context) error {
	active, err := a.provider.ChainID(ctx)
	if err == nil && active == a.chain.ChainID {
		return nil
	}
	err = a.provider.SwitchChain(ctx, a.chain.ChainID)
	if errors.Is(err, wallet.ErrUnknownChain) {
		a.logger.Info("adding chain to wallet", slog.Uint64("chain_id", a.chain.ChainID), slog.String("name", a.chain.ChainName))
		if addErr := a.provider.AddChain(ctx, a.chain); addErr != nil {
			return fmt.Errorf("%w: add chain %d: %w", wallet.ErrNetworkSwitchFailed, a.chain.ChainID, addErr)
		}
		err = a.provider.SwitchChain(ctx, a.chain.ChainID)
	}
	if err != nil {
		return fmt.Errorf("%w: switch to chain %d: %w", wallet.ErrNetworkSwitchFailed, a.chain.ChainID, err)
	}
	return nil
}

// restoreChain moves the wallet back to the configured chain without adding it. A
// fresh wallet process starts on its default chain, so a mismatch alone does not
// invalidate the persisted session.
func (a *Adapter) restoreChain(ctx context.Context) error {
	active, err := a.provider.ChainID(ctx)
	if err == nil && active == a.chain.ChainID {
		return nil
	}
	return a.provider.SwitchChain(ctx, a.chain.ChainID)
}

// establish publishes the session before resolving the role, since role lookups
// read the contract through Ensure.
func (a *Adapter) establish(ctx context.Context, account common.Address, kind ChangeKind) Session {
	sess := Session{ChainID: a.chain.ChainID, Account: account, Connected: true}

	a.mu.Lock()
	var previous Session
	if a.current != nil {
		previous = *a.current
	}
	a.current = &sess
	a.role = DefaultRole
	a.mu.Unlock()

	role := DefaultRole
	if a.roleOf != nil {
		role = a.roleOf(ctx, account)
	}
	a.mu.Lock()
	if a.current != nil && a.current.Account == account {
		a.role = role
	}
	a.mu.Unlock()

	if err := a.store.Save(State{
		Connected: true,
		Role:      role,
		Account:   account.Hex(),
		ChainID:   sess.ChainID,
		UpdatedAt: a.now().UTC(),
	}); err != nil {
		a.logger.Warn("persist session state failed", slog.Any("error", err))
	}
	a.metrics.SetConnected(true)
	a.metrics.RecordChange(string(kind))
	a.logger.Info("session established",
		slog.String("account", account.Hex()),
		slog.Uint64("chain_id", sess.ChainID),
		slog.String("role", role),
		slog.String("kind", string(kind)))
	a.feed.Send(Change{Kind: kind, Previous: previous, Current: sess, Role: role})
	return sess
}

// ReconnectSilently restores the session recorded in the store without prompting.
// It reports whether a session is live afterwards. Persisted state is cleared when
// the wallet no longer exposes an account or cannot return to the configured chain.
func (a *Adapter) ReconnectSilently(ctx context.Context) (bool, error) {
	if _, ok := a.Current(); ok {
		return true, nil
	}
	state, err := a.store.Load()
	if err != nil {
		return false, fmt.Errorf("session: load state: %w", err)
	}
	if !state.Connected || a.provider == nil {
		return false, nil
	}
	accounts, err := a.provider.Accounts(ctx)
	if err != nil {
		a.logger.Warn("silent reconnect failed", slog.Any("error", err))
		a.clearStore()
		return false, nil
	}
	if len(accounts) == 0 {
		a.clearStore()
		return false, nil
	}
	if err := a.restoreChain(ctx); err != nil {
		a.logger.Warn("silent reconnect on another chain", slog.Uint64("chain_id", a.chain.ChainID), slog.Any("error", err))
		a.clearStore()
		return false, nil
	}
	a.establish(ctx, accounts[0], Restored)
	return true, nil
}

// Ensure returns the live session, establishing one when needed. Concurrent
// callers share a single initialization, which runs detached from any one caller's
// cancellation; each caller stops waiting when its own ctx ends.
func (a *Adapter) Ensure(ctx context.Context) (Session, error) {
	if sess, ok := a.Current(); ok {
		return sess, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := a.group.DoChan("ensure", func() (any, error) {
		initCtx, cancel := context.WithTimeout(shared, ensureTimeout)
		defer cancel()
		if sess, ok := a.Current(); ok {
			return sess, nil
		}
		restored, err := a.ReconnectSilently(initCtx)
		if err != nil {
			return Session{}, err
		}
		if restored {
			sess, _ := a.Current()
			return sess, nil
		}
		return a.Connect(initCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

// Disconnect forgets the session locally. The wallet keeps its authorization.
func (a *Adapter) Disconnect() {
	previous, had := a.teardown()
	a.clearStore()
	if had {
		a.metrics.RecordChange(string(Disconnected))
		a.feed.Send(Change{Kind: Disconnected, Previous: previous})
	}
}

func (a *Adapter) teardown() (Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Session{}, false
	}
	previous := *a.current
	a.current = nil
	a.role = ""
	a.metrics.SetConnected(false)
	return previous, true
}

func (a *Adapter) clearStore() {
	if err := a.store.Clear(); err != nil {
		a.logger.Warn("clear session state failed", slog.Any("error", err))
	}
}

// Watch follows wallet notifications until ctx ends. Any account or chain change
// tears the session down; it is re-established silently when the wallet still
// exposes an account on the configured chain.
func (a *Adapter) Watch(ctx context.Context) error {
	if a.provider == nil {
		return wallet.ErrWalletUnavailable
	}
	notes := make(chan wallet.Notification, 16)
	sub := a.provider.SubscribeNotifications(notes)
	defer sub.Unsubscribe()
	for {
		select {
		case note := <-notes:
			a.handle(ctx, note)
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func (a *Adapter) handle(ctx context.Context, note wallet.Notification) {
	previous, had := a.teardown()
	if !had {
		return
	}
	kind := AccountChanged
	if note.Kind == wallet.ChainChanged {
		kind = ChainChanged
	}
	a.metrics.RecordChange(string(kind))
	a.feed.Send(Change{Kind: kind, Previous: previous})

	accounts, err := a.provider.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		a.logger.Info("wallet no longer exposes an account", slog.String("trigger", string(note.Kind)))
		a.clearStore()
		a.feed.Send(Change{Kind: Disconnected, Previous: previous})
		return
	}
	chainID, err := a.provider.ChainID(ctx)
	if err != nil || chainID != a.chain.ChainID {
		a.logger.Info("wallet moved to another chain", slog.Uint64("chain_id", chainID))
		a.clearStore()
		a.feed.Send(Change{Kind: Disconnected, Previous: previous})
		return
	}
	a.establish(ctx, accounts[0], Restored)
}

// Subscribe delivers every Change to ch. Callers must Unsubscribe.
func (a *Adapter) Subscribe(ch chan<- Change) event.Subscription {
	a.listeners.Add(1)
	return &countedSub{Subscription: a.scope.Track(a.feed.Subscribe(ch)), count: &a.listeners}
}

// Listeners reports the number of live Change subscriptions.
func (a *Adapter) Listeners() int {
	return int(a.listeners.Load())
}

// Close ends all subscriptions. The provider and store are owned by the caller.
func (a *Adapter) Close() {
	a.scope.Close()
}

type countedSub struct {
	event.Subscription
	once  sync.Once
	count *atomic.Int64
}

func (s *countedSub) Unsubscribe() {
	s.once.Do(func() { s.count.Add(-1) })
	s.Subscription.Unsubscribe()
}
