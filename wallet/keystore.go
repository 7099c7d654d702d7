package wallet

import (
	"context"
	"errors"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// MainnetChainID is the chain a fresh keystore wallet starts on.
const MainnetChainID = 1

// Keystore is a local wallet backed by a go-ethereum v3 keystore directory.
// Connecting unlocks the selected account with its passphrase; the account stays
// unlocked for the lifetime of the process.
type Keystore struct {
	ks          *keystore.KeyStore
	passphrases Passphrases
	confirm     ConfirmFunc
	preferred   common.Address

	mu         sync.Mutex
	chains     map[uint64]ChainParams
	active     uint64
	authorized map[common.Address]bool

	feed    event.FeedOf[Notification]
	scope   event.SubscriptionScope
	watchMu sync.Mutex
	watch   event.Subscription
	done    chan struct{}
}

// KeystoreOption customises a Keystore wallet.
type KeystoreOption func(*Keystore)

// WithPreferredAccount restricts the wallet to a single keystore account.
func WithPreferredAccount(addr common.Address) KeystoreOption {
	return func(k *Keystore) { k.preferred = addr }
}

// WithConfirm installs a per-transaction approval hook.
func WithConfirm(fn ConfirmFunc) KeystoreOption {
	return func(k *Keystore) { k.confirm = fn }
}

// WithKnownChain registers a chain the wallet can switch to without AddChain.
func WithKnownChain(params ChainParams) KeystoreOption {
	return func(k *Keystore) { k.chains[params.ChainID] = params }
}

// OpenKeystore opens the keystore directory at dir. A missing directory means no
// wallet is installed.
func OpenKeystore(dir string, passphrases Passphrases, opts ...KeystoreOption) (*Keystore, error) {
	if dir == "" {
		return nil, ErrWalletUnavailable
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrWalletUnavailable
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrWalletUnavailable
	}
	return NewKeystore(keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP), passphrases, opts...), nil
}

// NewKeystore wraps an existing keystore.
func NewKeystore(ks *keystore.KeyStore, passphrases Passphrases, opts ...KeystoreOption) *Keystore {
	k := &Keystore{
		ks:          ks,
		passphrases: passphrases,
		chains: map[uint64]ChainParams{
			MainnetChainID: {ChainID: MainnetChainID, ChainName: "Ethereum Mainnet", NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}},
		},
		active:     MainnetChainID,
		authorized: make(map[common.Address]bool),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Keystore) candidates() []accounts.Account {
	all := k.ks.Accounts()
	if k.preferred == (common.Address{}) {
		return all
	}
	for _, acct := range all {
		if acct.Address == k.preferred {
			return []accounts.Account{acct}
		}
	}
	return nil
}

// RequestAccounts unlocks the first candidate account, prompting for its passphrase
// when none is available from the environment.
func (k *Keystore) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	candidates := k.candidates()
	if len(candidates) == 0 {
		return nil, nil
	}
	acct := candidates[0]
	if k.isAuthorized(acct.Address) {
		return []common.Address{acct.Address}, nil
	}
	passphrase, ok := "", false
	if k.passphrases != nil {
		passphrase, ok = k.passphrases.Lookup(acct.Address)
	}
	if !ok {
		if k.passphrases == nil {
			return nil, newProviderError(CodeUserRejected, "no passphrase source configured")
		}
		var err error
		passphrase, err = k.passphrases.Prompt(ctx, acct.Address)
		if err != nil {
			if errors.Is(err, ErrUserRejected) {
				return nil, newProviderError(CodeUserRejected, "passphrase entry declined")
			}
			return nil, err
		}
	}
	if err := k.unlock(acct, passphrase); err != nil {
		return nil, err
	}
	return []common.Address{acct.Address}, nil
}

// Accounts returns unlocked accounts. An account whose passphrase is available
// without prompting is unlocked on the fly, mirroring a wallet that already trusts
// this client.
func (k *Keystore) Accounts(ctx context.Context) ([]common.Address, error) {
	candidates := k.candidates()
	if len(candidates) == 0 {
		return nil, nil
	}
	acct := candidates[0]
	if k.isAuthorized(acct.Address) {
		return []common.Address{acct.Address}, nil
	}
	if k.passphrases == nil {
		return nil, nil
	}
	passphrase, ok := k.passphrases.Lookup(acct.Address)
	if !ok {
		return nil, nil
	}
	if err := k.unlock(acct, passphrase); err != nil {
		return nil, nil
	}
	return []common.Address{acct.Address}, nil
}

func (k *Keystore) unlock(acct accounts.Account, passphrase string) error {
	if err := k.ks.Unlock(acct, passphrase); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return newProviderError(CodeUnauthorized, "invalid passphrase for %s", acct.Address.Hex())
		}
		return err
	}
	k.mu.Lock()
	k.authorized[acct.Address] = true
	k.mu.Unlock()
	return nil
}

func (k *Keystore) isAuthorized(addr common.Address) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.authorized[addr]
}

// Lock forgets the unlocked key and announces the account removal.
func (k *Keystore) Lock(addr common.Address) error {
	k.mu.Lock()
	delete(k.authorized, addr)
	k.mu.Unlock()
	if err := k.ks.Lock(addr); err != nil {
		return err
	}
	k.feed.Send(Notification{Kind: AccountsChanged, Accounts: nil, ChainID: k.currentChain()})
	return nil
}

func (k *Keystore) currentChain() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

func (k *Keystore) ChainID(context.Context) (uint64, error) {
	return k.currentChain(), nil
}

func (k *Keystore) SwitchChain(_ context.Context, chainID uint64) error {
	k.mu.Lock()
	if _, ok := k.chains[chainID]; !ok {
		k.mu.Unlock()
		return newProviderError(CodeUnrecognizedChain, "unrecognized chain id %d", chainID)
	}
	changed := k.active != chainID
	k.active = chainID
	k.mu.Unlock()
	if changed {
		k.feed.Send(Notification{Kind: ChainChanged, ChainID: chainID})
	}
	return nil
}

func (k *Keystore) AddChain(_ context.Context, params ChainParams) error {
	if params.ChainID == 0 {
		return newProviderError(CodeUnsupportedMethod, "chain id required")
	}
	if len(params.RPCURLs) == 0 {
		return newProviderError(CodeUnsupportedMethod, "at least one rpc url required")
	}
	k.mu.Lock()
	k.chains[params.ChainID] = params
	k.mu.Unlock()
	return nil
}

func (k *Keystore) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if !k.isAuthorized(account) {
		return nil, newProviderError(CodeUnauthorized, "account %s is not connected", account.Hex())
	}
	if k.confirm != nil {
		if err := k.confirm(ctx, account, tx); err != nil {
			if errors.Is(err, ErrUserRejected) {
				return nil, newProviderError(CodeUserRejected, "transaction declined")
			}
			return nil, err
		}
	}
	signed, err := k.ks.SignTx(accounts.Account{Address: account}, tx, chainID)
	if err != nil {
		if errors.Is(err, keystore.ErrLocked) {
			return nil, newProviderError(CodeUnauthorized, "account %s is locked", account.Hex())
		}
		return nil, err
	}
	return signed, nil
}

// SubscribeNotifications also starts forwarding keystore directory changes as
// accountsChanged notifications.
func (k *Keystore) SubscribeNotifications(ch chan<- Notification) event.Subscription {
	k.startWatch()
	return k.scope.Track(k.feed.Subscribe(ch))
}

func (k *Keystore) startWatch() {
	k.watchMu.Lock()
	defer k.watchMu.Unlock()
	if k.watch != nil {
		return
	}
	events := make(chan accounts.WalletEvent, 8)
	k.watch = k.ks.Subscribe(events)
	go k.forward(events, k.watch)
}

func (k *Keystore) forward(events <-chan accounts.WalletEvent, sub event.Subscription) {
	for {
		select {
		case ev := <-events:
			if ev.Kind != accounts.WalletDropped {
				continue
			}
			var dropped []common.Address
			for _, acct := range ev.Wallet.Accounts() {
				dropped = append(dropped, acct.Address)
			}
			k.mu.Lock()
			for _, addr := range dropped {
				delete(k.authorized, addr)
			}
			k.mu.Unlock()
			remaining, _ := k.Accounts(context.Background())
			k.feed.Send(Notification{Kind: AccountsChanged, Accounts: remaining, ChainID: k.currentChain()})
		case <-sub.Err():
			return
		case <-k.done:
			return
		}
	}
}

// Close stops the directory watcher and ends every notification subscription.
func (k *Keystore) Close() error {
	k.watchMu.Lock()
	if k.watch != nil {
		k.watch.Unsubscribe()
		k.watch = nil
	}
	k.watchMu.Unlock()
	select {
	case <-k.done:
	default:
		close(k.done)
	}
	k.scope.Close()
	return nil
}
