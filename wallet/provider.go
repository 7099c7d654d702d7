// Package wallet abstracts the account holder that approves connections and signs
// transactions for the BlockCoop client. Providers follow EIP-1193 semantics: explicit
// account requests may prompt the holder, silent account reads never do, chain
// switching fails with code 4902 for chains the wallet does not know, and account or
// chain changes are announced through notifications.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

var (
	ErrWalletUnavailable   = errors.New("wallet: no wallet available")
	ErrUserRejected        = errors.New("wallet: request rejected by user")
	ErrAccountsEmpty       = errors.New("wallet: no accounts available")
	ErrNetworkSwitchFailed = errors.New("wallet: network switch failed")
	ErrUnknownChain        = errors.New("wallet: unrecognized chain")
)

// ProviderError carries a structured EIP-1193 error code. It satisfies the
// go-ethereum rpc.Error interface so codes survive a JSON-RPC round trip.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// ErrorCode implements rpc.Error.
func (e *ProviderError) ErrorCode() int {
	if e == nil {
		return 0
	}
	return e.Code
}

// Is maps well-known codes onto the package sentinels.
func (e *ProviderError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrUserRejected:
		return e.Code == CodeUserRejected
	case ErrUnknownChain:
		return e.Code == CodeUnrecognizedChain
	}
	return false
}

func newProviderError(code int, format string, args ...any) *ProviderError {
	return &ProviderError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotificationKind names the provider events a session must react to.
type NotificationKind string

const (
	AccountsChanged NotificationKind = "accountsChanged"
	ChainChanged    NotificationKind = "chainChanged"
)

// Notification is delivered to subscribers whenever the exposed accounts or the
// active chain change.
type Notification struct {
	Kind     NotificationKind
	Accounts []common.Address
	ChainID  uint64
}

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// ChainParams is the metadata handed to AddChain.
type ChainParams struct {
	ChainID           uint64
	ChainName         string
	NativeCurrency    NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}

// Provider is implemented by every wallet backend.
type Provider interface {
	// RequestAccounts asks the holder to expose accounts and may prompt.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params ChainParams) error
	SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	SubscribeNotifications(ch chan<- Notification) event.Subscription
	Close() error
}

// Passphrases supplies keystore secrets. Lookup never prompts; Prompt may ask the
// holder and returns ErrUserRejected when they decline.
type Passphrases interface {
	Lookup(account common.Address) (string, bool)
	Prompt(ctx context.Context, account common.Address) (string, error)
}

// ConfirmFunc lets the holder approve or decline a transaction before it is signed.
// Returning ErrUserRejected maps to code 4001.
type ConfirmFunc func(ctx context.Context, account common.Address, tx *types.Transaction) error
