package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// RemoteSigner talks to an external signer (Frame, a browser bridge, a custody
// service) over JSON-RPC using the EIP-1193 method set. The signer cannot push
// notifications over plain HTTP, so account and chain changes are detected by polling.
type RemoteSigner struct {
	client *rpc.Client
	poll   time.Duration

	feed  event.FeedOf[Notification]
	scope event.SubscriptionScope

	mu       sync.Mutex
	polling  bool
	accounts []common.Address
	chainID  uint64
	done     chan struct{}
}

// DialRemoteSigner connects to the signer endpoint.
func DialRemoteSigner(ctx context.Context, endpoint string, poll time.Duration) (*RemoteSigner, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, ErrWalletUnavailable
	}
	client, err := rpc.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: dial signer: %v", ErrWalletUnavailable, err)
	}
	return NewRemoteSigner(client, poll), nil
}

// NewRemoteSigner wraps an existing RPC client.
func NewRemoteSigner(client *rpc.Client, poll time.Duration) *RemoteSigner {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &RemoteSigner{client: client, poll: poll, done: make(chan struct{})}
}

type switchChainParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

type nativeCurrencyParams struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type addChainParams struct {
	ChainID           hexutil.Uint64       `json:"chainId"`
	ChainName         string               `json:"chainName"`
	NativeCurrency    nativeCurrencyParams `json:"nativeCurrency"`
	RPCURLs           []string             `json:"rpcUrls"`
	BlockExplorerURLs []string             `json:"blockExplorerUrls,omitempty"`
}

type sendTxArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

func (r *RemoteSigner) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if err := r.client.CallContext(ctx, &out, "eth_requestAccounts"); err != nil {
		return nil, providerErr(err)
	}
	return out, nil
}

func (r *RemoteSigner) Accounts(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if err := r.client.CallContext(ctx, &out, "eth_accounts"); err != nil {
		return nil, providerErr(err)
	}
	return out, nil
}

func (r *RemoteSigner) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := r.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, providerErr(err)
	}
	return uint64(id), nil
}

func (r *RemoteSigner) SwitchChain(ctx context.Context, chainID uint64) error {
	var ignored any
	err := r.client.CallContext(ctx, &ignored, "wallet_switchEthereumChain", switchChainParams{ChainID: hexutil.Uint64(chainID)})
	return providerErr(err)
}

func (r *RemoteSigner) AddChain(ctx context.Context, params ChainParams) error {
	var ignored any
	err := r.client.CallContext(ctx, &ignored, "wallet_addEthereumChain", addChainParams{
		ChainID:   hexutil.Uint64(params.ChainID),
		ChainName: params.ChainName,
		NativeCurrency: nativeCurrencyParams{
			Name:     params.NativeCurrency.Name,
			Symbol:   params.NativeCurrency.Symbol,
			Decimals: params.NativeCurrency.Decimals,
		},
		RPCURLs:           params.RPCURLs,
		BlockExplorerURLs: params.BlockExplorerURLs,
	})
	return providerErr(err)
}

// SignTx asks the signer to sign tx via eth_signTransaction and decodes the
// returned raw transaction.
func (r *RemoteSigner) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	args := sendTxArgs{
		From:    account,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Data:    tx.Data(),
		ChainID: (*hexutil.Big)(chainID),
	}
	if tx.Type() == types.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	var raw hexutil.Bytes
	if err := r.client.CallContext(ctx, &raw, "eth_signTransaction", args); err != nil {
		return nil, providerErr(err)
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("wallet: decode signed transaction: %w", err)
	}
	return signed, nil
}

// SubscribeNotifications starts the change poller on first use.
func (r *RemoteSigner) SubscribeNotifications(ch chan<- Notification) event.Subscription {
	sub := r.scope.Track(r.feed.Subscribe(ch))
	r.mu.Lock()
	start := !r.polling
	r.polling = true
	r.mu.Unlock()
	if start {
		go r.pollLoop()
	}
	return sub
}

func (r *RemoteSigner) pollLoop() {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	r.pollOnce(true)
	for {
		select {
		case <-ticker.C:
			r.pollOnce(false)
		case <-r.done:
			return
		}
	}
}

func (r *RemoteSigner) pollOnce(baseline bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.poll)
	defer cancel()
	accounts, err := r.Accounts(ctx)
	if err != nil {
		return
	}
	chainID, err := r.ChainID(ctx)
	if err != nil {
		return
	}
	r.mu.Lock()
	accountsChanged := !slices.Equal(accounts, r.accounts)
	chainChanged := chainID != r.chainID
	r.accounts = accounts
	r.chainID = chainID
	r.mu.Unlock()
	if baseline {
		return
	}
	if accountsChanged {
		r.feed.Send(Notification{Kind: AccountsChanged, Accounts: accounts, ChainID: chainID})
	}
	if chainChanged {
		r.feed.Send(Notification{Kind: ChainChanged, Accounts: accounts, ChainID: chainID})
	}
}

func (r *RemoteSigner) Close() error {
	select {
	case <-r.done:
		return nil
	default:
		close(r.done)
	}
	r.scope.Close()
	r.client.Close()
	return nil
}

// providerErr keeps structured codes reported by the signer.
func providerErr(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}
