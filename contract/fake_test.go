package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"blockcoop/session"
	"blockcoop/wallet"
)

const testChainID = 1337

var (
	poolAddress  = common.HexToAddress("0x00000000000000000000000000000000000c0091")
	lendingAddr  = common.HexToAddress("0x000000000000000000000000000000000000d115")
	collateral   = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	priceFeed    = common.HexToAddress("0x0000000000000000000000000000000000000fee")
	someoneElse  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	errNoHandler = errors.New("no handler")
)

type handler func(to common.Address, args []any) ([]any, error)

// fakeChain answers eth_call by 4-byte selector and mines every sent transaction
// into a receipt immediately.
type fakeChain struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    map[string]int
	sent     []string
	txs      []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	failing  map[string][]byte
	hold     chan struct{}
	head     uint64
	baseFee  *big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		handlers: make(map[string]handler),
		calls:    make(map[string]int),
		receipts: make(map[common.Hash]*types.Receipt),
		failing:  make(map[string][]byte),
		head:     100,
	}
}

func (f *fakeChain) on(method string, h handler) { f.handlers[method] = h }

func (f *fakeChain) returns(method string, out ...any) {
	f.on(method, func(common.Address, []any) ([]any, error) { return out, nil })
}

func (f *fakeChain) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeChain) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func methodOf(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	pool := BlockCoopABI()
	if m, err := pool.MethodById(data[:4]); err == nil {
		return m, nil
	}
	token := ERC20ABI()
	return token.MethodById(data[:4])
}

type revertErr struct{ data []byte }

func (e *revertErr) Error() string          { return "execution reverted" }
func (e *revertErr) ErrorCode() int         { return 3 }
func (e *revertErr) ErrorData() interface{} { return hexutil.Encode(e.data) }

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	m, err := methodOf(msg.Data)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls[m.Name]++
	h := f.handlers[m.Name]
	data, failing := f.failing[m.Name]
	f.mu.Unlock()
	if block != nil && failing {
		return nil, &revertErr{data: data}
	}
	if h == nil {
		return nil, fmt.Errorf("%w for %s", errNoHandler, m.Name)
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := h(*msg.To, args)
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(out...)
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.txs)), nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(100_000_000), nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(f.head), BaseFee: f.baseFee}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m, err := methodOf(tx.Data())
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m.Name)
	f.txs = append(f.txs, tx)
	status := types.ReceiptStatusSuccessful
	if _, ok := f.failing[m.Name]; ok {
		status = types.ReceiptStatusFailed
	}
	f.head++
	f.receipts[tx.Hash()] = &types.Receipt{
		TxHash:      tx.Hash(),
		Status:      status,
		BlockNumber: new(big.Int).SetUint64(f.head),
		GasUsed:     21_000,
	}
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	hold := f.hold
	receipt := f.receipts[hash]
	f.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		default:
			return nil, ethereum.NotFound
		}
	}
	if receipt == nil {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeChain) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeChain) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

// keySigner signs with an in-memory key.
type keySigner struct {
	key    *ecdsa.PrivateKey
	reject map[string]bool
}

func (s *keySigner) address() common.Address { return crypto.PubkeyToAddress(s.key.PublicKey) }

func (s *keySigner) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{s.address()}, nil
}

func (s *keySigner) Accounts(context.Context) ([]common.Address, error) {
	return []common.Address{s.address()}, nil
}

func (s *keySigner) ChainID(context.Context) (uint64, error) { return testChainID, nil }

func (s *keySigner) SwitchChain(context.Context, uint64) error { return nil }

func (s *keySigner) AddChain(context.Context, wallet.ChainParams) error { return nil }

func (s *keySigner) SignTx(_ context.Context, _ common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if m, err := methodOf(tx.Data()); err == nil && s.reject[m.Name] {
		return nil, &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."}
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func (s *keySigner) SubscribeNotifications(chan<- wallet.Notification) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

func (s *keySigner) Close() error { return nil }

type staticSessions struct {
	signer *keySigner
}

func (s *staticSessions) Ensure(context.Context) (session.Session, error) {
	return session.Session{ChainID: testChainID, Account: s.signer.address(), Connected: true}, nil
}

func (s *staticSessions) Provider() wallet.Provider { return s.signer }

type harness struct {
	chain  *fakeChain
	signer *keySigner
	client *Client
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := &keySigner{key: key, reject: make(map[string]bool)}
	chain := newFakeChain()
	chain.returns("owner", someoneElse)
	chain.returns("getAllActiveFundManagers", []common.Address{})
	chain.returns("lendingToken", lendingAddr)
	cfg := Config{
		Address:       poolAddress,
		ChainID:       testChainID,
		PriceDecimals: 18,
		PollInterval:  2 * time.Millisecond,
	}
	client := New(chain, &staticSessions{signer: signer}, cfg, opts...)
	return &harness{chain: chain, signer: signer, client: client}
}

func (h *harness) asOwner() { h.chain.returns("owner", h.signer.address()) }

func (h *harness) asFundManager() {
	h.chain.returns("getAllActiveFundManagers", []common.Address{someoneElse, h.signer.address()})
}

func (h *harness) whitelist(tokens ...common.Address) {
	listed := make(map[common.Address]bool)
	for _, token := range tokens {
		listed[token] = true
	}
	h.chain.on("whiteListedTokens", func(_ common.Address, args []any) ([]any, error) {
		token := args[0].(common.Address)
		feed := common.Address{}
		if listed[token] {
			feed = priceFeed
		}
		return []any{listed[token], feed}, nil
	})
}

// erc20 installs balance and allowance handlers for the signer.
func (h *harness) erc20(balance, allowance *big.Int) {
	h.chain.returns("balanceOf", balance)
	h.chain.returns("allowance", allowance)
}

func revertReason(reason string) []byte {
	typ, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: typ}}.Pack(reason)
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
