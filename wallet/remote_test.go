package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

type fakeSigner struct {
	mu       sync.Mutex
	key      *ecdsa.PrivateKey
	accounts []common.Address
	chainID  uint64
	known    map[uint64]bool
	reject   bool
	polls    atomic.Int64
}

type fakeEthAPI struct{ s *fakeSigner }

func (a *fakeEthAPI) RequestAccounts() ([]common.Address, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if a.s.reject {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	}
	return a.s.accounts, nil
}

func (a *fakeEthAPI) Accounts() []common.Address {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.accounts
}

func (a *fakeEthAPI) ChainId() hexutil.Uint64 {
	a.s.polls.Add(1)
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return hexutil.Uint64(a.s.chainID)
}

func (a *fakeEthAPI) SignTransaction(args sendTxArgs) (hexutil.Bytes, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(args.Nonce),
		To:       args.To,
		Gas:      uint64(args.Gas),
		GasPrice: args.GasPrice.ToInt(),
		Value:    args.Value.ToInt(),
		Data:     args.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(args.ChainID.ToInt()), a.s.key)
	if err != nil {
		return nil, err
	}
	return signed.MarshalBinary()
}

type fakeWalletAPI struct{ s *fakeSigner }

func (a *fakeWalletAPI) SwitchEthereumChain(p switchChainParams) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if !a.s.known[uint64(p.ChainID)] {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	}
	a.s.chainID = uint64(p.ChainID)
	return nil
}

func (a *fakeWalletAPI) AddEthereumChain(p addChainParams) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.known[uint64(p.ChainID)] = true
	return nil
}

func newRemoteFixture(t *testing.T, poll time.Duration) (*RemoteSigner, *fakeSigner) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	fake := &fakeSigner{
		key:      key,
		accounts: []common.Address{ethcrypto.PubkeyToAddress(key.PublicKey)},
		chainID:  1,
		known:    map[uint64]bool{1: true},
	}
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &fakeEthAPI{s: fake}); err != nil {
		t.Fatalf("register eth: %v", err)
	}
	if err := server.RegisterName("wallet", &fakeWalletAPI{s: fake}); err != nil {
		t.Fatalf("register wallet: %v", err)
	}
	t.Cleanup(server.Stop)
	signer := NewRemoteSigner(rpc.DialInProc(server), poll)
	t.Cleanup(func() { signer.Close() })
	return signer, fake
}

func TestRemoteSignerSwitchUnknownChain(t *testing.T) {
	signer, _ := newRemoteFixture(t, time.Second)
	ctx := context.Background()

	err := signer.SwitchChain(ctx, 50002)
	if !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("expected unrecognized chain, got %v", err)
	}
	if err := signer.AddChain(ctx, ChainParams{ChainID: 50002, ChainName: "Pharos", RPCURLs: []string{"https://rpc"}}); err != nil {
		t.Fatalf("add chain: %v", err)
	}
	if err := signer.SwitchChain(ctx, 50002); err != nil {
		t.Fatalf("switch chain: %v", err)
	}
	id, err := signer.ChainID(ctx)
	if err != nil || id != 50002 {
		t.Fatalf("unexpected chain %d: %v", id, err)
	}
}

func TestRemoteSignerRejectedRequest(t *testing.T) {
	signer, fake := newRemoteFixture(t, time.Second)
	fake.reject = true
	_, err := signer.RequestAccounts(context.Background())
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected user rejection, got %v", err)
	}
}

func TestRemoteSignerSignTx(t *testing.T) {
	signer, fake := newRemoteFixture(t, time.Second)
	to := common.HexToAddress("0x0000000000000000000000000000000000000042")
	tx := types.NewTx(&types.LegacyTx{Nonce: 7, To: &to, Gas: 50000, GasPrice: big.NewInt(2), Value: big.NewInt(0), Data: []byte{0xde, 0xad}})
	chainID := big.NewInt(50002)

	signed, err := signer.SignTx(context.Background(), fake.accounts[0], tx, chainID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil || sender != fake.accounts[0] {
		t.Fatalf("unexpected sender %s: %v", sender.Hex(), err)
	}
	if signed.Nonce() != 7 || signed.Gas() != 50000 {
		t.Fatalf("signed transaction lost fields: nonce=%d gas=%d", signed.Nonce(), signed.Gas())
	}
}

func TestRemoteSignerPollsForChanges(t *testing.T) {
	signer, fake := newRemoteFixture(t, 10*time.Millisecond)
	notes := make(chan Notification, 4)
	sub := signer.SubscribeNotifications(notes)
	defer sub.Unsubscribe()

	deadline := time.Now().Add(2 * time.Second)
	for fake.polls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("poller never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// wait for the baseline to be recorded before changing state
	time.Sleep(20 * time.Millisecond)

	fake.mu.Lock()
	fake.accounts = nil
	fake.mu.Unlock()

	select {
	case n := <-notes:
		if n.Kind != AccountsChanged || len(n.Accounts) != 0 {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("missing accountsChanged notification")
	}
}
