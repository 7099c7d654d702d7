// Package contract is the single choke point for BlockCoop contract traffic. Reads
// are typed, rate limited, traced and metered; writes are sent with a fixed gas
// ceiling after the caller's role and balances have been checked, and return a
// PendingTx that callers await explicitly.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"blockcoop/config"
	"blockcoop/observability"
	telemetry "blockcoop/observability/otel"
	"blockcoop/role"
	"blockcoop/session"
	"blockcoop/wallet"
)

// Sessions supplies the wallet session used for reads and signing.
type Sessions interface {
	Ensure(ctx context.Context) (session.Session, error)
	Provider() wallet.Provider
}

// Config carries the deployment parameters of the client.
type Config struct {
	Address        common.Address
	ChainID        uint64
	GasLimit       uint64
	PriceDecimals  uint8
	Confirmations  uint64
	PollInterval   time.Duration
	SlowAfter      time.Duration
	ReadsPerSecond float64
	Burst          int
}

// ConfigFrom extracts the client configuration from the loaded file.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		Address:        common.HexToAddress(cfg.Contract.Address),
		ChainID:        cfg.Network.ChainID,
		GasLimit:       cfg.Contract.GasLimit,
		PriceDecimals:  cfg.Contract.PriceDecimals,
		Confirmations:  cfg.Contract.Confirmations,
		PollInterval:   cfg.Confirm.PollInterval.Duration,
		SlowAfter:      cfg.Confirm.SlowAfter.Duration,
		ReadsPerSecond: cfg.RPC.ReadsPerSecond,
		Burst:          cfg.RPC.Burst,
	}
}

// Client talks to one BlockCoop deployment and to arbitrary ERC-20 tokens.
type Client struct {
	backend  Backend
	sessions Sessions
	cfg      Config
	chainID  *big.Int
	limiter  *rate.Limiter
	roles    *role.Resolver
	metrics  *observability.ContractMetrics
	logger   *slog.Logger
	now      func() time.Time

	submitMu sync.Mutex
}

// Option customises a Client.
type Option func(*Client)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records calls in metrics.
func WithMetrics(metrics *observability.ContractMetrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithClock overrides the clock used for interest estimates and slow notices.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a client. sessions may be nil for read-only use without a wallet, in
// which case every write fails with ErrWalletUnavailable.
func New(backend Backend, sessions Sessions, cfg Config, opts ...Option) *Client {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = config.DefaultGasLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	limit := rate.Inf
	if cfg.ReadsPerSecond > 0 {
		limit = rate.Limit(cfg.ReadsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		backend:  backend,
		sessions: sessions,
		cfg:      cfg,
		chainID:  new(big.Int).SetUint64(cfg.ChainID),
		limiter:  rate.NewLimiter(limit, burst),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "contract"), slog.String("contract", cfg.Address.Hex()))
	c.roles = role.NewResolver(c, c.logger)
	return c
}

// Address returns the contract address.
func (c *Client) Address() common.Address { return c.cfg.Address }

// Backend exposes the RPC backend for log queries.
func (c *Client) Backend() Backend { return c.backend }

// Roles returns the resolver bound to this client.
func (c *Client) Roles() *role.Resolver { return c.roles }

// ensure returns the live session, or the zero session for read-only clients.
func (c *Client) ensure(ctx context.Context) (session.Session, error) {
	if c.sessions == nil {
		return session.Session{}, nil
	}
	return c.sessions.Ensure(ctx)
}

func (c *Client) throttle(ctx context.Context) error {
	if c.limiter.Allow() {
		return nil
	}
	c.metrics.RecordThrottle()
	return c.limiter.Wait(ctx)
}

// call performs an eth_call of method on target and returns the unpacked outputs.
func (c *Client) call(ctx context.Context, parsed *abi.ABI, target common.Address, method string, args ...any) (out []any, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "contract."+method,
		attribute.String("contract.address", target.Hex()),
		attribute.String("contract.kind", "read"))
	defer func() {
		telemetry.EndSpan(span, err)
		c.metrics.ObserveCall(method, Kind(err), time.Since(start))
	}()

	sess, err := c.ensure(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	if err = c.throttle(ctx); err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %w", ErrInvalidArgument, method, err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: sess.Account, To: &target, Data: data}, nil)
	if err != nil {
		classified := Classify(err)
		if errors.Is(classified, ErrContractReverted) {
			return nil, classified
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrReadFailure, method, err)
	}
	out, err = parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %w", ErrReadFailure, method, err)
	}
	return out, nil
}

// transact signs and submits method on target. Submissions from this client are
// serialized so nonces never collide.
func (c *Client) transact(ctx context.Context, parsed *abi.ABI, target common.Address, method string, args ...any) (ptx *PendingTx, err error) {
	opID := uuid.NewString()
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "contract."+method,
		attribute.String("contract.address", target.Hex()),
		attribute.String("contract.kind", "write"),
		attribute.String("operation.id", opID))
	logger := c.logger.With(slog.String("op_id", opID), slog.String("method", method))
	defer func() {
		telemetry.EndSpan(span, err)
		c.metrics.ObserveCall(method, Kind(err), time.Since(start))
		if err != nil {
			logger.Warn("transaction not submitted", slog.String("kind", Kind(err)), slog.Any("error", err))
		}
	}()

	if c.sessions == nil || c.sessions.Provider() == nil {
		return nil, ErrWalletUnavailable
	}
	sess, err := c.sessions.Ensure(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %w", ErrInvalidArgument, method, err)
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	tx, err := c.buildTx(ctx, sess.Account, target, data)
	if err != nil {
		return nil, err
	}
	signed, err := c.sessions.Provider().SignTx(ctx, sess.Account, tx, c.chainID)
	if err != nil {
		return nil, Classify(err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, Classify(err)
	}
	logger.Info("transaction submitted",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.String("from", sess.Account.Hex()),
		slog.Uint64("nonce", signed.Nonce()))
	return &PendingTx{
		Hash:      signed.Hash(),
		Method:    method,
		OpID:      opID,
		From:      sess.Account,
		To:        target,
		data:      data,
		submitted: c.now(),
		client:    c,
	}, nil
}

// buildTx assembles an unsigned transaction with the configured gas ceiling. Gas
// estimation is never used. Dynamic fees are used when the head carries a base fee.
func (c *Client) buildTx(ctx context.Context, from, to common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: pending nonce: %w", ErrReadFailure, err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: latest header: %w", ErrReadFailure, err)
	}
	if head != nil && head.BaseFee != nil {
		tip, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: gas tip: %w", ErrReadFailure, err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   c.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       c.cfg.GasLimit,
			To:        &to,
			Value:     new(big.Int),
			Data:      data,
		}), nil
	}
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %w", ErrReadFailure, err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      c.cfg.GasLimit,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	}), nil
}

func requireAddress(name string, addr common.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: %s must be a non-zero address", ErrInvalidArgument, name)
	}
	return nil
}

func requirePositive(name string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidArgument, name)
	}
	return nil
}

// ParseAddress validates a user supplied hex address.
func ParseAddress(name, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not a hex address", ErrInvalidArgument, name, raw)
	}
	addr := common.HexToAddress(trimmed)
	if err := requireAddress(name, addr); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}
