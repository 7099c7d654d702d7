package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PendingTx is a submitted transaction that has not been awaited yet.
type PendingTx struct {
	Hash   common.Hash
	Method string
	OpID   string
	From   common.Address
	To     common.Address

	data      []byte
	submitted time.Time
	client    *Client
}

type waitOptions struct {
	onSlow        func(*PendingTx)
	confirmations uint64
}

// WaitOption customises PendingTx.Wait.
type WaitOption func(*waitOptions)

// OnSlow registers a hook invoked once when confirmation takes longer than the
// configured slow threshold. Waiting continues afterwards.
func OnSlow(fn func(*PendingTx)) WaitOption {
	return func(o *waitOptions) { o.onSlow = fn }
}

// WithConfirmations overrides the configured confirmation depth.
func WithConfirmations(n uint64) WaitOption {
	return func(o *waitOptions) {
		if n > 0 {
			o.confirmations = n
		}
	}
}

// Wait polls for the receipt until it is mined at the required depth or ctx ends.
// A failed receipt yields a RevertError carrying the replayed reason when the
// node can provide one.
func (p *PendingTx) Wait(ctx context.Context, opts ...WaitOption) (*types.Receipt, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("contract: nil pending transaction")
	}
	c := p.client
	options := waitOptions{confirmations: c.cfg.Confirmations}
	for _, opt := range opts {
		opt(&options)
	}
	logger := c.logger.With(slog.String("op_id", p.OpID), slog.String("method", p.Method), slog.String("tx_hash", p.Hash.Hex()))

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var slow <-chan time.Time
	if c.cfg.SlowAfter > 0 {
		remaining := c.cfg.SlowAfter - c.now().Sub(p.submitted)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		slow = timer.C
	}

	for {
		receipt, err := p.poll(ctx, options.confirmations)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return p.finish(ctx, receipt, logger)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-slow:
			slow = nil
			c.metrics.RecordSlow(p.Method)
			logger.Warn("transaction confirmation taking longer than expected",
				slog.Duration("elapsed", c.now().Sub(p.submitted)))
			if options.onSlow != nil {
				options.onSlow(p)
			}
		case <-ticker.C:
		}
	}
}

// poll returns the receipt once it is buried under enough blocks, or nil when the
// caller should keep waiting.
func (p *PendingTx) poll(ctx context.Context, confirmations uint64) (*types.Receipt, error) {
	c := p.client
	receipt, err := c.backend.TransactionReceipt(ctx, p.Hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("receipt lookup failed", slog.String("tx_hash", p.Hash.Hex()), slog.Any("error", err))
		return nil, nil
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, nil
	}
	if confirmations <= 1 {
		return receipt, nil
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil || head == nil || head.Number == nil {
		return nil, nil
	}
	depth := new(big.Int).Sub(head.Number, receipt.BlockNumber)
	if depth.Sign() < 0 || depth.Uint64()+1 < confirmations {
		return nil, nil
	}
	return receipt, nil
}

func (p *PendingTx) finish(ctx context.Context, receipt *types.Receipt, logger *slog.Logger) (*types.Receipt, error) {
	c := p.client
	elapsed := c.now().Sub(p.submitted)
	if receipt.Status == types.ReceiptStatusSuccessful {
		c.metrics.ObserveConfirmation(p.Method, "success", elapsed)
		logger.Info("transaction confirmed",
			slog.Uint64("block", receipt.BlockNumber.Uint64()),
			slog.Uint64("gas_used", receipt.GasUsed))
		return receipt, nil
	}
	c.metrics.ObserveConfirmation(p.Method, "reverted", elapsed)
	revert := p.replay(ctx, receipt)
	logger.Warn("transaction reverted",
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
		slog.String("reason", revert.Reason))
	return receipt, revert
}

// replay re-executes the call at the receipt's block to recover the revert reason.
func (p *PendingTx) replay(ctx context.Context, receipt *types.Receipt) *RevertError {
	msg := ethereum.CallMsg{From: p.From, To: &p.To, Data: p.data}
	_, err := p.client.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		return &RevertError{}
	}
	var revert *RevertError
	if errors.As(Classify(err), &revert) {
		return revert
	}
	return &RevertError{Reason: fmt.Sprintf("status 0 (%v)", err)}
}
