package contract

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (c *Client) readToken(ctx context.Context, token common.Address, method string, args ...any) ([]any, error) {
	if err := requireAddress("token", token); err != nil {
		return nil, err
	}
	parsed := ERC20ABI()
	out, err := c.call(ctx, &parsed, token, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, unexpected(method, out)
	}
	return out, nil
}

// TokenName returns the ERC-20 name of token.
func (c *Client) TokenName(ctx context.Context, token common.Address) (string, error) {
	out, err := c.readToken(ctx, token, "name")
	if err != nil {
		return "", err
	}
	name, ok := out[0].(string)
	if !ok {
		return "", unexpected("name", out)
	}
	return name, nil
}

// TokenSymbol returns the ERC-20 symbol of token.
func (c *Client) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	out, err := c.readToken(ctx, token, "symbol")
	if err != nil {
		return "", err
	}
	symbol, ok := out[0].(string)
	if !ok {
		return "", unexpected("symbol", out)
	}
	return symbol, nil
}

// TokenDecimals returns the ERC-20 decimals of token.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.readToken(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, unexpected("decimals", out)
	}
	return decimals, nil
}

func (c *Client) readTokenUint(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	out, err := c.readToken(ctx, token, method, args...)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, unexpected(method, out)
	}
	return value, nil
}

// BalanceOf returns the token balance of owner.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.readTokenUint(ctx, token, "balanceOf", owner)
}

// Allowance returns how much spender may move on behalf of owner.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.readTokenUint(ctx, token, "allowance", owner, spender)
}

// Approve lets the BlockCoop contract spend amount of token from the session account.
func (c *Client) Approve(ctx context.Context, token common.Address, amount *big.Int) (*PendingTx, error) {
	if err := requireAddress("token", token); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, requirePositive("amount", amount)
	}
	parsed := ERC20ABI()
	return c.transact(ctx, &parsed, token, "approve", c.cfg.Address, amount)
}

// TransferToken sends amount of token from the session account to recipient.
func (c *Client) TransferToken(ctx context.Context, token, recipient common.Address, amount *big.Int) (*PendingTx, error) {
	if err := requireAddress("token", token); err != nil {
		return nil, err
	}
	if err := requireAddress("recipient", recipient); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	sess, err := c.ensure(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	balance, err := c.BalanceOf(ctx, token, sess.Account)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	parsed := ERC20ABI()
	return c.transact(ctx, &parsed, token, "transfer", recipient, amount)
}
