package contract

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"blockcoop/loans"
	"blockcoop/role"
)

// caller returns the connected account that will sign the next transaction.
func (c *Client) caller(ctx context.Context) (common.Address, error) {
	if c.sessions == nil || c.sessions.Provider() == nil {
		return common.Address{}, ErrWalletUnavailable
	}
	sess, err := c.sessions.Ensure(ctx)
	if err != nil {
		return common.Address{}, Classify(err)
	}
	return sess.Account, nil
}

// requireRole resolves the caller's role and fails with ErrUnauthorized unless it
// is one of allowed.
func (c *Client) requireRole(ctx context.Context, action string, allowed ...role.Role) (common.Address, error) {
	account, err := c.caller(ctx)
	if err != nil {
		return common.Address{}, err
	}
	got := c.roles.Resolve(ctx, account)
	for _, r := range allowed {
		if got == r {
			return account, nil
		}
	}
	c.logger.Info("action refused before submission",
		slog.String("action", action),
		slog.String("account", account.Hex()),
		slog.String("role", got.String()))
	return common.Address{}, fmt.Errorf("%w: %s requires %v, account %s is %s", ErrUnauthorized, action, allowed, account.Hex(), got)
}

func (c *Client) requireWhitelisted(ctx context.Context, token common.Address) error {
	status, err := c.WhitelistStatus(ctx, token)
	if err != nil {
		return err
	}
	if !status.IsWhitelisted {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, token.Hex())
	}
	return nil
}

// ensureAllowance checks the caller's balance and, when the allowance granted to
// the contract is short, submits a single approval and waits for it. The primary
// action must not be sent when this returns an error.
func (c *Client) ensureAllowance(ctx context.Context, token, owner common.Address, amount *big.Int, opts ...WaitOption) error {
	balance, err := c.BalanceOf(ctx, token, owner)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s below %s", ErrInsufficientBalance, balance, amount)
	}
	allowance, err := c.Allowance(ctx, token, owner, c.cfg.Address)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	c.logger.Info("approval required",
		slog.String("token", token.Hex()),
		slog.String("allowance", allowance.String()),
		slog.String("amount", amount.String()))
	ptx, err := c.Approve(ctx, token, amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientAllowance, err)
	}
	if _, err := ptx.Wait(ctx, opts...); err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientAllowance, err)
	}
	return nil
}

func (c *Client) submit(ctx context.Context, method string, args ...any) (*PendingTx, error) {
	parsed := BlockCoopABI()
	return c.transact(ctx, &parsed, c.cfg.Address, method, args...)
}

// AddFundManager grants the fund manager role. Owner only.
func (c *Client) AddFundManager(ctx context.Context, manager common.Address) (*PendingTx, error) {
	if err := requireAddress("fund manager", manager); err != nil {
		return nil, err
	}
	if _, err := c.requireRole(ctx, "addFundManager", role.Owner); err != nil {
		return nil, err
	}
	return c.submit(ctx, "addFundManager", manager)
}

// RemoveFundManager revokes the fund manager role. Owner only.
func (c *Client) RemoveFundManager(ctx context.Context, manager common.Address) (*PendingTx, error) {
	if err := requireAddress("fund manager", manager); err != nil {
		return nil, err
	}
	if _, err := c.requireRole(ctx, "removeFundManager", role.Owner); err != nil {
		return nil, err
	}
	return c.submit(ctx, "removeFundManager", manager)
}

// WhitelistToken accepts token as collateral priced by priceFeed.
func (c *Client) WhitelistToken(ctx context.Context, token, priceFeed common.Address) (*PendingTx, error) {
	if err := requireAddress("token", token); err != nil {
		return nil, err
	}
	if err := requireAddress("price feed", priceFeed); err != nil {
		return nil, err
	}
	if _, err := c.requireRole(ctx, "whitelistToken", role.Owner, role.FundManager); err != nil {
		return nil, err
	}
	status, err := c.WhitelistStatus(ctx, token)
	if err != nil {
		return nil, err
	}
	if status.IsWhitelisted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyWhitelisted, token.Hex())
	}
	return c.submit(ctx, "whitelistToken", token, priceFeed)
}

// UnWhitelistToken removes token from the whitelist.
func (c *Client) UnWhitelistToken(ctx context.Context, token common.Address) (*PendingTx, error) {
	if err := requireAddress("token", token); err != nil {
		return nil, err
	}
	if _, err := c.requireRole(ctx, "unWhitelistToken", role.Owner, role.FundManager); err != nil {
		return nil, err
	}
	if err := c.requireWhitelisted(ctx, token); err != nil {
		return nil, err
	}
	return c.submit(ctx, "unWhitelistToken", token)
}

// UpdatePriceFeed points a whitelisted token at a new price feed.
func (c *Client) UpdatePriceFeed(ctx context.Context, token, priceFeed common.Address) (*PendingTx, error) {
	if err := requireAddress("token", token); err != nil {
		return nil, err
	}
	if err := requireAddress("price feed", priceFeed); err != nil {
		return nil, err
	}
	if _, err := c.requireRole(ctx, "updatePriceFeed", role.Owner, role.FundManager); err != nil {
		return nil, err
	}
	if err := c.requireWhitelisted(ctx, token); err != nil {
		return nil, err
	}
	return c.submit(ctx, "updatePriceFeed", token, priceFeed)
}

// UpdateStalePriceThreshold sets the maximum accepted price age in seconds.
func (c *Client) UpdateStalePriceThreshold(ctx context.Context, seconds uint64) (*PendingTx, error) {
	if seconds == 0 {
		return nil, fmt.Errorf("%w: threshold must be positive", ErrInvalidArgument)
	}
	if _, err := c.requireRole(ctx, "updateStalePriceThreshold", role.Owner); err != nil {
		return nil, err
	}
	return c.submit(ctx, "updateStalePriceThreshold", new(big.Int).SetUint64(seconds))
}

// Pause halts deposits, withdrawals and loans.
func (c *Client) Pause(ctx context.Context) (*PendingTx, error) {
	if _, err := c.requireRole(ctx, "pause", role.Owner); err != nil {
		return nil, err
	}
	return c.submit(ctx, "pause")
}

// Unpause resumes a paused contract.
func (c *Client) Unpause(ctx context.Context) (*PendingTx, error) {
	if _, err := c.requireRole(ctx, "unpause", role.Owner); err != nil {
		return nil, err
	}
	return c.submit(ctx, "unpause")
}

// Deposit moves amount of a whitelisted token into the contract, approving it first
// when needed. opts apply to the approval wait.
func (c *Client) Deposit(ctx context.Context, token common.Address, amount *big.Int, opts ...WaitOption) (*PendingTx, error) {
	if err := requireAddress("token", token); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	account, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.requireWhitelisted(ctx, token); err != nil {
		return nil, err
	}
	if err := c.ensureAllowance(ctx, token, account, amount, opts...); err != nil {
		return nil, err
	}
	return c.submit(ctx, "deposit", token, amount)
}

// Withdraw returns amount of a deposited token to the caller.
func (c *Client) Withdraw(ctx context.Context, token common.Address, amount *big.Int) (*PendingTx, error) {
	if err := requireAddress("token", token); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	account, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.requireWhitelisted(ctx, token); err != nil {
		return nil, err
	}
	deposit, err := c.UserDeposit(ctx, account, token)
	if err != nil {
		return nil, err
	}
	if deposit.Amount == nil || deposit.Amount.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: deposited %s below %s", ErrInsufficientBalance, deposit.Amount, amount)
	}
	return c.submit(ctx, "withdraw", token, amount)
}

// Borrow opens a loan of borrowAmount lending tokens against deposited collateral.
func (c *Client) Borrow(ctx context.Context, collateral common.Address, collateralAmount, borrowAmount *big.Int) (*PendingTx, error) {
	if err := requireAddress("collateral token", collateral); err != nil {
		return nil, err
	}
	if err := requirePositive("collateral amount", collateralAmount); err != nil {
		return nil, err
	}
	if err := requirePositive("borrow amount", borrowAmount); err != nil {
		return nil, err
	}
	account, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.requireWhitelisted(ctx, collateral); err != nil {
		return nil, err
	}
	deposit, err := c.UserDeposit(ctx, account, collateral)
	if err != nil {
		return nil, err
	}
	if deposit.Amount == nil || deposit.Amount.Cmp(collateralAmount) < 0 {
		return nil, fmt.Errorf("%w: deposited collateral %s below %s", ErrInsufficientBalance, deposit.Amount, collateralAmount)
	}
	pool, err := c.LendingPoolBalance(ctx)
	if err != nil {
		return nil, err
	}
	if pool.Cmp(borrowAmount) < 0 {
		return nil, fmt.Errorf("%w: lending pool holds %s, requested %s", ErrInvalidArgument, pool, borrowAmount)
	}
	return c.submit(ctx, "borrow", collateral, collateralAmount, borrowAmount)
}

// Repay pays amount of lending tokens toward loan index of the caller. An amount
// above the estimated total owed is capped at that total before approval.
func (c *Client) Repay(ctx context.Context, index uint64, amount *big.Int, opts ...WaitOption) (*PendingTx, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	account, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	loan, err := c.UserLoan(ctx, account, index)
	if err != nil {
		return nil, err
	}
	if !loan.Active {
		return nil, &RevertError{Reason: "loan not active"}
	}
	terms := loans.ResolveTerms(ctx, c, c.logger)
	estimate, err := loans.EstimateAt(loan, terms, uint64(c.now().Unix()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if amount.Cmp(estimate.TotalOwed) > 0 {
		c.logger.Info("capping repayment at estimated total owed",
			slog.Uint64("loan", index),
			slog.String("requested", amount.String()),
			slog.String("total_owed", estimate.TotalOwed.String()))
		amount = new(big.Int).Set(estimate.TotalOwed)
	}
	lending, err := c.LendingToken(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.ensureAllowance(ctx, lending, account, amount, opts...); err != nil {
		return nil, err
	}
	return c.submit(ctx, "repay", new(big.Int).SetUint64(index), amount)
}

// FundLendingPool adds amount of lending tokens to the pool. Owner only.
func (c *Client) FundLendingPool(ctx context.Context, amount *big.Int, opts ...WaitOption) (*PendingTx, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	account, err := c.requireRole(ctx, "fundLendingPool", role.Owner)
	if err != nil {
		return nil, err
	}
	lending, err := c.LendingToken(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.ensureAllowance(ctx, lending, account, amount, opts...); err != nil {
		return nil, err
	}
	return c.submit(ctx, "fundLendingPool", amount)
}
