package contract

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"blockcoop/loans"
)

// TokenStatus is the whiteListedTokens(address) record.
type TokenStatus struct {
	IsWhitelisted bool
	PriceFeed     common.Address
}

// TokenInfo describes a whitelisted token as reported by getTokensInfo.
type TokenInfo struct {
	Address   common.Address
	Name      string
	Symbol    string
	Decimals  uint8
	PriceFeed common.Address
	PriceRaw  *big.Int
	PriceUSD  decimal.Decimal
}

// Deposit is the userDeposits(owner, token) record.
type Deposit struct {
	Owner     common.Address
	Token     common.Address
	Amount    *big.Int
	Timestamp uint64
}

// DepositPosition is a non-empty deposit together with the token's current price.
// Price.Raw is nil when the oracle could not be read, for instance a stale feed.
type DepositPosition struct {
	Deposit
	Price Price
}

// Price is a getTokenPrice result scaled with the configured exponent.
type Price struct {
	Token common.Address
	Raw   *big.Int
	USD   decimal.Decimal
}

func (c *Client) read(ctx context.Context, method string, args ...any) ([]any, error) {
	parsed := BlockCoopABI()
	return c.call(ctx, &parsed, c.cfg.Address, method, args...)
}

func unexpected(method string, out []any) error {
	return fmt.Errorf("%w: %s returned %d values of unexpected type", ErrReadFailure, method, len(out))
}

func (c *Client) readAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	out, err := c.read(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, unexpected(method, out)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, unexpected(method, out)
	}
	return addr, nil
}

func (c *Client) readUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.read(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, unexpected(method, out)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, unexpected(method, out)
	}
	return value, nil
}

func (c *Client) readBool(ctx context.Context, method string, args ...any) (bool, error) {
	out, err := c.read(ctx, method, args...)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, unexpected(method, out)
	}
	value, ok := out[0].(bool)
	if !ok {
		return false, unexpected(method, out)
	}
	return value, nil
}

func (c *Client) readAddresses(ctx context.Context, method string, args ...any) ([]common.Address, error) {
	out, err := c.read(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, unexpected(method, out)
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, unexpected(method, out)
	}
	return addrs, nil
}

// Owner returns the contract owner.
func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	return c.readAddress(ctx, "owner")
}

// ActiveFundManagers returns the fund managers in contract order.
func (c *Client) ActiveFundManagers(ctx context.Context) ([]common.Address, error) {
	return c.readAddresses(ctx, "getAllActiveFundManagers")
}

// WhitelistStatus returns the whitelist record of token.
func (c *Client) WhitelistStatus(ctx context.Context, token common.Address) (TokenStatus, error) {
	var status TokenStatus
	out, err := c.read(ctx, "whiteListedTokens", token)
	if err != nil {
		return status, err
	}
	parsed := BlockCoopABI()
	if err := parsed.Methods["whiteListedTokens"].Outputs.Copy(&status, out); err != nil {
		return status, fmt.Errorf("%w: decode whiteListedTokens: %w", ErrReadFailure, err)
	}
	return status, nil
}

// WhitelistedTokenCount returns the number of whitelisted tokens.
func (c *Client) WhitelistedTokenCount(ctx context.Context) (uint64, error) {
	count, err := c.readUint(ctx, "getWhitelistedTokenCount")
	if err != nil {
		return 0, err
	}
	if !count.IsUint64() {
		return 0, fmt.Errorf("%w: token count %s out of range", ErrReadFailure, count)
	}
	return count.Uint64(), nil
}

type tokensInfoResult struct {
	Tokens   []common.Address
	Names    []string
	Symbols  []string
	Decimals []uint8
	Prices   []*big.Int
}

// TokensInfo returns one page of whitelisted tokens. Price feeds are not part of
// the page; use WhitelistedTokens for the full view.
func (c *Client) TokensInfo(ctx context.Context, offset, limit uint64) ([]TokenInfo, error) {
	out, err := c.read(ctx, "getTokensInfo", new(big.Int).SetUint64(offset), new(big.Int).SetUint64(limit))
	if err != nil {
		return nil, err
	}
	var res tokensInfoResult
	parsed := BlockCoopABI()
	if err := parsed.Methods["getTokensInfo"].Outputs.Copy(&res, out); err != nil {
		return nil, fmt.Errorf("%w: decode getTokensInfo: %w", ErrReadFailure, err)
	}
	n := len(res.Tokens)
	if len(res.Names) != n || len(res.Symbols) != n || len(res.Decimals) != n || len(res.Prices) != n {
		return nil, fmt.Errorf("%w: getTokensInfo returned arrays of different lengths", ErrReadFailure)
	}
	infos := make([]TokenInfo, 0, n)
	for i := 0; i < n; i++ {
		infos = append(infos, TokenInfo{
			Address:  res.Tokens[i],
			Name:     res.Names[i],
			Symbol:   res.Symbols[i],
			Decimals: res.Decimals[i],
			PriceRaw: res.Prices[i],
			PriceUSD: c.scalePrice(res.Prices[i]),
		})
	}
	return infos, nil
}

// WhitelistedTokens reads the count, the full page and each token's price feed.
func (c *Client) WhitelistedTokens(ctx context.Context) ([]TokenInfo, error) {
	count, err := c.WhitelistedTokenCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	infos, err := c.TokensInfo(ctx, 0, count)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		status, err := c.WhitelistStatus(ctx, infos[i].Address)
		if err != nil {
			return nil, err
		}
		infos[i].PriceFeed = status.PriceFeed
	}
	return infos, nil
}

func (c *Client) scalePrice(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(c.cfg.PriceDecimals))
}

// TokenPrice returns the USD price of token.
func (c *Client) TokenPrice(ctx context.Context, token common.Address) (Price, error) {
	raw, err := c.readUint(ctx, "getTokenPrice", token)
	if err != nil {
		return Price{}, err
	}
	return Price{Token: token, Raw: raw, USD: c.scalePrice(raw)}, nil
}

// UserDeposit returns the deposit record of owner for token.
func (c *Client) UserDeposit(ctx context.Context, owner, token common.Address) (Deposit, error) {
	out, err := c.read(ctx, "userDeposits", owner, token)
	if err != nil {
		return Deposit{}, err
	}
	var res struct {
		Amount           *big.Int
		DepositTimestamp *big.Int
	}
	parsed := BlockCoopABI()
	if err := parsed.Methods["userDeposits"].Outputs.Copy(&res, out); err != nil {
		return Deposit{}, fmt.Errorf("%w: decode userDeposits: %w", ErrReadFailure, err)
	}
	d := Deposit{Owner: owner, Token: token, Amount: res.Amount}
	if res.DepositTimestamp != nil && res.DepositTimestamp.IsUint64() {
		d.Timestamp = res.DepositTimestamp.Uint64()
	}
	return d, nil
}

// UserDepositedTokens lists the tokens owner has deposited.
func (c *Client) UserDepositedTokens(ctx context.Context, owner common.Address) ([]common.Address, error) {
	return c.readAddresses(ctx, "getUserDepositedTokens", owner)
}

// HasUserDepositedToken reports whether owner ever deposited token.
func (c *Client) HasUserDepositedToken(ctx context.Context, owner, token common.Address) (bool, error) {
	return c.readBool(ctx, "hasUserDepositedToken", owner, token)
}

// UserDeposits lists owner's non-empty deposits in the order the contract records
// the tokens. A price that cannot be read leaves the position unpriced.
func (c *Client) UserDeposits(ctx context.Context, owner common.Address) ([]DepositPosition, error) {
	tokens, err := c.UserDepositedTokens(ctx, owner)
	if err != nil {
		return nil, err
	}
	positions := make([]DepositPosition, 0, len(tokens))
	for _, token := range tokens {
		d, err := c.UserDeposit(ctx, owner, token)
		if err != nil {
			return nil, err
		}
		if d.Amount == nil || d.Amount.Sign() == 0 {
			continue
		}
		pos := DepositPosition{Deposit: d, Price: Price{Token: token, USD: decimal.Zero}}
		if price, err := c.TokenPrice(ctx, token); err == nil {
			pos.Price = price
		} else {
			c.logger.Warn("deposit price unavailable", slog.String("token", token.Hex()), slog.Any("error", err))
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// UserTotalValueUSD returns the USD value of owner's deposits over one page of
// whitelisted tokens, scaled with the price exponent.
func (c *Client) UserTotalValueUSD(ctx context.Context, owner common.Address, offset, limit uint64) (decimal.Decimal, error) {
	raw, err := c.readUint(ctx, "getUserTotalValueUSD", owner, new(big.Int).SetUint64(offset), new(big.Int).SetUint64(limit))
	if err != nil {
		return decimal.Zero, err
	}
	return c.scalePrice(raw), nil
}

// LendingToken returns the token lent out by the pool. It is read on every call.
func (c *Client) LendingToken(ctx context.Context) (common.Address, error) {
	return c.readAddress(ctx, "lendingToken")
}

// LendingPoolBalance returns the pool's available lending token balance.
func (c *Client) LendingPoolBalance(ctx context.Context) (*big.Int, error) {
	return c.readUint(ctx, "lendingPoolBalance")
}

// InterestRate returns INTEREST_RATE in basis points.
func (c *Client) InterestRate(ctx context.Context) (*big.Int, error) {
	return c.readUint(ctx, "INTEREST_RATE")
}

// SecondsPerYear returns SECONDS_PER_YEAR.
func (c *Client) SecondsPerYear(ctx context.Context) (*big.Int, error) {
	return c.readUint(ctx, "SECONDS_PER_YEAR")
}

// UserLoanCount returns the number of loans ever opened by borrower.
func (c *Client) UserLoanCount(ctx context.Context, borrower common.Address) (uint64, error) {
	count, err := c.readUint(ctx, "userLoanCount", borrower)
	if err != nil {
		return 0, err
	}
	if !count.IsUint64() {
		return 0, fmt.Errorf("%w: loan count %s out of range", ErrReadFailure, count)
	}
	return count.Uint64(), nil
}

// UserLoan returns loan index of borrower.
func (c *Client) UserLoan(ctx context.Context, borrower common.Address, index uint64) (loans.Loan, error) {
	out, err := c.read(ctx, "userLoans", borrower, new(big.Int).SetUint64(index))
	if err != nil {
		return loans.Loan{}, err
	}
	var res struct {
		CollateralToken  common.Address
		CollateralAmount *big.Int
		BorrowedAmount   *big.Int
		AccruedInterest  *big.Int
		StartTimestamp   *big.Int
		Active           bool
	}
	parsed := BlockCoopABI()
	if err := parsed.Methods["userLoans"].Outputs.Copy(&res, out); err != nil {
		return loans.Loan{}, fmt.Errorf("%w: decode userLoans: %w", ErrReadFailure, err)
	}
	loan := loans.Loan{
		Borrower:         borrower,
		Index:            index,
		CollateralToken:  res.CollateralToken,
		CollateralAmount: res.CollateralAmount,
		BorrowedAmount:   res.BorrowedAmount,
		AccruedInterest:  res.AccruedInterest,
		Active:           res.Active,
	}
	if res.StartTimestamp != nil && res.StartTimestamp.IsUint64() {
		loan.StartTimestamp = res.StartTimestamp.Uint64()
	}
	return loan, nil
}

// UserLoans reads every loan of borrower, active or not, in index order.
func (c *Client) UserLoans(ctx context.Context, borrower common.Address) ([]loans.Loan, error) {
	count, err := c.UserLoanCount(ctx, borrower)
	if err != nil {
		return nil, err
	}
	out := make([]loans.Loan, 0, count)
	for i := uint64(0); i < count; i++ {
		loan, err := c.UserLoan(ctx, borrower, i)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, nil
}
