// Package loans estimates interest on BlockCoop loans and builds the borrower's
// loan portfolio. The contract remains the source of truth; estimates here only
// drive display and client-side repayment checks.
package loans

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// DefaultRateBps is the contract's INTEREST_RATE (5% per year).
	DefaultRateBps = 500
	// DefaultSecondsPerYear is the contract's SECONDS_PER_YEAR.
	DefaultSecondsPerYear = 365 * 24 * 60 * 60

	bpsDenominator = 10_000
)

var ErrOverflow = errors.New("loans: interest computation overflows 256 bits")

// Loan mirrors the userLoans(address, uint256) record. AccruedInterest is carried
// as reported but callers should use Estimate for amounts owed.
type Loan struct {
	Borrower         common.Address
	Index            uint64
	CollateralToken  common.Address
	CollateralAmount *big.Int
	BorrowedAmount   *big.Int
	AccruedInterest  *big.Int
	StartTimestamp   uint64
	Active           bool
}

// Interest returns principal * rateBps * elapsed / (10000 * secondsPerYear),
// truncated toward zero.
func Interest(principal *big.Int, rateBps, elapsed, secondsPerYear uint64) (*big.Int, error) {
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || elapsed == 0 {
		return new(big.Int), nil
	}
	if secondsPerYear == 0 {
		secondsPerYear = DefaultSecondsPerYear
	}
	p, overflow := uint256.FromBig(principal)
	if overflow {
		return nil, ErrOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(rateBps), uint256.NewInt(elapsed))
	if overflow {
		return nil, ErrOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(bpsDenominator), uint256.NewInt(secondsPerYear))
	if overflow {
		return nil, ErrOverflow
	}
	result, overflow := new(uint256.Int).MulDivOverflow(p, numerator, denominator)
	if overflow {
		return nil, ErrOverflow
	}
	return result.ToBig(), nil
}

// Terms are the contract constants used for estimates.
type Terms struct {
	RateBps        uint64
	SecondsPerYear uint64
}

// DefaultTerms mirrors the deployed contract constants.
func DefaultTerms() Terms {
	return Terms{RateBps: DefaultRateBps, SecondsPerYear: DefaultSecondsPerYear}
}

// Estimate is the client-side view of what a loan currently owes.
type Estimate struct {
	Elapsed   uint64
	Interest  *big.Int
	TotalOwed *big.Int
}

// EstimateAt computes the interest accrued on loan at unix time now. A start time in
// the future counts as zero elapsed seconds.
func EstimateAt(loan Loan, terms Terms, now uint64) (Estimate, error) {
	principal := loan.BorrowedAmount
	if principal == nil {
		principal = new(big.Int)
	}
	var elapsed uint64
	if now > loan.StartTimestamp {
		elapsed = now - loan.StartTimestamp
	}
	interest, err := Interest(principal, terms.RateBps, elapsed, terms.SecondsPerYear)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		Elapsed:   elapsed,
		Interest:  interest,
		TotalOwed: new(big.Int).Add(principal, interest),
	}, nil
}
