package loans

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"blockcoop/tokens"
)

// TermsReader reads the interest constants from the contract.
type TermsReader interface {
	InterestRate(ctx context.Context) (*big.Int, error)
	SecondsPerYear(ctx context.Context) (*big.Int, error)
}

// Reader is the contract state a Book needs.
type Reader interface {
	TermsReader
	UserLoans(ctx context.Context, user common.Address) ([]Loan, error)
	LendingToken(ctx context.Context) (common.Address, error)
}

// Describer resolves token metadata, typically a *tokens.Cache.
type Describer interface {
	Describe(ctx context.Context, token common.Address) (tokens.Metadata, error)
}

// ResolveTerms reads the contract constants, falling back to DefaultTerms for any
// value that cannot be read or does not fit in 64 bits.
func ResolveTerms(ctx context.Context, reader TermsReader, logger *slog.Logger) Terms {
	terms := DefaultTerms()
	if reader == nil {
		return terms
	}
	if rate, err := reader.InterestRate(ctx); err == nil && rate != nil && rate.IsUint64() {
		terms.RateBps = rate.Uint64()
	} else if logger != nil {
		logger.Warn("interest rate unavailable, using default", slog.Uint64("rate_bps", terms.RateBps), slog.Any("error", err))
	}
	if spy, err := reader.SecondsPerYear(ctx); err == nil && spy != nil && spy.IsUint64() && spy.Sign() > 0 {
		terms.SecondsPerYear = spy.Uint64()
	} else if logger != nil {
		logger.Warn("seconds per year unavailable, using default", slog.Any("error", err))
	}
	return terms
}

// Position is an active loan decorated for display.
type Position struct {
	Loan       Loan
	Collateral tokens.Amount
	Borrowed   tokens.Amount
	Interest   tokens.Amount
	TotalOwed  tokens.Amount
	Started    time.Time
}

// Summary totals the active loans of a borrower in lending token units.
type Summary struct {
	Active    int
	Borrowed  tokens.Amount
	Interest  tokens.Amount
	TotalOwed tokens.Amount
}

// Portfolio is the full loan view of one borrower.
type Portfolio struct {
	Borrower     common.Address
	LendingToken tokens.Metadata
	Terms        Terms
	Positions    []Position
	Summary      Summary
}

// Book assembles portfolios.
type Book struct {
	reader Reader
	meta   Describer
	logger *slog.Logger
}

// NewBook wires a Book. A nil logger uses slog.Default.
func NewBook(reader Reader, meta Describer, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	return &Book{reader: reader, meta: meta, logger: logger.With(slog.String("component", "loans"))}
}

// Portfolio reads every loan of user, keeps the active ones and estimates what
// each owes at now.
func (b *Book) Portfolio(ctx context.Context, user common.Address, now time.Time) (Portfolio, error) {
	all, err := b.reader.UserLoans(ctx, user)
	if err != nil {
		return Portfolio{}, err
	}
	lendingAddr, err := b.reader.LendingToken(ctx)
	if err != nil {
		return Portfolio{}, err
	}
	lending, err := b.meta.Describe(ctx, lendingAddr)
	if err != nil {
		return Portfolio{}, err
	}
	terms := ResolveTerms(ctx, b.reader, b.logger)

	out := Portfolio{Borrower: user, LendingToken: lending, Terms: terms}
	borrowed, interest, owed := new(big.Int), new(big.Int), new(big.Int)
	unix := uint64(now.Unix())
	for _, loan := range all {
		if !loan.Active {
			continue
		}
		collateral, err := b.meta.Describe(ctx, loan.CollateralToken)
		if err != nil {
			return Portfolio{}, fmt.Errorf("loans: collateral of loan %d: %w", loan.Index, err)
		}
		est, err := EstimateAt(loan, terms, unix)
		if err != nil {
			return Portfolio{}, fmt.Errorf("loans: estimate loan %d: %w", loan.Index, err)
		}
		out.Positions = append(out.Positions, Position{
			Loan:       loan,
			Collateral: amountOf(loan.CollateralAmount, collateral),
			Borrowed:   amountOf(loan.BorrowedAmount, lending),
			Interest:   amountOf(est.Interest, lending),
			TotalOwed:  amountOf(est.TotalOwed, lending),
			Started:    time.Unix(int64(loan.StartTimestamp), 0).UTC(),
		})
		if loan.BorrowedAmount != nil {
			borrowed.Add(borrowed, loan.BorrowedAmount)
		}
		interest.Add(interest, est.Interest)
		owed.Add(owed, est.TotalOwed)
	}
	out.Summary = Summary{
		Active:    len(out.Positions),
		Borrowed:  amountOf(borrowed, lending),
		Interest:  amountOf(interest, lending),
		TotalOwed: amountOf(owed, lending),
	}
	return out, nil
}

func amountOf(raw *big.Int, meta tokens.Metadata) tokens.Amount {
	if raw == nil {
		raw = new(big.Int)
	}
	return tokens.Amount{Raw: new(big.Int).Set(raw), Decimals: meta.Decimals, Symbol: meta.Symbol}
}
