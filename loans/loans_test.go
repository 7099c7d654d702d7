package loans

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"blockcoop/tokens"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestInterestFivePercentForOneYear(t *testing.T) {
	got, err := Interest(ether(1000), DefaultRateBps, DefaultSecondsPerYear, DefaultSecondsPerYear)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(ether(50)), "got %s", got)
}

func TestInterestTruncates(t *testing.T) {
	// 1000 * 500 * 1 / (10000 * 31536000) rounds down to zero.
	got, err := Interest(big.NewInt(1000), DefaultRateBps, 1, DefaultSecondsPerYear)
	require.NoError(t, err)
	require.Zero(t, got.Sign())
}

func TestInterestEdgeCases(t *testing.T) {
	got, err := Interest(nil, DefaultRateBps, 10, DefaultSecondsPerYear)
	require.NoError(t, err)
	require.Zero(t, got.Sign())

	huge := new(big.Int).Lsh(big.NewInt(1), 300)
	_, err = Interest(huge, DefaultRateBps, 10, DefaultSecondsPerYear)
	require.True(t, errors.Is(err, ErrOverflow))
}

func TestEstimateAtFutureStart(t *testing.T) {
	loan := Loan{BorrowedAmount: ether(10), StartTimestamp: 2_000}
	est, err := EstimateAt(loan, DefaultTerms(), 1_000)
	require.NoError(t, err)
	require.Zero(t, est.Elapsed)
	require.Equal(t, 0, est.TotalOwed.Cmp(ether(10)))
}

type fakeReader struct {
	loans   []Loan
	lending common.Address
	rateErr error
}

func (f *fakeReader) InterestRate(context.Context) (*big.Int, error) {
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	return big.NewInt(1000), nil
}

func (f *fakeReader) SecondsPerYear(context.Context) (*big.Int, error) {
	return big.NewInt(DefaultSecondsPerYear), nil
}

func (f *fakeReader) UserLoans(context.Context, common.Address) ([]Loan, error) {
	return f.loans, nil
}

func (f *fakeReader) LendingToken(context.Context) (common.Address, error) {
	return f.lending, nil
}

type fakeDescriber map[common.Address]tokens.Metadata

func (f fakeDescriber) Describe(_ context.Context, token common.Address) (tokens.Metadata, error) {
	meta, ok := f[token]
	if !ok {
		return tokens.Metadata{}, errors.New("unknown token")
	}
	return meta, nil
}

func TestPortfolio(t *testing.T) {
	lending := common.HexToAddress("0xB1BF661cf9C19cb899400B0E62D8fc87AA3a22C6")
	collateral := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	user := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(DefaultSecondsPerYear * time.Second)

	reader := &fakeReader{
		lending: lending,
		loans: []Loan{
			{Index: 0, CollateralToken: collateral, CollateralAmount: big.NewInt(5_000_000), BorrowedAmount: ether(1000), StartTimestamp: uint64(start.Unix()), Active: true},
			{Index: 1, CollateralToken: collateral, CollateralAmount: big.NewInt(1), BorrowedAmount: ether(7), StartTimestamp: uint64(start.Unix()), Active: false},
		},
	}
	meta := fakeDescriber{
		lending:    {Address: lending, Symbol: "DLT", Decimals: 18},
		collateral: {Address: collateral, Symbol: "DUSD", Decimals: 6},
	}

	book := NewBook(reader, meta, nil)
	p, err := book.Portfolio(context.Background(), user, now)
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	require.Equal(t, uint64(1000), p.Terms.RateBps)

	pos := p.Positions[0]
	require.Equal(t, "5.0 DUSD", pos.Collateral.String())
	require.Equal(t, "100.0", pos.Interest.Formatted())
	require.Equal(t, "1100.0", pos.TotalOwed.Formatted())
	require.Equal(t, 1, p.Summary.Active)
	require.Equal(t, "1100.0 DLT", p.Summary.TotalOwed.String())
}

func TestResolveTermsFallsBack(t *testing.T) {
	terms := ResolveTerms(context.Background(), &fakeReader{rateErr: errors.New("no such method")}, nil)
	require.Equal(t, uint64(DefaultRateBps), terms.RateBps)
	require.Equal(t, uint64(DefaultSecondsPerYear), terms.SecondsPerYear)
}
