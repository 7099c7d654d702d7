package tokens

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("tokens: invalid amount")
	ErrTooPrecise    = errors.New("tokens: amount has more fractional digits than the token supports")
)

// FormatUnits renders raw as a decimal string scaled by decimals. Whole values keep
// a single fractional zero, so 1_000_000 with 6 decimals is "1.0".
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		raw = new(big.Int)
	}
	out := decimal.NewFromBigInt(raw, -int32(decimals)).String()
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// ParseUnits converts user input such as "12.5" into base units. Negative values
// and inputs finer than the token's smallest unit are rejected.
func ParseUnits(input string, decimals uint8) (*big.Int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, input)
	}
	shifted := value.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q with %d decimals", ErrTooPrecise, input, decimals)
	}
	return shifted.BigInt(), nil
}

// Amount is a raw token quantity together with the metadata needed to show it.
type Amount struct {
	Raw      *big.Int
	Decimals uint8
	Symbol   string
}

// Formatted returns the scaled quantity without the symbol.
func (a Amount) Formatted() string {
	return FormatUnits(a.Raw, a.Decimals)
}

func (a Amount) String() string {
	if a.Symbol == "" {
		return a.Formatted()
	}
	return a.Formatted() + " " + a.Symbol
}

// Decimal exposes the scaled value for arithmetic such as USD conversion.
func (a Amount) Decimal() decimal.Decimal {
	raw := a.Raw
	if raw == nil {
		raw = new(big.Int)
	}
	return decimal.NewFromBigInt(raw, -int32(a.Decimals))
}
