// Package tokenregistry keeps symbol and decimals metadata for assets and
// converts between human-readable and base-unit amounts.
package tokenregistry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/defistate/defistate-amm-core/asset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxDecimals bounds Token.Decimals so that 10^decimals fits in 256 bits.
const MaxDecimals = 77

var (
	ErrUnknownToken   = errors.New("unknown token")
	ErrDuplicateToken = errors.New("duplicate token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidAmount  = errors.New("invalid amount")
)

// Registry provides indexed access to token metadata.
type Registry struct {
	byID      map[uint64]Token
	byAddress map[common.Address]Token
	bySymbol  map[string]Token
	all       []Token
}

func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[uint64]Token),
		byAddress: make(map[common.Address]Token),
		bySymbol:  make(map[string]Token),
	}
}

// Register adds t and assigns its ID. Symbols are matched case-insensitively.
func (r *Registry) Register(t Token) (Token, error) {
	if asset.IsZero(t.Address) {
		return Token{}, fmt.Errorf("%w: zero address", ErrInvalidToken)
	}
	if t.Symbol == "" {
		return Token{}, fmt.Errorf("%w: empty symbol", ErrInvalidToken)
	}
	if t.Decimals > MaxDecimals {
		return Token{}, fmt.Errorf("%w: %d decimals", ErrInvalidToken, t.Decimals)
	}
	if _, ok := r.byAddress[t.Address]; ok {
		return Token{}, fmt.Errorf("%w: %s", ErrDuplicateToken, t.Address.Hex())
	}
	symbol := strings.ToUpper(t.Symbol)
	if _, ok := r.bySymbol[symbol]; ok {
		return Token{}, fmt.Errorf("%w: %s", ErrDuplicateToken, t.Symbol)
	}

	t.ID = uint64(len(r.all))
	r.byID[t.ID] = t
	r.byAddress[t.Address] = t
	r.bySymbol[symbol] = t
	r.all = append(r.all, t)
	return t, nil
}

// GetByID retrieves a token by its registration index.
func (r *Registry) GetByID(id uint64) (Token, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// GetByAddress retrieves a token by its asset address.
func (r *Registry) GetByAddress(address common.Address) (Token, bool) {
	t, ok := r.byAddress[address]
	return t, ok
}

// GetBySymbol retrieves a token by symbol, ignoring case.
func (r *Registry) GetBySymbol(symbol string) (Token, bool) {
	t, ok := r.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// Resolve accepts either a registered symbol or a hex address.
func (r *Registry) Resolve(ref string) (Token, error) {
	if t, ok := r.GetBySymbol(ref); ok {
		return t, nil
	}
	if common.IsHexAddress(ref) {
		if t, ok := r.byAddress[common.HexToAddress(ref)]; ok {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, ref)
}

// All returns a copy of every token in registration order.
func (r *Registry) All() []Token {
	out := make([]Token, len(r.all))
	copy(out, r.all)
	return out
}

// ParseUnits converts a decimal string such as "1.5" into base units of t.
func (t Token) ParseUnits(s string) (*uint256.Int, error) {
	whole, frac, hasFrac := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" && (!hasFrac || frac == "") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > int(t.Decimals) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, t.Decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(t.Decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	return v, nil
}

// FormatUnits renders a base-unit amount of t as a decimal string without
// trailing zeros.
func (t Token) FormatUnits(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	digits := amount.Dec()
	if t.Decimals == 0 {
		return digits
	}
	d := int(t.Decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-d], strings.TrimRight(digits[len(digits)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
