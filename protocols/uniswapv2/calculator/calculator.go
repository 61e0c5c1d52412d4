package calculator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// BasisPointDivisor represents 100% in basis points.
const BasisPointDivisor = 10000

var (
	basisPointDivisor = uint256.NewInt(BasisPointDivisor)

	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrOverflow is returned when an intermediate or final value exceeds 256 bits.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
	// ErrInsufficientLiquidity is returned when an amountOut is requested that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrFeeOutOfRange is returned for basis-point values above 10000.
	ErrFeeOutOfRange = errors.New("basis points above 10000")
)

func checkAmounts(amounts ...*uint256.Int) error {
	for _, a := range amounts {
		if a == nil {
			return ErrNilAmount
		}
	}
	return nil
}

func feeMultiplier(feeBps uint16) (*uint256.Int, error) {
	if feeBps > BasisPointDivisor {
		return nil, fmt.Errorf("%w: %d", ErrFeeOutOfRange, feeBps)
	}
	return uint256.NewInt(uint64(BasisPointDivisor - feeBps)), nil
}

// GetAmountOut prices an exact-input swap against a constant-product pool
// that keeps its fee in reserves:
//
//	amountInWithFee = amountIn * (10000 - feeBps)
//	amountOut       = amountInWithFee * reserveOut / (reserveIn * 10000 + amountInWithFee)
//
// The division floors. Every intermediate is overflow-checked; the product
// amountInWithFee * reserveOut is carried at 512 bits.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if err := checkAmounts(amountIn, reserveIn, reserveOut); err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return new(uint256.Int), nil
	}

	multiplier, err := feeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}
	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, multiplier)
	if overflow {
		return nil, fmt.Errorf("%w: amountIn * (10000 - fee)", ErrOverflow)
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, basisPointDivisor)
	if overflow {
		return nil, fmt.Errorf("%w: reserveIn * 10000", ErrOverflow)
	}
	if _, overflow = denominator.AddOverflow(denominator, amountInWithFee); overflow {
		return nil, fmt.Errorf("%w: swap denominator", ErrOverflow)
	}
	if denominator.IsZero() {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	amountOut, overflow := new(uint256.Int).MulDivOverflow(amountInWithFee, reserveOut, denominator)
	if overflow {
		return nil, fmt.Errorf("%w: amountOut", ErrOverflow)
	}
	return amountOut, nil
}

// GetAmountIn calculates the smallest input that yields at least amountOut.
//
//	amountIn = reserveIn * amountOut * 10000 / ((reserveOut - amountOut) * (10000 - feeBps)) + 1
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if err := checkAmounts(amountOut, reserveIn, reserveOut); err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}

	multiplier, err := feeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}
	scaledOut, overflow := new(uint256.Int).MulOverflow(amountOut, basisPointDivisor)
	if overflow {
		return nil, fmt.Errorf("%w: amountOut * 10000", ErrOverflow)
	}
	denominator, overflow := new(uint256.Int).MulOverflow(new(uint256.Int).Sub(reserveOut, amountOut), multiplier)
	if overflow {
		return nil, fmt.Errorf("%w: input denominator", ErrOverflow)
	}
	if denominator.IsZero() {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	amountIn, overflow := new(uint256.Int).MulDivOverflow(reserveIn, scaledOut, denominator)
	if overflow {
		return nil, fmt.Errorf("%w: amountIn", ErrOverflow)
	}
	if _, overflow = amountIn.AddOverflow(amountIn, uint256.NewInt(1)); overflow {
		return nil, fmt.Errorf("%w: amountIn", ErrOverflow)
	}
	return amountIn, nil
}

// SimulateSwap prices a swap and returns the reserves the pool would hold
// afterwards. The inputs are never mutated.
func SimulateSwap(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (amountOut, newReserveIn, newReserveOut *uint256.Int, err error) {
	amountOut, err = GetAmountOut(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		return nil, nil, nil, err
	}
	if !amountOut.Lt(reserveOut) {
		return nil, nil, nil, fmt.Errorf("%w: amountOut %s drains reserve %s", ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}
	newReserveIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, nil, nil, fmt.Errorf("%w: reserveIn + amountIn", ErrOverflow)
	}
	newReserveOut = new(uint256.Int).Sub(reserveOut, amountOut)
	return amountOut, newReserveIn, newReserveOut, nil
}

// FloorSqrt returns floor(sqrt(x)).
func FloorSqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

// InitialShares returns floorSqrt(amountA * amountB), the share supply of a
// pool's first deposit.
func InitialShares(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	if err := checkAmounts(amountA, amountB); err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(amountA, amountB)
	if overflow {
		return nil, fmt.Errorf("%w: amountA * amountB", ErrOverflow)
	}
	return FloorSqrt(product), nil
}

// MintShares returns the shares owed for a proportional deposit into a pool
// that already has a share supply:
//
//	min(amountA * totalShares / reserveA, amountB * totalShares / reserveB)
//
// Both divisions floor, so an unbalanced deposit is credited only for its
// smaller side and any rounding favours existing holders.
func MintShares(amountA, amountB, reserveA, reserveB, totalShares *uint256.Int) (*uint256.Int, error) {
	if err := checkAmounts(amountA, amountB, reserveA, reserveB, totalShares); err != nil {
		return nil, err
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, fmt.Errorf("%w: share supply %s backed by an empty reserve", ErrInvalidState, totalShares.Dec())
	}
	sharesA, overflow := new(uint256.Int).MulDivOverflow(amountA, totalShares, reserveA)
	if overflow {
		return nil, fmt.Errorf("%w: shares for amountA", ErrOverflow)
	}
	sharesB, overflow := new(uint256.Int).MulDivOverflow(amountB, totalShares, reserveB)
	if overflow {
		return nil, fmt.Errorf("%w: shares for amountB", ErrOverflow)
	}
	if sharesA.Lt(sharesB) {
		return sharesA, nil
	}
	return sharesB, nil
}

// RedeemShares returns the floor of each reserve's proportional claim for
// shares out of totalShares.
func RedeemShares(shares, reserveA, reserveB, totalShares *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	if err := checkAmounts(shares, reserveA, reserveB, totalShares); err != nil {
		return nil, nil, err
	}
	if totalShares.IsZero() {
		return nil, nil, fmt.Errorf("%w: no shares outstanding", ErrInvalidState)
	}
	if totalShares.Lt(shares) {
		return nil, nil, fmt.Errorf("%w: redeeming %s of %s shares", ErrInvalidState, shares.Dec(), totalShares.Dec())
	}
	// shares <= totalShares keeps both results within their reserve.
	amountA, _ = new(uint256.Int).MulDivOverflow(shares, reserveA, totalShares)
	amountB, _ = new(uint256.Int).MulDivOverflow(shares, reserveB, totalShares)
	return amountA, amountB, nil
}

// FeeAmount returns floor(amount * bps / 10000).
func FeeAmount(amount *uint256.Int, bps uint16) (*uint256.Int, error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	if bps > BasisPointDivisor {
		return nil, fmt.Errorf("%w: %d", ErrFeeOutOfRange, bps)
	}
	fee, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(uint64(bps)), basisPointDivisor)
	return fee, nil
}

// ProtocolFee returns the part of a swap's fee owed to the protocol:
// floor(floor(amountIn * feeBps / 10000) * portionBps / 10000).
func ProtocolFee(amountIn *uint256.Int, feeBps, portionBps uint16) (*uint256.Int, error) {
	fee, err := FeeAmount(amountIn, feeBps)
	if err != nil {
		return nil, err
	}
	return FeeAmount(fee, portionBps)
}

// Product returns a * b at full precision.
func Product(a, b *uint256.Int) *big.Int {
	return new(big.Int).Mul(a.ToBig(), b.ToBig())
}
