package asset

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrSameAsset is returned when both sides of a pair name the same asset.
	ErrSameAsset = errors.New("pair assets must differ")
	// ErrZeroAsset is returned when either side of a pair is the zero address.
	ErrZeroAsset = errors.New("pair asset is the zero address")
)

// Less reports whether a orders strictly before b. Assets are ordered by their
// raw 20-byte big-endian value.
func Less(a, b common.Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// IsZero reports whether addr is the null identifier.
func IsZero(addr common.Address) bool {
	return addr == (common.Address{})
}

// Pair is an ordered asset pair with Low < High.
type Pair struct {
	Low  common.Address `json:"low"`
	High common.Address `json:"high"`
}

// NewPair canonicalizes (a, b) into a Pair. The result is independent of
// argument order.
func NewPair(a, b common.Address) (Pair, error) {
	if a == b {
		return Pair{}, ErrSameAsset
	}
	if IsZero(a) || IsZero(b) {
		return Pair{}, ErrZeroAsset
	}
	if Less(a, b) {
		return Pair{Low: a, High: b}, nil
	}
	return Pair{Low: b, High: a}, nil
}

// Contains reports whether asset is one side of the pair.
func (p Pair) Contains(asset common.Address) bool {
	return asset == p.Low || asset == p.High
}

// Other returns the opposite side of asset. It assumes Contains(asset).
func (p Pair) Other(asset common.Address) common.Address {
	if asset == p.Low {
		return p.High
	}
	return p.Low
}

// Key returns the content-addressed identity of the pair.
func (p Pair) Key() PoolKey {
	return KeyFromPair(p)
}

// Transferer is the atomic balance-transfer capability the core consumes.
// A failed Transfer must leave balances untouched.
type Transferer interface {
	BalanceOf(token, holder common.Address) *uint256.Int
	Transfer(token, from, to common.Address, amount *uint256.Int) error
}

// Journal exposes revision snapshots over a Transferer's balances.
type Journal interface {
	// Snapshot returns a revision identifier for the current balances.
	Snapshot() int
	// RevertToSnapshot discards every balance change made after revision id.
	RevertToSnapshot(id int)
}

// Ledger is a Transferer whose changes can be rolled back.
type Ledger interface {
	Transferer
	Journal
}
