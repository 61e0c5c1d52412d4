// Package ledger implements an in-memory, journaled multi-asset balance book.
//
// It plays the role of the fungible-asset transfer primitive for tests and
// the simulator. Every balance write is journaled so that a whole operation
// can be reverted to an earlier Snapshot.
package ledger

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-core/asset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the sender's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNilAmount is returned when a nil amount is passed.
	ErrNilAmount = errors.New("nil amount")
	// ErrInvalidSnapshot is returned by RevertToSnapshot for unknown revisions.
	ErrInvalidSnapshot = errors.New("invalid snapshot id")
	// ErrOverflow is returned when a credit would exceed 2^256-1.
	ErrOverflow = errors.New("balance overflow")
)

var _ asset.Ledger = (*Memory)(nil)

type balanceKey struct {
	token  common.Address
	holder common.Address
}

// journalEntry records the value a balance held before it was overwritten.
// A nil prev means the balance did not exist.
type journalEntry struct {
	key  balanceKey
	prev *uint256.Int
}

// Memory is a non-thread-safe ledger. The core runs one operation at a time,
// so no locking is done here.
type Memory struct {
	balances map[balanceKey]*uint256.Int
	entries  []journalEntry
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[balanceKey]*uint256.Int),
	}
}

// BalanceOf returns a copy of holder's balance of token.
func (m *Memory) BalanceOf(token, holder common.Address) *uint256.Int {
	if b, ok := m.balances[balanceKey{token, holder}]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// Mint credits amount of token to holder out of thin air. It is intended for
// seeding balances and is journaled like any other write.
func (m *Memory) Mint(token, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	key := balanceKey{token, to}
	next, overflow := new(uint256.Int).AddOverflow(m.balance(key), amount)
	if overflow {
		return fmt.Errorf("%w: minting %s of %s to %s", ErrOverflow, amount.Dec(), token.Hex(), to.Hex())
	}
	m.set(key, next)
	return nil
}

// Transfer moves amount of token from one holder to another. Either both
// balances change or neither does.
func (m *Memory) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	fromKey := balanceKey{token, from}
	toKey := balanceKey{token, to}

	fromBalance := m.balance(fromKey)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientFunds, from.Hex(), fromBalance.Dec(), token.Hex(), amount.Dec())
	}
	if amount.IsZero() || from == to {
		return nil
	}

	toBalance, overflow := new(uint256.Int).AddOverflow(m.balance(toKey), amount)
	if overflow {
		return fmt.Errorf("%w: crediting %s", ErrOverflow, to.Hex())
	}
	m.set(fromKey, new(uint256.Int).Sub(fromBalance, amount))
	m.set(toKey, toBalance)
	return nil
}

// Snapshot returns an identifier for the current revision.
func (m *Memory) Snapshot() int {
	return len(m.entries)
}

// RevertToSnapshot undoes every write made after revision id. It panics on an
// id that was never handed out, as that is a programming error in the caller.
func (m *Memory) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.entries) {
		panic(fmt.Errorf("%w: %d (journal length %d)", ErrInvalidSnapshot, id, len(m.entries)))
	}
	for i := len(m.entries) - 1; i >= id; i-- {
		e := m.entries[i]
		if e.prev == nil {
			delete(m.balances, e.key)
		} else {
			m.balances[e.key] = e.prev
		}
	}
	m.entries = m.entries[:id]
}

// Finalise drops the journal. Revisions handed out earlier become invalid.
func (m *Memory) Finalise() {
	m.entries = m.entries[:0]
}

func (m *Memory) balance(key balanceKey) *uint256.Int {
	if b, ok := m.balances[key]; ok {
		return b
	}
	return new(uint256.Int)
}

func (m *Memory) set(key balanceKey, value *uint256.Int) {
	prev := m.balances[key]
	m.entries = append(m.entries, journalEntry{key: key, prev: prev})
	m.balances[key] = value
}
