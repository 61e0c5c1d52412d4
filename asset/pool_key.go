package asset

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolKey is the 32-byte identity of a pool.
//
// The key is keccak256(low ‖ high) over the canonical pair, so the same pair
// always resolves to the same key regardless of the order it was named in.
// The pool's account on the ledger is the key's trailing 20 bytes.
type PoolKey [32]byte

// KeyFromPair derives the key of a canonical pair.
func KeyFromPair(p Pair) PoolKey {
	return PoolKey(crypto.Keccak256Hash(p.Low.Bytes(), p.High.Bytes()))
}

// Bytes returns the raw underlying byte slice.
func (k PoolKey) Bytes() []byte {
	return k[:]
}

// Hash returns the key as a go-ethereum hash.
func (k PoolKey) Hash() common.Hash {
	return common.Hash(k)
}

// Address returns the ledger account owned by the pool.
func (k PoolKey) Address() common.Address {
	return common.BytesToAddress(k[12:])
}

// String returns the hex string representation of the key.
// Output: A standard hex string starting with "0x".
func (k PoolKey) String() string {
	return "0x" + hex.EncodeToString(k[:])
}

// MarshalJSON serializes the key as a hex string.
func (k PoolKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON parses a 0x-prefixed (or bare) 32-byte hex string.
func (k *PoolKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return err
	}
	if len(b) != len(k) {
		return errors.New("pool key must be 32 bytes")
	}
	copy(k[:], b)
	return nil
}
