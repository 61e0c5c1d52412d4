package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMemory(t *testing.T) {
	t.Run("Mint And BalanceOf", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Mint(tokenA, alice, uint256.NewInt(100)))
		assert.Equal(t, uint64(100), m.BalanceOf(tokenA, alice).Uint64())
		assert.True(t, m.BalanceOf(tokenA, bob).IsZero())
	})

	t.Run("BalanceOf Returns Copy", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Mint(tokenA, alice, uint256.NewInt(100)))
		b := m.BalanceOf(tokenA, alice)
		b.AddUint64(b, 1)
		assert.Equal(t, uint64(100), m.BalanceOf(tokenA, alice).Uint64())
	})

	t.Run("Transfer", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Mint(tokenA, alice, uint256.NewInt(100)))
		require.NoError(t, m.Transfer(tokenA, alice, bob, uint256.NewInt(40)))
		assert.Equal(t, uint64(60), m.BalanceOf(tokenA, alice).Uint64())
		assert.Equal(t, uint64(40), m.BalanceOf(tokenA, bob).Uint64())
	})

	t.Run("Transfer Insufficient Funds Leaves Balances", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Mint(tokenA, alice, uint256.NewInt(10)))
		err := m.Transfer(tokenA, alice, bob, uint256.NewInt(11))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, uint64(10), m.BalanceOf(tokenA, alice).Uint64())
		assert.True(t, m.BalanceOf(tokenA, bob).IsZero())
	})

	t.Run("Self Transfer Is A No-op", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Mint(tokenA, alice, uint256.NewInt(10)))
		require.NoError(t, m.Transfer(tokenA, alice, alice, uint256.NewInt(10)))
		assert.Equal(t, uint64(10), m.BalanceOf(tokenA, alice).Uint64())
	})

	t.Run("Nil Amount", func(t *testing.T) {
		m := NewMemory()
		assert.ErrorIs(t, m.Transfer(tokenA, alice, bob, nil), ErrNilAmount)
		assert.ErrorIs(t, m.Mint(tokenA, alice, nil), ErrNilAmount)
	})

	t.Run("Mint Overflow", func(t *testing.T) {
		m := NewMemory()
		max := new(uint256.Int).SetAllOne()
		require.NoError(t, m.Mint(tokenA, alice, max))
		assert.ErrorIs(t, m.Mint(tokenA, alice, uint256.NewInt(1)), ErrOverflow)
	})
}

func TestMemory_Snapshots(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Mint(tokenA, alice, uint256.NewInt(100)))

	outer := m.Snapshot()
	require.NoError(t, m.Transfer(tokenA, alice, bob, uint256.NewInt(30)))

	inner := m.Snapshot()
	require.NoError(t, m.Transfer(tokenA, bob, alice, uint256.NewInt(10)))
	assert.Equal(t, uint64(20), m.BalanceOf(tokenA, bob).Uint64())

	m.RevertToSnapshot(inner)
	assert.Equal(t, uint64(70), m.BalanceOf(tokenA, alice).Uint64())
	assert.Equal(t, uint64(30), m.BalanceOf(tokenA, bob).Uint64())

	m.RevertToSnapshot(outer)
	assert.Equal(t, uint64(100), m.BalanceOf(tokenA, alice).Uint64())
	assert.True(t, m.BalanceOf(tokenA, bob).IsZero())

	t.Run("Unknown Revision Panics", func(t *testing.T) {
		assert.Panics(t, func() { m.RevertToSnapshot(m.Snapshot() + 1) })
	})

	t.Run("Finalise Drops Journal", func(t *testing.T) {
		require.NoError(t, m.Transfer(tokenA, alice, bob, uint256.NewInt(1)))
		m.Finalise()
		assert.Equal(t, 0, m.Snapshot())
		assert.Equal(t, uint64(1), m.BalanceOf(tokenA, bob).Uint64())
	})
}
