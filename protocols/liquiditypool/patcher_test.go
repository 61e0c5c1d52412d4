package liquiditypool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func view(addr byte, reserveLow uint64) View {
	return View{
		Address:     common.BytesToAddress([]byte{addr}),
		Initialized: true,
		ReserveLow:  uint256.NewInt(reserveLow),
		ReserveHigh: uint256.NewInt(100),
		TotalShares: uint256.NewInt(10),
		FeeBps:      30,
	}
}

func TestPatcher(t *testing.T) {
	t.Run("Replays Differ Output", func(t *testing.T) {
		old := []View{view(1, 100), view(2, 200), view(3, 300)}
		next := []View{view(1, 100), view(2, 250), view(3, 300), view(4, 400)}

		patched, err := Patcher(old, Differ(old, next))
		require.NoError(t, err)
		assert.Equal(t, next, patched)
		assert.Equal(t, uint64(200), old[1].ReserveLow.Uint64(), "previous views are not modified")
	})

	t.Run("Deletion Keeps Order", func(t *testing.T) {
		old := []View{view(1, 100), view(2, 200), view(3, 300)}
		patched, err := Patcher(old, Diff{Deletions: []common.Address{view(2, 0).Address}})
		require.NoError(t, err)
		assert.Equal(t, []View{view(1, 100), view(3, 300)}, patched)
		assert.Len(t, old, 3)
	})

	t.Run("Result Does Not Alias Diff", func(t *testing.T) {
		update := view(1, 500)
		patched, err := Patcher([]View{view(1, 100)}, Diff{Updates: []View{update}})
		require.NoError(t, err)
		update.ReserveLow.SetUint64(1)
		assert.Equal(t, uint64(500), patched[0].ReserveLow.Uint64())
	})

	t.Run("Mismatches", func(t *testing.T) {
		prev := []View{view(1, 100)}
		testCases := []struct {
			name string
			diff Diff
		}{
			{"Unknown Update", Diff{Updates: []View{view(9, 1)}}},
			{"Duplicate Addition", Diff{Additions: []View{view(1, 1)}}},
			{"Unknown Deletion", Diff{Deletions: []common.Address{view(9, 0).Address}}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := Patcher(prev, tc.diff)
				assert.ErrorIs(t, err, ErrPatchMismatch)
			})
		}
	})

	t.Run("Live Pool", func(t *testing.T) {
		f := seeded(t)
		before := []View{f.pool.View()}

		f.fund(t, bob, 10_000, 0)
		f.deliver(t, tokenLow, bob, 10_000)
		_, err := f.pool.Swap(bob, tokenLow, uint256.NewInt(10_000), bob)
		require.NoError(t, err)
		after := []View{f.pool.View()}

		patched, err := Patcher(before, Differ(before, after))
		require.NoError(t, err)
		assert.Equal(t, after, patched)
	})
}
