package events

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed(t *testing.T) {
	feed := NewFeed()
	ch := make(chan Record, 4)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	feed.Emit(FeeUpdated{Old: 30, New: 50})
	feed.Emit(Swap{AmountIn: uint256.NewInt(1), AmountOut: uint256.NewInt(2)})

	first := <-ch
	second := <-ch
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, NameFeeUpdated, first.Name)
	assert.Equal(t, FeeUpdated{Old: 30, New: 50}, first.Event)

	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, NameSwap, second.Name)
	swap, ok := second.Event.(Swap)
	require.True(t, ok)
	assert.Equal(t, uint64(2), swap.AmountOut.Uint64())
}

func TestFeed_NoSubscribers(t *testing.T) {
	feed := NewFeed()
	assert.NotPanics(t, func() { feed.Emit(FeeUpdated{}) })
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Emit(FeeUpdated{Old: 1, New: 2})
	r.Emit(ForwardingFeeUpdated{Old: 50, New: 60})

	assert.Equal(t, []Name{NameFeeUpdated, NameForwardingFeeUpdated}, r.Names())

	got := r.Events()
	got[0] = nil
	assert.NotNil(t, r.Events()[0], "Events() should return a copy")

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard.Emit(Swap{}) })
}
