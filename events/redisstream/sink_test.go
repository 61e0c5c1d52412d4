package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/defistate-amm-core/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	added []*redis.XAddArgs
	err   error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	f.added = append(f.added, a)
	return redis.NewStringResult(fmt.Sprintf("%d-0", len(f.added)), nil)
}

func newSink(t *testing.T, client XAdder, maxLen int64) *Sink {
	t.Helper()
	s, err := New(&Config{Client: client, MaxLen: maxLen, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(&Config{Logger: logger})
	assert.Error(t, err)
	_, err = New(&Config{Client: &fakeStream{}})
	assert.Error(t, err)
	_, err = New(&Config{Client: &fakeStream{}, MaxLen: -1, Logger: logger})
	assert.Error(t, err)

	s, err := New(&Config{Client: &fakeStream{}, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, DefaultStream, s.stream)
}

func TestShip(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	fake := &fakeStream{}
	s := newSink(t, fake, 0)

	rec := events.Record{Seq: 7, Name: events.NameFeeUpdated, Event: events.FeeUpdated{Old: 30, New: 25}}
	require.NoError(t, s.Ship(context.Background(), rec))
	require.NoError(t, s.Ship(context.Background(), events.Record{
		Seq:   8,
		Name:  events.NamePoolCreated,
		Event: events.PoolCreated{Pool: pool},
	}))

	require.Len(t, fake.added, 2)
	first := fake.added[0]
	assert.Equal(t, DefaultStream, first.Stream)
	assert.Zero(t, first.MaxLen)

	values, ok := first.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, uint64(7), values["seq"])
	assert.Equal(t, "FeeUpdated", values["name"])

	var decoded events.FeeUpdated
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, events.FeeUpdated{Old: 30, New: 25}, decoded)

	second := fake.added[1].Values.(map[string]any)
	assert.Contains(t, second["payload"], `"pool":"0x00000000000000000000000000000000000000aa"`)
}

func TestShip_TrimsStream(t *testing.T) {
	fake := &fakeStream{}
	s := newSink(t, fake, 1000)
	require.NoError(t, s.Ship(context.Background(), events.Record{Seq: 1, Name: events.NameFeeUpdated, Event: events.FeeUpdated{}}))
	require.Len(t, fake.added, 1)
	assert.Equal(t, int64(1000), fake.added[0].MaxLen)
	assert.True(t, fake.added[0].Approx)
}

func TestRun(t *testing.T) {
	t.Run("Drains Until Closed", func(t *testing.T) {
		fake := &fakeStream{}
		s := newSink(t, fake, 0)
		records := make(chan events.Record, 3)
		for i := uint64(1); i <= 3; i++ {
			records <- events.Record{Seq: i, Name: events.NameFeeUpdated, Event: events.FeeUpdated{New: uint16(i)}}
		}
		close(records)

		require.NoError(t, s.Run(context.Background(), records))
		assert.Len(t, fake.added, 3)
	})

	t.Run("Stops On Write Error", func(t *testing.T) {
		down := errors.New("connection refused")
		s := newSink(t, &fakeStream{err: down}, 0)
		records := make(chan events.Record, 1)
		records <- events.Record{Seq: 1, Name: events.NameFeeUpdated, Event: events.FeeUpdated{}}

		assert.ErrorIs(t, s.Run(context.Background(), records), down)
	})

	t.Run("Stops On Cancel", func(t *testing.T) {
		s := newSink(t, &fakeStream{}, 0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.Run(ctx, make(chan events.Record)), context.Canceled)
	})

	t.Run("Ships Feed Records", func(t *testing.T) {
		fake := &fakeStream{}
		s := newSink(t, fake, 0)
		feed := events.NewFeed()
		records := make(chan events.Record, 2)
		sub := feed.Subscribe(records)
		defer sub.Unsubscribe()

		feed.Emit(events.FeeUpdated{Old: 1, New: 2})
		feed.Emit(events.ForwardingFeeUpdated{Old: 50, New: 60})
		close(records)

		require.NoError(t, s.Run(context.Background(), records))
		require.Len(t, fake.added, 2)
		assert.Equal(t, uint64(2), fake.added[1].Values.(map[string]any)["seq"])
		assert.Equal(t, "ForwardingFeeUpdated", fake.added[1].Values.(map[string]any)["name"])
	})
}
