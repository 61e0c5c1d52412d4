package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/defistate/defistate-amm-core/events"
	"github.com/defistate/defistate-amm-core/governance"
	"github.com/defistate/defistate-amm-core/journal"
	"github.com/defistate/defistate-amm-core/ledger"
	"github.com/defistate/defistate-amm-core/protocols/poolregistry"
	"github.com/defistate/defistate-amm-core/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-core/router/routermock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	admin        = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	treasury     = common.HexToAddress("0x000000000000000000000000000000000000fee5")
	routerAddr   = common.HexToAddress("0x000000000000000000000000000000000000a011")
	venueAccount = common.HexToAddress("0x000000000000000000000000000000000000be11")
	provider     = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	trader       = common.HexToAddress("0x0000000000000000000000000000000000000def")
	recipient    = common.HexToAddress("0x0000000000000000000000000000000000000123")

	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tokenC = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

var fixedNow = time.Unix(1_700_000_000, 0)

type fixture struct {
	router   *Router
	registry *poolregistry.Registry
	venue    *uniswapv2.Venue
	ledger   *ledger.Memory
	events   *events.Recorder
	metrics  *prometheus.Registry
}

// newFixture seeds an internal A/B pool at (1e6, 2e6) and a venue A/C pool at
// the same reserves. A nil external uses the venue.
func newFixture(t *testing.T, external ExternalAMM) *fixture {
	t.Helper()
	l := ledger.NewMemory()
	rec := &events.Recorder{}
	j := journal.New(l, rec)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	controller, err := governance.NewController(admin)
	require.NoError(t, err)

	registry, err := poolregistry.NewRegistry(&poolregistry.Config{
		Governance:   controller,
		FeeBps:       30,
		FeeRecipient: treasury,
		Journal:      j,
		Logger:       logger,
		Registry:     reg,
	})
	require.NoError(t, err)

	venue, err := uniswapv2.NewVenue(&uniswapv2.Config{
		Account: venueAccount,
		Journal: j,
		Logger:  logger,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	for _, token := range []common.Address{tokenA, tokenB, tokenC} {
		require.NoError(t, l.Mint(token, provider, uint256.NewInt(10_000_000)))
	}
	require.NoError(t, l.Mint(tokenA, trader, uint256.NewInt(100_000)))

	pool, err := registry.CreatePool(tokenA, tokenB)
	require.NoError(t, err)
	_, err = pool.AddLiquidity(provider, uint256.NewInt(1_000_000), uint256.NewInt(2_000_000))
	require.NoError(t, err)
	_, err = venue.AddPool(provider, tokenA, tokenC, uint256.NewInt(1_000_000), uint256.NewInt(2_000_000), 30)
	require.NoError(t, err)

	if external == nil {
		external = venue
	}
	r, err := NewRouter(&Config{
		Address:    routerAddr,
		Pools:      registry,
		External:   external,
		Governance: controller,
		Journal:    j,
		Logger:     logger,
		Registry:   reg,
	})
	require.NoError(t, err)

	rec.Reset()
	return &fixture{router: r, registry: registry, venue: venue, ledger: l, events: rec, metrics: reg}
}

// counter reads the value of the named counter series with the given labels,
// or 0 if it has not been created.
func (f *fixture) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.metrics.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	series:
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if want, ok := labels[label.GetName()]; ok && want != label.GetValue() {
					continue series
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func params(in, out common.Address, amountIn, minOut uint64) SwapParams {
	return SwapParams{
		AssetIn:      in,
		AssetOut:     out,
		AmountIn:     uint256.NewInt(amountIn),
		MinAmountOut: uint256.NewInt(minOut),
		Recipient:    recipient,
		Deadline:     uint64(fixedNow.Unix()) + 60,
	}
}

func TestNewRouter(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Zero Address", func(c *Config) { c.Address = common.Address{} }},
		{"Nil Pools", func(c *Config) { c.Pools = nil }},
		{"Nil External", func(c *Config) { c.External = nil }},
		{"Nil Governance", func(c *Config) { c.Governance = nil }},
		{"Nil Journal", func(c *Config) { c.Journal = nil }},
		{"Nil Logger", func(c *Config) { c.Logger = nil }},
		{"Nil Metrics Registry", func(c *Config) { c.Registry = nil }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			controller, err := governance.NewController(admin)
			require.NoError(t, err)
			cfg := &Config{
				Address:    routerAddr,
				Pools:      f.registry,
				External:   f.venue,
				Governance: controller,
				Journal:    journal.New(f.ledger, nil),
				Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
				Registry:   prometheus.NewRegistry(),
			}
			tc.mutate(cfg)
			_, err = NewRouter(cfg)
			assert.Error(t, err)
		})
	}

	f := newFixture(t, nil)
	assert.Equal(t, uint16(DefaultForwardingFeeBps), f.router.ForwardingFeeBps())
	assert.Equal(t, routerAddr, f.router.Address())
}

func TestSwap_Internal(t *testing.T) {
	t.Run("Routed Through Pool", func(t *testing.T) {
		f := newFixture(t, nil)

		out, err := f.router.Swap(context.Background(), trader, params(tokenA, tokenB, 10_000, 19_743))
		require.NoError(t, err)
		assert.Equal(t, uint64(19_743), out.Uint64())

		assert.Equal(t, uint64(90_000), f.ledger.BalanceOf(tokenA, trader).Uint64())
		assert.Equal(t, uint64(19_743), f.ledger.BalanceOf(tokenB, recipient).Uint64())
		assert.True(t, f.ledger.BalanceOf(tokenA, routerAddr).IsZero())
		assert.True(t, f.ledger.BalanceOf(tokenA, treasury).IsZero(), "internal swaps pay no forwarding fee")

		pool, ok := f.registry.LookupPool(tokenA, tokenB)
		require.True(t, ok)
		low, high := pool.Reserves()
		assert.Equal(t, uint64(1_010_000), low.Uint64())
		assert.Equal(t, uint64(2_000_000-19_743), high.Uint64())

		recorded := f.events.Events()
		require.Len(t, recorded, 1)
		swap, ok := recorded[0].(events.Swap)
		require.True(t, ok)
		assert.Equal(t, routerAddr, swap.Caller)
		assert.Equal(t, recipient, swap.Recipient)
	})

	t.Run("Slippage Rolls Back Pool Swap", func(t *testing.T) {
		f := newFixture(t, nil)
		pool, ok := f.registry.LookupPool(tokenA, tokenB)
		require.True(t, ok)
		before := pool.View()

		_, err := f.router.Swap(context.Background(), trader, params(tokenA, tokenB, 10_000, 19_744))
		assert.ErrorIs(t, err, ErrInsufficientOutputAmount)

		assert.Equal(t, before, pool.View())
		assert.Equal(t, uint64(100_000), f.ledger.BalanceOf(tokenA, trader).Uint64())
		assert.True(t, f.ledger.BalanceOf(tokenB, recipient).IsZero())
		assert.Empty(t, f.events.Events())

		swapOK := map[string]string{"op": "swap", "result": "ok"}
		swapReverted := map[string]string{"op": "swap", "result": "reverted"}
		assert.Zero(t, f.counter(t, "amm_pool_operations_total", swapOK))
		assert.Equal(t, float64(1), f.counter(t, "amm_pool_operations_total", swapReverted))
		assert.Equal(t, float64(1), testutil.ToFloat64(f.router.metrics.swaps.WithLabelValues("internal", "error")))
		assert.Zero(t, testutil.ToFloat64(f.router.metrics.swaps.WithLabelValues("internal", "ok")))

		_, err = f.router.Swap(context.Background(), trader, params(tokenA, tokenB, 10_000, 19_743))
		require.NoError(t, err)
		assert.Equal(t, float64(1), f.counter(t, "amm_pool_operations_total", swapOK))
		assert.Equal(t, float64(1), testutil.ToFloat64(f.router.metrics.swaps.WithLabelValues("internal", "ok")))
	})

	t.Run("Unfunded Caller", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.router.Swap(context.Background(), trader, params(tokenA, tokenB, 100_001, 0))
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Empty(t, f.events.Events())
	})
}

func TestSwap_Forwarded(t *testing.T) {
	t.Run("Through Venue", func(t *testing.T) {
		f := newFixture(t, nil)

		out, err := f.router.Swap(context.Background(), trader, params(tokenA, tokenC, 10_000, 0))
		require.NoError(t, err)
		// 50 bps of 10_000 is skimmed, 9_950 is priced by the venue pool.
		assert.Equal(t, uint64(19_645), out.Uint64())

		assert.Equal(t, uint64(50), f.ledger.BalanceOf(tokenA, treasury).Uint64())
		assert.Equal(t, uint64(90_000), f.ledger.BalanceOf(tokenA, trader).Uint64())
		assert.Equal(t, uint64(19_645), f.ledger.BalanceOf(tokenC, recipient).Uint64())
		assert.True(t, f.ledger.BalanceOf(tokenA, routerAddr).IsZero())

		assert.Equal(t, []events.Event{events.SwapForwarded{
			Caller:    trader,
			AssetIn:   tokenA,
			AssetOut:  tokenC,
			AmountIn:  uint256.NewInt(10_000),
			Fee:       uint256.NewInt(50),
			AmountOut: uint256.NewInt(19_645),
			Recipient: recipient,
		}}, f.events.Events())
	})

	t.Run("Venue Rejection Rolls Back Fee", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.router.Swap(context.Background(), trader, params(tokenA, tokenC, 10_000, 19_646))
		assert.ErrorIs(t, err, uniswapv2.ErrInsufficientOutputAmount)

		assert.True(t, f.ledger.BalanceOf(tokenA, treasury).IsZero())
		assert.Equal(t, uint64(100_000), f.ledger.BalanceOf(tokenA, trader).Uint64())
		assert.Empty(t, f.events.Events())
	})

	t.Run("No Pool Anywhere", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.router.Swap(context.Background(), trader, params(tokenB, tokenC, 10, 0))
		assert.Error(t, err)
		assert.True(t, f.ledger.BalanceOf(tokenB, treasury).IsZero())
	})

	t.Run("Calls External With Router As Payer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		external := routermock.NewMockExternalAMM(ctrl)
		f := newFixture(t, external)

		p := params(tokenA, tokenC, 10_000, 100)
		external.EXPECT().
			SwapExactIn(gomock.Any(), routerAddr, uint256.NewInt(9_950), uint256.NewInt(100), []common.Address{tokenA, tokenC}, recipient, p.Deadline).
			Return([]*uint256.Int{uint256.NewInt(9_950), uint256.NewInt(500)}, nil)

		out, err := f.router.Swap(context.Background(), trader, p)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), out.Uint64())
		assert.Equal(t, uint64(9_950), f.ledger.BalanceOf(tokenA, routerAddr).Uint64(), "the mock never pulls the input")
	})

	t.Run("Zero Forwarding Fee", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		external := routermock.NewMockExternalAMM(ctrl)
		f := newFixture(t, external)
		require.NoError(t, f.router.SetForwardingFee(admin, 0))

		external.EXPECT().
			SwapExactIn(gomock.Any(), routerAddr, uint256.NewInt(10_000), gomock.Any(), gomock.Any(), recipient, gomock.Any()).
			Return([]*uint256.Int{uint256.NewInt(10_000), uint256.NewInt(1)}, nil)

		_, err := f.router.Swap(context.Background(), trader, params(tokenA, tokenC, 10_000, 0))
		require.NoError(t, err)
		assert.True(t, f.ledger.BalanceOf(tokenA, treasury).IsZero())
	})

	t.Run("External Failures", func(t *testing.T) {
		boom := errors.New("boom")
		testCases := []struct {
			name    string
			amounts []*uint256.Int
			err     error
			wantErr error
		}{
			{"Error Passed Through", nil, boom, boom},
			{"Empty Return", nil, nil, ErrInvalidExternalReturn},
			{"Single Amount", []*uint256.Int{uint256.NewInt(9_950)}, nil, ErrInvalidExternalReturn},
			{"Below Minimum", []*uint256.Int{uint256.NewInt(9_950), uint256.NewInt(99)}, nil, ErrInsufficientOutputAmount},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				ctrl := gomock.NewController(t)
				external := routermock.NewMockExternalAMM(ctrl)
				f := newFixture(t, external)
				external.EXPECT().
					SwapExactIn(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(tc.amounts, tc.err)

				_, err := f.router.Swap(context.Background(), trader, params(tokenA, tokenC, 10_000, 100))
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, uint64(100_000), f.ledger.BalanceOf(tokenA, trader).Uint64())
				assert.True(t, f.ledger.BalanceOf(tokenA, treasury).IsZero())
				assert.True(t, f.ledger.BalanceOf(tokenA, routerAddr).IsZero())
				assert.Empty(t, f.events.Events())
			})
		}
	})
}

func TestSwap_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*SwapParams)
		err    error
	}{
		{"Identical Assets", func(p *SwapParams) { p.AssetOut = p.AssetIn }, ErrPairInvalid},
		{"Zero Asset In", func(p *SwapParams) { p.AssetIn = common.Address{} }, ErrPairInvalid},
		{"Zero Amount", func(p *SwapParams) { p.AmountIn = new(uint256.Int) }, ErrInsufficientInputAmount},
		{"Nil Amount", func(p *SwapParams) { p.AmountIn = nil }, ErrInsufficientInputAmount},
		{"Zero Recipient", func(p *SwapParams) { p.Recipient = common.Address{} }, ErrInvalidRecipient},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			f := newFixture(t, routermock.NewMockExternalAMM(ctrl))
			p := params(tokenA, tokenB, 10_000, 0)
			tc.mutate(&p)

			_, err := f.router.Swap(context.Background(), trader, p)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, uint64(100_000), f.ledger.BalanceOf(tokenA, trader).Uint64())
		})
	}
}

func TestSetForwardingFee(t *testing.T) {
	f := newFixture(t, nil)

	assert.ErrorIs(t, f.router.SetForwardingFee(admin, MaxForwardingFeeBps+1), ErrFeeTooHigh)
	assert.ErrorIs(t, f.router.SetForwardingFee(trader, 10), governance.ErrNotController)
	assert.Equal(t, uint16(DefaultForwardingFeeBps), f.router.ForwardingFeeBps())
	assert.Empty(t, f.events.Events())
	assert.Equal(t, float64(2), testutil.ToFloat64(f.router.metrics.rejected.WithLabelValues("set_forwarding_fee")))

	require.NoError(t, f.router.SetForwardingFee(admin, MaxForwardingFeeBps))
	assert.Equal(t, uint16(MaxForwardingFeeBps), f.router.ForwardingFeeBps())
	assert.Equal(t, []events.Event{events.ForwardingFeeUpdated{Old: DefaultForwardingFeeBps, New: MaxForwardingFeeBps}}, f.events.Events())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.router.metrics.parameterUpdates.WithLabelValues("forwarding_fee")))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.router.metrics.rejected.WithLabelValues("set_forwarding_fee")))

	_, err := f.router.Swap(context.Background(), trader, params(tokenA, tokenC, 10_000, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(200), f.ledger.BalanceOf(tokenA, treasury).Uint64())
}
