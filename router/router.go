// Package router dispatches swaps to the internal pool for a pair, or, when
// the registry has none, forwards them to an external AMM after skimming a
// forwarding fee.
package router

//go:generate mockgen -package=routermock -destination=routermock/external_amm.go . ExternalAMM

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-core/asset"
	"github.com/defistate/defistate-amm-core/events"
	"github.com/defistate/defistate-amm-core/governance"
	"github.com/defistate/defistate-amm-core/journal"
	"github.com/defistate/defistate-amm-core/protocols/liquiditypool"
	"github.com/defistate/defistate-amm-core/protocols/uniswapv2/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultForwardingFeeBps = 50
	MaxForwardingFeeBps     = 200
)

var (
	ErrPairInvalid              = errors.New("invalid asset pair")
	ErrInsufficientInputAmount  = errors.New("insufficient input amount")
	ErrInvalidRecipient         = errors.New("invalid recipient")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	ErrInvalidExternalReturn    = errors.New("invalid external amm return")
	ErrFeeTooHigh               = errors.New("forwarding fee too high")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolRegistry is the part of the pool registry the router reads.
type PoolRegistry interface {
	LookupPool(a, b common.Address) (*liquiditypool.Pool, bool)
	SwapFees() liquiditypool.Fees
}

// ExternalAMM is the fallback exchange. SwapExactIn pulls amountIn of
// path[0] from payer and returns one amount per path entry, the last being
// the output paid to recipient.
type ExternalAMM interface {
	SwapExactIn(ctx context.Context, payer common.Address, amountIn, minOut *uint256.Int, path []common.Address, recipient common.Address, deadline uint64) ([]*uint256.Int, error)
}

// Config holds the dependencies of a Router.
type Config struct {
	// Address is the router's own ledger account. Forwarded input passes
	// through it.
	Address    common.Address
	Pools      PoolRegistry
	External   ExternalAMM
	Governance governance.Authorizer
	Journal    *journal.Journal
	Logger     Logger
	Registry   prometheus.Registerer
}

func (c *Config) validate() error {
	if asset.IsZero(c.Address) {
		return errors.New("config: Address cannot be the zero address")
	}
	if c.Pools == nil {
		return errors.New("config: Pools cannot be nil")
	}
	if c.External == nil {
		return errors.New("config: External cannot be nil")
	}
	if c.Governance == nil {
		return errors.New("config: Governance cannot be nil")
	}
	if c.Journal == nil {
		return errors.New("config: Journal cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

// SwapParams describe one exact-input trade.
type SwapParams struct {
	AssetIn      common.Address
	AssetOut     common.Address
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	Recipient    common.Address
	// Deadline is handed to the external AMM unevaluated.
	Deadline uint64
}

// Router executes swaps through the pool registered for a pair, or forwards
// them to an external AMM for a fee when no pool exists.
type Router struct {
	address    common.Address
	pools      PoolRegistry
	external   ExternalAMM
	governance governance.Authorizer
	journal    *journal.Journal
	logger     Logger
	metrics    *Metrics

	forwardingFeeBps uint16
}

// NewRouter constructs a Router from cfg. The forwarding fee starts at
// DefaultForwardingFeeBps.
func NewRouter(cfg *Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Router{
		address:          cfg.Address,
		pools:            cfg.Pools,
		external:         cfg.External,
		governance:       cfg.Governance,
		journal:          cfg.Journal,
		logger:           cfg.Logger,
		metrics:          NewMetrics(cfg.Registry),
		forwardingFeeBps: DefaultForwardingFeeBps,
	}, nil
}

// Address returns the router's ledger account.
func (r *Router) Address() common.Address {
	return r.address
}

// ForwardingFeeBps returns the fee skimmed from forwarded trades.
func (r *Router) ForwardingFeeBps() uint16 {
	return r.forwardingFeeBps
}

// Swap executes p for caller and returns the output paid to p.Recipient.
func (r *Router) Swap(ctx context.Context, caller common.Address, p SwapParams) (amountOut *uint256.Int, err error) {
	path := "forwarded"
	start := time.Now()
	defer func() {
		r.metrics.observe(r.journal, path, start, err)
		if err != nil {
			r.logger.Debug("swap rejected", "caller", caller, "assetIn", p.AssetIn, "assetOut", p.AssetOut, "error", err)
		}
	}()

	if _, err := asset.NewPair(p.AssetIn, p.AssetOut); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPairInvalid, err)
	}
	if p.AmountIn == nil || p.AmountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if asset.IsZero(p.Recipient) {
		return nil, ErrInvalidRecipient
	}
	minOut := p.MinAmountOut
	if minOut == nil {
		minOut = new(uint256.Int)
	}

	frame := r.journal.Begin()
	defer frame.End(&err)

	if pool, ok := r.pools.LookupPool(p.AssetIn, p.AssetOut); ok {
		path = "internal"
		amountOut, err = r.swapInternal(pool, caller, p)
	} else {
		amountOut, err = r.swapForwarded(ctx, frame, caller, p, minOut)
	}
	if err != nil {
		return nil, err
	}
	if amountOut.Lt(minOut) {
		return nil, fmt.Errorf("%w: %s < %s", ErrInsufficientOutputAmount, amountOut.Dec(), minOut.Dec())
	}
	return amountOut, nil
}

func (r *Router) swapInternal(pool *liquiditypool.Pool, caller common.Address, p SwapParams) (*uint256.Int, error) {
	if err := r.journal.Ledger().Transfer(p.AssetIn, caller, pool.Address(), p.AmountIn); err != nil {
		return nil, fmt.Errorf("deliver input to pool: %w", err)
	}
	amountOut, err := pool.Swap(r.address, p.AssetIn, p.AmountIn, p.Recipient)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("swap routed to pool", "caller", caller, "pool", pool.Address(), "amountIn", p.AmountIn.Dec(), "amountOut", amountOut.Dec())
	return amountOut, nil
}

func (r *Router) swapForwarded(ctx context.Context, frame *journal.Frame, caller common.Address, p SwapParams, minOut *uint256.Int) (*uint256.Int, error) {
	fee, err := calculator.FeeAmount(p.AmountIn, r.forwardingFeeBps)
	if err != nil {
		return nil, err
	}
	forwarded := new(uint256.Int).Sub(p.AmountIn, fee)

	ledger := r.journal.Ledger()
	if err := ledger.Transfer(p.AssetIn, caller, r.address, p.AmountIn); err != nil {
		return nil, fmt.Errorf("collect input: %w", err)
	}
	if !fee.IsZero() {
		if err := ledger.Transfer(p.AssetIn, r.address, r.pools.SwapFees().Recipient, fee); err != nil {
			return nil, fmt.Errorf("pay forwarding fee: %w", err)
		}
	}

	amounts, err := r.external.SwapExactIn(ctx, r.address, forwarded, minOut, []common.Address{p.AssetIn, p.AssetOut}, p.Recipient, p.Deadline)
	if err != nil {
		return nil, fmt.Errorf("external amm: %w", err)
	}
	if len(amounts) < 2 || amounts[len(amounts)-1] == nil {
		return nil, fmt.Errorf("%w: %d amounts", ErrInvalidExternalReturn, len(amounts))
	}
	amountOut := amounts[len(amounts)-1].Clone()

	frame.Emit(events.SwapForwarded{
		Caller:    caller,
		AssetIn:   p.AssetIn,
		AssetOut:  p.AssetOut,
		AmountIn:  p.AmountIn.Clone(),
		Fee:       fee,
		AmountOut: amountOut.Clone(),
		Recipient: p.Recipient,
	})
	fees := r.metrics.forwardingFees.WithLabelValues(p.AssetIn.Hex())
	skimmed := fee.Float64()
	r.journal.AfterCommit(func() { fees.Add(skimmed) })
	r.logger.Debug("swap forwarded", "caller", caller, "amountIn", p.AmountIn.Dec(), "fee", fee.Dec(), "amountOut", amountOut.Dec())
	return amountOut, nil
}

// SetForwardingFee sets the fee skimmed from forwarded trades.
func (r *Router) SetForwardingFee(caller common.Address, bps uint16) (err error) {
	defer r.rejected("set_forwarding_fee", &err)

	if err := governance.Require(r.governance, caller); err != nil {
		return err
	}
	if bps > MaxForwardingFeeBps {
		return fmt.Errorf("%w: %d > %d", ErrFeeTooHigh, bps, MaxForwardingFeeBps)
	}

	frame := r.journal.Begin()
	defer frame.End(&err)

	old := r.forwardingFeeBps
	r.forwardingFeeBps = bps
	frame.OnRollback(func() { r.forwardingFeeBps = old })
	frame.Emit(events.ForwardingFeeUpdated{Old: old, New: bps})

	r.journal.AfterCommit(r.metrics.parameterUpdates.WithLabelValues("forwarding_fee").Inc)
	r.logger.Info("forwarding fee updated", "old", old, "new", bps)
	return nil
}

func (r *Router) rejected(op string, errp *error) {
	if *errp == nil {
		return
	}
	r.metrics.rejected.WithLabelValues(op).Inc()
	r.logger.Debug("router call rejected", "op", op, "error", *errp)
}
