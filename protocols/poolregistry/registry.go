// Package poolregistry maps canonical asset pairs to their single liquidity
// pool and owns the fee parameters every pool reads on each swap.
package poolregistry

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-core/asset"
	"github.com/defistate/defistate-amm-core/events"
	"github.com/defistate/defistate-amm-core/governance"
	"github.com/defistate/defistate-amm-core/journal"
	"github.com/defistate/defistate-amm-core/protocols/liquiditypool"
	"github.com/defistate/defistate-amm-core/protocols/tokenpoolregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MaxFeeBps caps the swap fee at 5%.
	MaxFeeBps = 500
	// MaxProtocolFeePortionBps is the whole fee.
	MaxProtocolFeePortionBps = 10000
)

var (
	ErrPairInvalid    = errors.New("invalid asset pair")
	ErrPoolExists     = errors.New("pool already exists")
	ErrFeeTooHigh     = errors.New("fee too high")
	ErrInvalidPortion = errors.New("invalid protocol fee portion")
	ErrZeroAddress    = errors.New("zero address")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the initial fee parameters and dependencies of a Registry.
type Config struct {
	Governance            governance.Authorizer
	FeeBps                uint16
	ProtocolFeePortionBps uint16
	FeeRecipient          common.Address
	// DisableMinimumLiquidityLock is applied to every pool the registry creates.
	DisableMinimumLiquidityLock bool
	Journal                     *journal.Journal
	Logger                      Logger
	Registry                    prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Governance == nil {
		return errors.New("config: Governance cannot be nil")
	}
	if c.FeeBps > MaxFeeBps {
		return fmt.Errorf("config: FeeBps %d exceeds %d", c.FeeBps, MaxFeeBps)
	}
	if c.ProtocolFeePortionBps > MaxProtocolFeePortionBps {
		return fmt.Errorf("config: ProtocolFeePortionBps %d exceeds %d", c.ProtocolFeePortionBps, MaxProtocolFeePortionBps)
	}
	if asset.IsZero(c.FeeRecipient) {
		return errors.New("config: FeeRecipient cannot be the zero address")
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

// Registry is the deployment's single pool registry.
type Registry struct {
	governance  governance.Authorizer
	journal     *journal.Journal
	logger      Logger
	metrics     *Metrics
	poolMetrics *liquiditypool.Metrics
	lockMinimum bool

	fees liquiditypool.Fees

	byKey     map[asset.PoolKey]*liquiditypool.Pool
	byAddress map[common.Address]*liquiditypool.Pool
	all       []*liquiditypool.Pool
	graph     *tokenpoolregistry.TokenPoolRegistry
}

// NewRegistry constructs a Registry from cfg.
func NewRegistry(cfg *Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Registry{
		governance:  cfg.Governance,
		journal:     cfg.Journal,
		logger:      cfg.Logger,
		metrics:     NewMetrics(cfg.Registry),
		poolMetrics: liquiditypool.NewMetrics(cfg.Registry),
		lockMinimum: !cfg.DisableMinimumLiquidityLock,
		fees: liquiditypool.Fees{
			FeeBps:                cfg.FeeBps,
			ProtocolFeePortionBps: cfg.ProtocolFeePortionBps,
			Recipient:             cfg.FeeRecipient,
		},
		byKey:     make(map[asset.PoolKey]*liquiditypool.Pool),
		byAddress: make(map[common.Address]*liquiditypool.Pool),
		graph:     tokenpoolregistry.NewTokenPoolRegistry(0),
	}, nil
}

// CreatePool registers the pool for the unordered pair {a, b}. The pool's
// account address is derived from the canonical pair, so the same pair
// always resolves to the same pool.
func (r *Registry) CreatePool(a, b common.Address) (pool *liquiditypool.Pool, err error) {
	defer r.rejected("create_pool", &err)

	pair, err := asset.NewPair(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPairInvalid, err)
	}
	key := pair.Key()
	if _, exists := r.byKey[key]; exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolExists, pair.Low.Hex(), pair.High.Hex())
	}

	frame := r.journal.Begin()
	defer frame.End(&err)

	pool, err = liquiditypool.New(&liquiditypool.Config{
		Address:                     key.Address(),
		Journal:                     r.journal,
		Logger:                      r.logger,
		Metrics:                     r.poolMetrics,
		DisableMinimumLiquidityLock: !r.lockMinimum,
	})
	if err != nil {
		return nil, err
	}
	if err := pool.Initialize(pair.Low, pair.High, r); err != nil {
		return nil, err
	}

	index := uint64(len(r.all))
	r.byKey[key] = pool
	r.byAddress[pool.Address()] = pool
	r.all = append(r.all, pool)
	r.graph.AddPool(pool.Address(), pair.Low, pair.High)
	r.metrics.pools.Set(float64(len(r.all)))
	frame.OnRollback(func() {
		delete(r.byKey, key)
		delete(r.byAddress, pool.Address())
		r.all = r.all[:index]
		r.graph.RemovePool(pool.Address())
		r.metrics.pools.Set(float64(len(r.all)))
	})

	frame.Emit(events.PoolCreated{
		AssetLow:  pair.Low,
		AssetHigh: pair.High,
		Pool:      pool.Address(),
		Key:       key,
		Index:     index,
	})
	r.journal.AfterCommit(r.metrics.poolsCreated.Inc)
	r.logger.Info("pool created", "assetLow", pair.Low, "assetHigh", pair.High, "pool", pool.Address(), "index", index)
	return pool, nil
}

// LookupPool returns the pool for the unordered pair {a, b}.
func (r *Registry) LookupPool(a, b common.Address) (*liquiditypool.Pool, bool) {
	pair, err := asset.NewPair(a, b)
	if err != nil {
		return nil, false
	}
	pool, ok := r.byKey[pair.Key()]
	return pool, ok
}

// PoolByAddress returns the pool whose account is addr.
func (r *Registry) PoolByAddress(addr common.Address) (*liquiditypool.Pool, bool) {
	pool, ok := r.byAddress[addr]
	return pool, ok
}

// PoolAt returns the i-th created pool.
func (r *Registry) PoolAt(i int) (*liquiditypool.Pool, bool) {
	if i < 0 || i >= len(r.all) {
		return nil, false
	}
	return r.all[i], true
}

// Pools returns every pool in creation order.
func (r *Registry) Pools() []*liquiditypool.Pool {
	out := make([]*liquiditypool.Pool, len(r.all))
	copy(out, r.all)
	return out
}

// PoolsForAsset returns the pools holding asset.
func (r *Registry) PoolsForAsset(a common.Address) []*liquiditypool.Pool {
	addrs := r.graph.PoolsForToken(a)
	if len(addrs) == 0 {
		return nil
	}
	out := make([]*liquiditypool.Pool, 0, len(addrs))
	for _, addr := range addrs {
		if pool, ok := r.byAddress[addr]; ok {
			out = append(out, pool)
		}
	}
	return out
}

// Views returns a snapshot of every pool in creation order.
func (r *Registry) Views() []liquiditypool.View {
	views := make([]liquiditypool.View, len(r.all))
	for i, pool := range r.all {
		views[i] = pool.View()
	}
	return views
}

// SwapFees implements liquiditypool.FeeSource.
func (r *Registry) SwapFees() liquiditypool.Fees {
	return r.fees
}

// SetFee sets the swap fee applied by every pool from the next swap on.
func (r *Registry) SetFee(caller common.Address, bps uint16) (err error) {
	defer r.rejected("set_fee", &err)

	if err := governance.Require(r.governance, caller); err != nil {
		return err
	}
	if bps > MaxFeeBps {
		return fmt.Errorf("%w: %d > %d", ErrFeeTooHigh, bps, MaxFeeBps)
	}

	frame := r.journal.Begin()
	defer frame.End(&err)

	old := r.fees.FeeBps
	r.fees.FeeBps = bps
	frame.OnRollback(func() { r.fees.FeeBps = old })
	frame.Emit(events.FeeUpdated{Old: old, New: bps})

	r.journal.AfterCommit(r.metrics.parameterUpdates.WithLabelValues("fee").Inc)
	r.logger.Info("swap fee updated", "old", old, "new", bps)
	return nil
}

// SetFeeRecipient sets the account protocol fees are paid to.
func (r *Registry) SetFeeRecipient(caller, recipient common.Address) (err error) {
	defer r.rejected("set_fee_recipient", &err)

	if err := governance.Require(r.governance, caller); err != nil {
		return err
	}
	if asset.IsZero(recipient) {
		return ErrZeroAddress
	}

	frame := r.journal.Begin()
	defer frame.End(&err)

	old := r.fees.Recipient
	r.fees.Recipient = recipient
	frame.OnRollback(func() { r.fees.Recipient = old })
	frame.Emit(events.FeeRecipientUpdated{Old: old, New: recipient})

	r.journal.AfterCommit(r.metrics.parameterUpdates.WithLabelValues("fee_recipient").Inc)
	r.logger.Info("fee recipient updated", "old", old, "new", recipient)
	return nil
}

// SetProtocolFeePortion sets the share of each swap fee paid to the fee
// recipient. The remainder stays in the pool's reserves.
func (r *Registry) SetProtocolFeePortion(caller common.Address, bps uint16) (err error) {
	defer r.rejected("set_protocol_fee_portion", &err)

	if err := governance.Require(r.governance, caller); err != nil {
		return err
	}
	if bps > MaxProtocolFeePortionBps {
		return fmt.Errorf("%w: %d > %d", ErrInvalidPortion, bps, MaxProtocolFeePortionBps)
	}

	frame := r.journal.Begin()
	defer frame.End(&err)

	old := r.fees.ProtocolFeePortionBps
	r.fees.ProtocolFeePortionBps = bps
	frame.OnRollback(func() { r.fees.ProtocolFeePortionBps = old })
	frame.Emit(events.ProtocolFeePortionUpdated{Old: old, New: bps})

	r.journal.AfterCommit(r.metrics.parameterUpdates.WithLabelValues("protocol_fee_portion").Inc)
	r.logger.Info("protocol fee portion updated", "old", old, "new", bps)
	return nil
}

func (r *Registry) rejected(op string, errp *error) {
	if *errp == nil {
		return
	}
	r.metrics.rejected.WithLabelValues(op).Inc()
	r.logger.Debug("registry call rejected", "op", op, "error", *errp)
}
