// Package liquiditypool implements a two-asset constant-product pool with a
// fungible LP-share ledger.
//
// A pool is created empty and initialized once with its canonical pair. Its
// reserves mirror the pool account's live ledger balances and are
// resynchronized at the end of every mutating call. Every mutating call runs
// inside a journal frame, so a failure at any step leaves no trace.
package liquiditypool

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-core/asset"
	"github.com/defistate/defistate-amm-core/events"
	"github.com/defistate/defistate-amm-core/journal"
	"github.com/defistate/defistate-amm-core/protocols/uniswapv2/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MinimumLiquidity is the number of shares locked to the zero address by a
// pool's first deposit when the lock is enabled.
const MinimumLiquidity = 1000

var (
	ErrAlreadyInitialized             = errors.New("pool already initialized")
	ErrNotInitialized                 = errors.New("pool not initialized")
	ErrInvalidAsset                   = errors.New("invalid pool asset")
	ErrInvalidProvider                = errors.New("invalid liquidity provider")
	ErrInsufficientDeposit            = errors.New("both deposit amounts must be positive")
	ErrInsufficientLiquidityMinted    = errors.New("insufficient liquidity minted")
	ErrInsufficientBalance            = errors.New("insufficient share balance")
	ErrInsufficientAmounts            = errors.New("insufficient amounts redeemed")
	ErrInvalidInputToken              = errors.New("input asset is not part of the pool")
	ErrInsufficientInputAmount        = errors.New("insufficient input amount")
	ErrInvalidRecipient               = errors.New("invalid recipient")
	ErrInsufficientOutput             = errors.New("insufficient output amount")
	ErrInsufficientLiquidityForOutput = errors.New("insufficient liquidity for output")
	ErrInvariantViolation             = errors.New("constant product decreased")
	// ErrReentrancy is returned when a mutating call reaches a pool that is
	// already executing one.
	ErrReentrancy = errors.New("pool is locked")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Fees are the swap fee parameters a pool reads on every swap.
type Fees struct {
	FeeBps                uint16         `json:"feeBps"`
	ProtocolFeePortionBps uint16         `json:"protocolFeePortionBps"`
	Recipient             common.Address `json:"recipient"`
}

// FeeSource supplies live fee parameters. The pool does not cache them, so a
// change applies to the next swap.
type FeeSource interface {
	SwapFees() Fees
}

// Config holds the dependencies of a single pool.
type Config struct {
	// Address is the pool's account on the ledger.
	Address common.Address
	Journal *journal.Journal
	Logger  Logger
	// Metrics is optional and may be shared by every pool of a registry.
	Metrics *Metrics
	// DisableMinimumLiquidityLock mints the whole first deposit to the provider.
	DisableMinimumLiquidityLock bool
}

func (c *Config) validate() error {
	if asset.IsZero(c.Address) {
		return errors.New("config: Address cannot be the zero address")
	}
	if c.Journal == nil {
		return errors.New("config: Journal cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// poolState is either uninitialized or *initialized.
type poolState interface {
	isPoolState()
}

type uninitialized struct{}

type initialized struct {
	pair        asset.Pair
	fees        FeeSource
	reserveLow  *uint256.Int
	reserveHigh *uint256.Int
	totalShares *uint256.Int
	shares      map[common.Address]*uint256.Int
}

func (uninitialized) isPoolState() {}
func (*initialized) isPoolState()  {}

// Pool is a single constant-product liquidity pool.
type Pool struct {
	address     common.Address
	journal     *journal.Journal
	logger      Logger
	metrics     *Metrics
	lockMinimum bool

	state  poolState
	locked bool
}

// New creates an uninitialized pool.
func New(cfg *Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pool{
		address:     cfg.Address,
		journal:     cfg.Journal,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		lockMinimum: !cfg.DisableMinimumLiquidityLock,
		state:       uninitialized{},
	}, nil
}

// Address returns the pool's ledger account.
func (p *Pool) Address() common.Address {
	return p.address
}

// Initialize binds the pool to its pair and fee source. It succeeds once.
func (p *Pool) Initialize(assetLow, assetHigh common.Address, fees FeeSource) error {
	if _, ok := p.state.(uninitialized); !ok {
		return ErrAlreadyInitialized
	}
	if asset.IsZero(assetLow) || asset.IsZero(assetHigh) || !asset.Less(assetLow, assetHigh) {
		return fmt.Errorf("%w: %s/%s", ErrInvalidAsset, assetLow.Hex(), assetHigh.Hex())
	}
	if fees == nil {
		return errors.New("pool: fee source cannot be nil")
	}

	prev := p.state
	p.state = &initialized{
		pair:        asset.Pair{Low: assetLow, High: assetHigh},
		fees:        fees,
		reserveLow:  new(uint256.Int),
		reserveHigh: new(uint256.Int),
		totalShares: new(uint256.Int),
		shares:      make(map[common.Address]*uint256.Int),
	}
	if f := p.journal.Current(); f != nil {
		f.OnRollback(func() { p.state = prev })
	}
	return nil
}

// Pair returns the canonical pair of an initialized pool.
func (p *Pool) Pair() (asset.Pair, error) {
	st, err := p.initialized()
	if err != nil {
		return asset.Pair{}, err
	}
	return st.pair, nil
}

// Reserves returns copies of the cached reserves.
func (p *Pool) Reserves() (low, high *uint256.Int) {
	st, err := p.initialized()
	if err != nil {
		return new(uint256.Int), new(uint256.Int)
	}
	return st.reserveLow.Clone(), st.reserveHigh.Clone()
}

// TotalShares returns the outstanding share supply.
func (p *Pool) TotalShares() *uint256.Int {
	st, err := p.initialized()
	if err != nil {
		return new(uint256.Int)
	}
	return st.totalShares.Clone()
}

// ShareBalance returns holder's share balance.
func (p *Pool) ShareBalance(holder common.Address) *uint256.Int {
	st, err := p.initialized()
	if err != nil {
		return new(uint256.Int)
	}
	if bal, ok := st.shares[holder]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

// AddLiquidity deposits amountA of the low asset and amountB of the high asset
// from provider and returns the shares minted to provider.
//
// The first deposit mints floorSqrt(amountA*amountB). Later deposits mint
// the smaller of the two proportional claims, each rounded down, so an
// unbalanced deposit is credited for its smaller side only and rounding never
// dilutes existing holders.
func (p *Pool) AddLiquidity(provider common.Address, amountA, amountB *uint256.Int) (minted *uint256.Int, err error) {
	defer p.observe("add_liquidity", time.Now(), &err)

	unlock, err := p.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := p.initialized()
	if err != nil {
		return nil, err
	}
	if asset.IsZero(provider) {
		return nil, ErrInvalidProvider
	}
	if amountA == nil || amountB == nil || amountA.IsZero() || amountB.IsZero() {
		return nil, ErrInsufficientDeposit
	}

	frame := p.journal.Begin()
	defer frame.End(&err)

	// checks
	var locked *uint256.Int
	if st.totalShares.IsZero() {
		total, err := calculator.InitialShares(amountA, amountB)
		if err != nil {
			return nil, err
		}
		minted = total
		if p.lockMinimum {
			locked = uint256.NewInt(MinimumLiquidity)
			if !total.Gt(locked) {
				return nil, fmt.Errorf("%w: first deposit mints %s shares, %d are locked", ErrInsufficientLiquidityMinted, total.Dec(), MinimumLiquidity)
			}
			minted = new(uint256.Int).Sub(total, locked)
		}
	} else {
		minted, err = calculator.MintShares(amountA, amountB, st.reserveLow, st.reserveHigh, st.totalShares)
		if err != nil {
			return nil, err
		}
	}
	if minted.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}

	// effects
	if locked != nil {
		if err := p.mint(frame, st, common.Address{}, locked); err != nil {
			return nil, err
		}
	}
	if err := p.mint(frame, st, provider, minted); err != nil {
		return nil, err
	}

	// interactions
	ledger := p.journal.Ledger()
	if err := ledger.Transfer(st.pair.Low, provider, p.address, amountA); err != nil {
		return nil, fmt.Errorf("deposit low asset: %w", err)
	}
	if err := ledger.Transfer(st.pair.High, provider, p.address, amountB); err != nil {
		return nil, fmt.Errorf("deposit high asset: %w", err)
	}
	p.sync(frame, st)

	frame.Emit(events.LiquidityAdded{
		Pool:         p.address,
		Provider:     provider,
		AmountA:      amountA.Clone(),
		AmountB:      amountB.Clone(),
		SharesMinted: minted.Clone(),
	})
	p.logger.Debug("liquidity added", "pool", p.address, "provider", provider, "amountA", amountA.Dec(), "amountB", amountB.Dec(), "shares", minted.Dec())
	return minted.Clone(), nil
}

// RemoveLiquidity burns shares held by provider and pays out the
// proportional amounts of both reserves, rounded down.
func (p *Pool) RemoveLiquidity(provider common.Address, shares *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	defer p.observe("remove_liquidity", time.Now(), &err)

	unlock, err := p.lock()
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	st, err := p.initialized()
	if err != nil {
		return nil, nil, err
	}
	// The zero address holds the locked minimum and never redeems it.
	if asset.IsZero(provider) {
		return nil, nil, ErrInvalidProvider
	}
	if shares == nil {
		return nil, nil, ErrInsufficientAmounts
	}
	balance, ok := st.shares[provider]
	if !ok || balance.Lt(shares) {
		return nil, nil, fmt.Errorf("%w: holder %s", ErrInsufficientBalance, provider.Hex())
	}

	frame := p.journal.Begin()
	defer frame.End(&err)

	amountA, amountB, err = calculator.RedeemShares(shares, st.reserveLow, st.reserveHigh, st.totalShares)
	if err != nil {
		return nil, nil, err
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, nil, ErrInsufficientAmounts
	}

	p.burn(frame, st, provider, shares)

	ledger := p.journal.Ledger()
	if err := ledger.Transfer(st.pair.Low, p.address, provider, amountA); err != nil {
		return nil, nil, fmt.Errorf("withdraw low asset: %w", err)
	}
	if err := ledger.Transfer(st.pair.High, p.address, provider, amountB); err != nil {
		return nil, nil, fmt.Errorf("withdraw high asset: %w", err)
	}
	p.sync(frame, st)

	frame.Emit(events.LiquidityRemoved{
		Pool:         p.address,
		Provider:     provider,
		AmountA:      amountA.Clone(),
		AmountB:      amountB.Clone(),
		SharesBurned: shares.Clone(),
	})
	p.logger.Debug("liquidity removed", "pool", p.address, "provider", provider, "amountA", amountA.Dec(), "amountB", amountB.Dec(), "shares", shares.Dec())
	return amountA, amountB, nil
}

// Swap pays out the output for amountIn of assetIn, which the caller must
// already have delivered to the pool's account. The input reserve used for
// pricing excludes the delivered amount. When the fee source names a
// protocol portion, that part of the fee is paid from the input to the fee
// recipient during the swap; the rest of the fee stays in reserves.
func (p *Pool) Swap(caller, assetIn common.Address, amountIn *uint256.Int, recipient common.Address) (amountOut *uint256.Int, err error) {
	defer p.observe("swap", time.Now(), &err)

	unlock, err := p.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := p.initialized()
	if err != nil {
		return nil, err
	}
	if !st.pair.Contains(assetIn) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInputToken, assetIn.Hex())
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if asset.IsZero(recipient) {
		return nil, ErrInvalidRecipient
	}

	frame := p.journal.Begin()
	defer frame.End(&err)

	cachedIn := st.reserveLow
	if assetIn == st.pair.High {
		cachedIn = st.reserveHigh
	}
	p.sync(frame, st)
	reserveInRaw, reserveOut := st.reserveLow, st.reserveHigh
	if assetIn == st.pair.High {
		reserveInRaw, reserveOut = st.reserveHigh, st.reserveLow
	}
	// The input must have arrived since the last sync.
	if delivered := new(uint256.Int).Sub(reserveInRaw, cachedIn); reserveInRaw.Lt(cachedIn) || delivered.Lt(amountIn) {
		return nil, fmt.Errorf("%w: %s of %s was not delivered", ErrInsufficientInputAmount, amountIn.Dec(), assetIn.Hex())
	}
	reserveIn := new(uint256.Int).Sub(reserveInRaw, amountIn)
	reserveOut = reserveOut.Clone()
	kBefore := calculator.Product(reserveIn, reserveOut)

	fees := st.fees.SwapFees()
	amountOut, err = calculator.GetAmountOut(amountIn, reserveIn, reserveOut, fees.FeeBps)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutput
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: output %s, reserve %s", ErrInsufficientLiquidityForOutput, amountOut.Dec(), reserveOut.Dec())
	}
	protocolFee, err := calculator.ProtocolFee(amountIn, fees.FeeBps, fees.ProtocolFeePortionBps)
	if err != nil {
		return nil, err
	}

	ledger := p.journal.Ledger()
	if !protocolFee.IsZero() && !asset.IsZero(fees.Recipient) {
		if err := ledger.Transfer(assetIn, p.address, fees.Recipient, protocolFee); err != nil {
			return nil, fmt.Errorf("pay protocol fee: %w", err)
		}
	} else {
		protocolFee = new(uint256.Int)
	}
	if err := ledger.Transfer(st.pair.Other(assetIn), p.address, recipient, amountOut); err != nil {
		return nil, fmt.Errorf("pay output: %w", err)
	}
	p.sync(frame, st)

	if kAfter := calculator.Product(st.reserveLow, st.reserveHigh); kAfter.Cmp(kBefore) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrInvariantViolation, kAfter.String(), kBefore.String())
	}

	frame.Emit(events.Swap{
		Pool:        p.address,
		Caller:      caller,
		AmountIn:    amountIn.Clone(),
		AmountOut:   amountOut.Clone(),
		AssetIn:     assetIn,
		Recipient:   recipient,
		ProtocolFee: protocolFee,
	})
	if p.metrics != nil && !protocolFee.IsZero() {
		fees := p.metrics.protocolFees.WithLabelValues(assetIn.Hex())
		amount := protocolFee.Float64()
		p.journal.AfterCommit(func() { fees.Add(amount) })
	}
	p.logger.Debug("swap executed", "pool", p.address, "caller", caller, "assetIn", assetIn, "amountIn", amountIn.Dec(), "amountOut", amountOut.Dec(), "protocolFee", protocolFee.Dec())
	return amountOut.Clone(), nil
}

// Quote returns the output Swap would pay for amountIn of assetIn against
// the cached reserves and the current fee. It does not change state.
func (p *Pool) Quote(assetIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	st, err := p.initialized()
	if err != nil {
		return nil, err
	}
	if !st.pair.Contains(assetIn) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInputToken, assetIn.Hex())
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	reserveIn, reserveOut := st.reserveLow, st.reserveHigh
	if assetIn == st.pair.High {
		reserveIn, reserveOut = st.reserveHigh, st.reserveLow
	}
	amountOut, err := calculator.GetAmountOut(amountIn, reserveIn, reserveOut, st.fees.SwapFees().FeeBps)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutput
	}
	if !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidityForOutput
	}
	return amountOut, nil
}

func (p *Pool) initialized() (*initialized, error) {
	st, ok := p.state.(*initialized)
	if !ok {
		return nil, ErrNotInitialized
	}
	return st, nil
}

// lock marks the pool busy until the returned release func runs.
func (p *Pool) lock() (func(), error) {
	if p.locked {
		return nil, ErrReentrancy
	}
	p.locked = true
	return func() { p.locked = false }, nil
}

func (p *Pool) mint(frame *journal.Frame, st *initialized, holder common.Address, amount *uint256.Int) error {
	total, overflow := new(uint256.Int).AddOverflow(st.totalShares, amount)
	if overflow {
		return fmt.Errorf("%w: share supply", calculator.ErrOverflow)
	}
	prev, had := st.shares[holder]
	balance := amount.Clone()
	if had {
		balance.Add(prev, amount)
	}
	prevTotal := st.totalShares

	st.shares[holder] = balance
	st.totalShares = total
	frame.OnRollback(func() {
		st.totalShares = prevTotal
		if had {
			st.shares[holder] = prev
		} else {
			delete(st.shares, holder)
		}
	})
	return nil
}

func (p *Pool) burn(frame *journal.Frame, st *initialized, holder common.Address, amount *uint256.Int) {
	prev := st.shares[holder]
	prevTotal := st.totalShares

	balance := new(uint256.Int).Sub(prev, amount)
	if balance.IsZero() {
		delete(st.shares, holder)
	} else {
		st.shares[holder] = balance
	}
	st.totalShares = new(uint256.Int).Sub(prevTotal, amount)
	frame.OnRollback(func() {
		st.totalShares = prevTotal
		st.shares[holder] = prev
	})
}

// sync reloads both reserves from the pool account's ledger balances.
func (p *Pool) sync(frame *journal.Frame, st *initialized) {
	prevLow, prevHigh := st.reserveLow, st.reserveHigh
	ledger := p.journal.Ledger()
	st.reserveLow = balanceOf(ledger, st.pair.Low, p.address)
	st.reserveHigh = balanceOf(ledger, st.pair.High, p.address)
	frame.OnRollback(func() {
		st.reserveLow, st.reserveHigh = prevLow, prevHigh
	})
}

func balanceOf(t asset.Transferer, token, holder common.Address) *uint256.Int {
	bal := t.BalanceOf(token, holder)
	if bal == nil {
		return new(uint256.Int)
	}
	return bal.Clone()
}

// observe runs after the operation's own frame has ended. A success is only
// counted once every enclosing frame commits; an enclosing rollback counts it
// as reverted instead.
func (p *Pool) observe(op string, start time.Time, errp *error) {
	if *errp != nil {
		p.logger.Debug("pool operation rejected", "pool", p.address, "op", op, "error", *errp)
	}
	if p.metrics == nil {
		return
	}
	p.metrics.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if *errp != nil {
		p.metrics.operations.WithLabelValues(op, "error").Inc()
		return
	}
	if f := p.journal.Current(); f != nil {
		f.OnRollback(p.metrics.operations.WithLabelValues(op, "reverted").Inc)
	}
	p.journal.AfterCommit(p.metrics.operations.WithLabelValues(op, "ok").Inc)
}
