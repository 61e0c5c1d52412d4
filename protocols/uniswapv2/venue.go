// Package uniswapv2 is an in-process constant-product exchange with
// multi-hop exact-input swaps. The router forwards trades to it when no
// internal pool exists for a pair.
package uniswapv2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-core/asset"
	"github.com/defistate/defistate-amm-core/journal"
	"github.com/defistate/defistate-amm-core/protocols/uniswapv2/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrExpired                  = errors.New("deadline expired")
	ErrInvalidPath              = errors.New("invalid swap path")
	ErrPoolNotFound             = errors.New("no pool for pair")
	ErrPoolExists               = errors.New("pool already exists")
	ErrInsufficientInputAmount  = errors.New("insufficient input amount")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	ErrInsufficientLiquidity    = errors.New("insufficient liquidity")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Config struct {
	// Account holds every pool's reserves on the ledger.
	Account common.Address
	Journal *journal.Journal
	Logger  Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) validate() error {
	if asset.IsZero(c.Account) {
		return errors.New("config: Account cannot be the zero address")
	}
	if c.Journal == nil {
		return errors.New("config: Journal cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Venue holds a set of pools, at most one per pair.
type Venue struct {
	account common.Address
	journal *journal.Journal
	logger  Logger
	now     func() time.Time

	pools  []*Pool
	byPair map[asset.PoolKey]*Pool
}

func NewVenue(cfg *Config) (*Venue, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Venue{
		account: cfg.Account,
		journal: cfg.Journal,
		logger:  cfg.Logger,
		now:     now,
		byPair:  make(map[asset.PoolKey]*Pool),
	}, nil
}

// Account returns the ledger account holding the venue's reserves.
func (v *Venue) Account() common.Address {
	return v.account
}

// AddPool opens a market for (tokenA, tokenB) funded by provider.
func (v *Venue) AddPool(provider, tokenA, tokenB common.Address, amountA, amountB *uint256.Int, feeBps uint16) (pool Pool, err error) {
	pair, err := asset.NewPair(tokenA, tokenB)
	if err != nil {
		return Pool{}, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	if _, exists := v.byPair[pair.Key()]; exists {
		return Pool{}, ErrPoolExists
	}
	if amountA == nil || amountB == nil || amountA.IsZero() || amountB.IsZero() {
		return Pool{}, ErrInsufficientLiquidity
	}
	if feeBps >= calculator.BasisPointDivisor {
		return Pool{}, fmt.Errorf("%w: %d", calculator.ErrFeeOutOfRange, feeBps)
	}

	frame := v.journal.Begin()
	defer frame.End(&err)

	ledger := v.journal.Ledger()
	if err := ledger.Transfer(tokenA, provider, v.account, amountA); err != nil {
		return Pool{}, err
	}
	if err := ledger.Transfer(tokenB, provider, v.account, amountB); err != nil {
		return Pool{}, err
	}

	p := &Pool{
		ID:       uint64(len(v.pools)),
		Token0:   pair.Low,
		Token1:   pair.High,
		Reserve0: amountA.Clone(),
		Reserve1: amountB.Clone(),
		FeeBps:   feeBps,
	}
	if pair.Low != tokenA {
		p.Reserve0, p.Reserve1 = p.Reserve1, p.Reserve0
	}
	v.pools = append(v.pools, p)
	v.byPair[pair.Key()] = p
	frame.OnRollback(func() {
		v.pools = v.pools[:p.ID]
		delete(v.byPair, pair.Key())
	})

	v.logger.Info("venue pool added", "id", p.ID, "token0", p.Token0, "token1", p.Token1, "feeBps", feeBps)
	return deepCopyPool(*p), nil
}

// Pools returns a deep copy of every pool.
func (v *Venue) Pools() []Pool {
	out := make([]Pool, len(v.pools))
	for i, p := range v.pools {
		out[i] = deepCopyPool(*p)
	}
	return out
}

// GetAmountsOut prices amountIn along path without changing state.
func (v *Venue) GetAmountsOut(amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	amounts, _, err := v.quote(amountIn, path)
	return amounts, err
}

// SwapExactIn pulls amountIn of path[0] from payer, swaps it hop by hop along
// path and pays the final output to recipient. deadline is a unix time in
// seconds. The returned slice holds the amount entering each hop followed by
// the final output.
func (v *Venue) SwapExactIn(ctx context.Context, payer common.Address, amountIn, minOut *uint256.Int, path []common.Address, recipient common.Address, deadline uint64) (amounts []*uint256.Int, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if now := v.now().Unix(); now < 0 || uint64(now) > deadline {
		return nil, fmt.Errorf("%w: %d", ErrExpired, deadline)
	}
	if asset.IsZero(recipient) {
		return nil, fmt.Errorf("%w: zero recipient", ErrInvalidPath)
	}

	amounts, hops, err := v.quote(amountIn, path)
	if err != nil {
		return nil, err
	}
	out := amounts[len(amounts)-1]
	if minOut != nil && out.Lt(minOut) {
		return nil, fmt.Errorf("%w: %s < %s", ErrInsufficientOutputAmount, out.Dec(), minOut.Dec())
	}

	frame := v.journal.Begin()
	defer frame.End(&err)

	ledger := v.journal.Ledger()
	if err := ledger.Transfer(path[0], payer, v.account, amountIn); err != nil {
		return nil, err
	}
	for i, p := range hops {
		prev0, prev1 := p.Reserve0, p.Reserve1
		in, hopOut := amounts[i], amounts[i+1]
		if path[i] == p.Token0 {
			p.Reserve0 = new(uint256.Int).Add(prev0, in)
			p.Reserve1 = new(uint256.Int).Sub(prev1, hopOut)
		} else {
			p.Reserve1 = new(uint256.Int).Add(prev1, in)
			p.Reserve0 = new(uint256.Int).Sub(prev0, hopOut)
		}
		frame.OnRollback(func() { p.Reserve0, p.Reserve1 = prev0, prev1 })
	}
	if err := ledger.Transfer(path[len(path)-1], v.account, recipient, out); err != nil {
		return nil, err
	}

	v.logger.Debug("venue swap", "payer", payer, "recipient", recipient, "hops", len(hops), "amountIn", amountIn.Dec(), "amountOut", out.Dec())
	return amounts, nil
}

// quote prices every hop of path against current reserves. A path may use
// each pool once.
func (v *Venue) quote(amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, []*Pool, error) {
	if len(path) < 2 {
		return nil, nil, fmt.Errorf("%w: %d tokens", ErrInvalidPath, len(path))
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, nil, ErrInsufficientInputAmount
	}

	amounts := make([]*uint256.Int, len(path))
	amounts[0] = amountIn.Clone()
	hops := make([]*Pool, len(path)-1)
	seen := make(map[*Pool]struct{}, len(hops))
	for i := 0; i < len(path)-1; i++ {
		pair, err := asset.NewPair(path[i], path[i+1])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: hop %d: %w", ErrInvalidPath, i, err)
		}
		p, ok := v.byPair[pair.Key()]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, path[i].Hex(), path[i+1].Hex())
		}
		if _, dup := seen[p]; dup {
			return nil, nil, fmt.Errorf("%w: pool %d used twice", ErrInvalidPath, p.ID)
		}
		seen[p] = struct{}{}
		reserveIn, reserveOut := p.reserves(path[i])
		out, err := calculator.GetAmountOut(amounts[i], reserveIn, reserveOut, p.FeeBps)
		if err != nil {
			return nil, nil, err
		}
		if out.IsZero() || !out.Lt(reserveOut) {
			return nil, nil, fmt.Errorf("%w: hop %d yields %s", ErrInsufficientLiquidity, i, out.Dec())
		}
		amounts[i+1] = out
		hops[i] = p
	}
	return amounts, hops, nil
}
