package sim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/defistate/defistate-amm-core/asset"
	"github.com/defistate/defistate-amm-core/protocols/liquiditypool"
	"github.com/defistate/defistate-amm-core/protocols/tokenregistry"
	"github.com/defistate/defistate-amm-core/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

// SwapTTL is the deadline given to forwarded swaps.
const SwapTTL = 5 * time.Minute

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrInvalidStep    = errors.New("invalid step")
	ErrNoPool         = errors.New("no pool for pair")
	ErrUnexpected     = errors.New("step succeeded but an error was expected")
)

// Scenario is a named set of accounts and the steps run against a
// deployment, in order.
type Scenario struct {
	Accounts map[string]string `yaml:"accounts"`
	Steps    []Step            `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	// ExpectError requires the step to fail with an error containing it.
	ExpectError string `yaml:"expectError"`

	Mint                  *MintStep      `yaml:"mint"`
	CreatePool            *PairStep      `yaml:"createPool"`
	AddLiquidity          *LiquidityStep `yaml:"addLiquidity"`
	RemoveLiquidity       *RemoveStep    `yaml:"removeLiquidity"`
	Swap                  *SwapStep      `yaml:"swap"`
	SetFee                *ParamStep     `yaml:"setFee"`
	SetProtocolFeePortion *ParamStep     `yaml:"setProtocolFeePortion"`
	SetForwardingFee      *ParamStep     `yaml:"setForwardingFee"`
	SetFeeRecipient       *RecipientStep `yaml:"setFeeRecipient"`
	VenuePool             *VenuePoolStep `yaml:"venuePool"`
}

type MintStep struct {
	To     string `yaml:"to"`
	Token  string `yaml:"token"`
	Amount string `yaml:"amount"`
}

type PairStep struct {
	TokenA string `yaml:"tokenA"`
	TokenB string `yaml:"tokenB"`
}

type LiquidityStep struct {
	Provider string `yaml:"provider"`
	TokenA   string `yaml:"tokenA"`
	TokenB   string `yaml:"tokenB"`
	AmountA  string `yaml:"amountA"`
	AmountB  string `yaml:"amountB"`
}

// RemoveStep burns Shares, in base units, or the provider's whole balance
// when Shares is "all".
type RemoveStep struct {
	Provider string `yaml:"provider"`
	TokenA   string `yaml:"tokenA"`
	TokenB   string `yaml:"tokenB"`
	Shares   string `yaml:"shares"`
}

type SwapStep struct {
	Caller    string `yaml:"caller"`
	TokenIn   string `yaml:"tokenIn"`
	TokenOut  string `yaml:"tokenOut"`
	AmountIn  string `yaml:"amountIn"`
	MinOut    string `yaml:"minOut"`
	Recipient string `yaml:"recipient"`
}

// ParamStep sets a basis-point parameter. As defaults to the controller.
type ParamStep struct {
	As  string `yaml:"as"`
	Bps uint16 `yaml:"bps"`
}

type RecipientStep struct {
	As        string `yaml:"as"`
	Recipient string `yaml:"recipient"`
}

type VenuePoolStep struct {
	Provider string `yaml:"provider"`
	TokenA   string `yaml:"tokenA"`
	TokenB   string `yaml:"tokenB"`
	AmountA  string `yaml:"amountA"`
	AmountB  string `yaml:"amountB"`
	FeeBps   uint16 `yaml:"feeBps"`
}

// Result records the outcome of one step.
type Result struct {
	Index  int
	Action string
	Detail string
	// Err is the expected error of a step that failed as scripted.
	Err error
}

// LoadScenario reads the YAML scenario at path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	for i, step := range sc.Steps {
		if _, err := step.action(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return &sc, nil
}

// Accounts maps scenario account names to addresses.
type Accounts map[string]common.Address

// ResolveAccounts parses the scenario's named accounts.
func (sc *Scenario) ResolveAccounts() (Accounts, error) {
	accounts := make(Accounts, len(sc.Accounts))
	for name, hex := range sc.Accounts {
		if !common.IsHexAddress(hex) {
			return nil, fmt.Errorf("%w: %s has address %q", ErrUnknownAccount, name, hex)
		}
		accounts[name] = common.HexToAddress(hex)
	}
	return accounts, nil
}

// Names returns the account names in sorted order.
func (a Accounts) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a Accounts) resolve(ref string) (common.Address, error) {
	if addr, ok := a[ref]; ok {
		return addr, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownAccount, ref)
}

func (s Step) action() (string, error) {
	set := map[string]bool{
		"mint":                  s.Mint != nil,
		"createPool":            s.CreatePool != nil,
		"addLiquidity":          s.AddLiquidity != nil,
		"removeLiquidity":       s.RemoveLiquidity != nil,
		"swap":                  s.Swap != nil,
		"setFee":                s.SetFee != nil,
		"setProtocolFeePortion": s.SetProtocolFeePortion != nil,
		"setForwardingFee":      s.SetForwardingFee != nil,
		"setFeeRecipient":       s.SetFeeRecipient != nil,
		"venuePool":             s.VenuePool != nil,
	}
	var actions []string
	for name, ok := range set {
		if ok {
			actions = append(actions, name)
		}
	}
	if len(actions) != 1 {
		sort.Strings(actions)
		return "", fmt.Errorf("%w: want exactly one action, got %v", ErrInvalidStep, actions)
	}
	return actions[0], nil
}

// Run executes every step of sc. It stops at the first step whose outcome
// differs from the script and returns the results so far.
func (d *Deployment) Run(ctx context.Context, sc *Scenario) ([]Result, error) {
	accounts, err := sc.ResolveAccounts()
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		action, err := step.action()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i, err)
		}

		detail, err := d.apply(ctx, accounts, step)
		switch {
		case step.ExpectError == "" && err != nil:
			return results, fmt.Errorf("step %d (%s): %w", i, action, err)
		case step.ExpectError != "" && err == nil:
			return results, fmt.Errorf("step %d (%s): %w: %q", i, action, ErrUnexpected, step.ExpectError)
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			return results, fmt.Errorf("step %d (%s): want error containing %q: %w", i, action, step.ExpectError, err)
		}

		d.logger.Info("step applied", "index", i, "action", action, "detail", detail, "error", err)
		results = append(results, Result{Index: i, Action: action, Detail: detail, Err: err})
	}
	return results, nil
}

func (d *Deployment) apply(ctx context.Context, accounts Accounts, s Step) (string, error) {
	switch {
	case s.Mint != nil:
		return d.mint(accounts, s.Mint)
	case s.CreatePool != nil:
		a, b, err := d.tokenPair(s.CreatePool.TokenA, s.CreatePool.TokenB)
		if err != nil {
			return "", err
		}
		pool, err := d.Pools.CreatePool(a.Address, b.Address)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s/%s at %s", a.Symbol, b.Symbol, pool.Address().Hex()), nil
	case s.AddLiquidity != nil:
		return d.addLiquidity(accounts, s.AddLiquidity)
	case s.RemoveLiquidity != nil:
		return d.removeLiquidity(accounts, s.RemoveLiquidity)
	case s.Swap != nil:
		return d.swap(ctx, accounts, s.Swap)
	case s.SetFee != nil:
		return d.param(accounts, s.SetFee, d.Pools.SetFee)
	case s.SetProtocolFeePortion != nil:
		return d.param(accounts, s.SetProtocolFeePortion, d.Pools.SetProtocolFeePortion)
	case s.SetForwardingFee != nil:
		return d.param(accounts, s.SetForwardingFee, d.Router.SetForwardingFee)
	case s.SetFeeRecipient != nil:
		caller, err := d.caller(accounts, s.SetFeeRecipient.As)
		if err != nil {
			return "", err
		}
		recipient, err := accounts.resolve(s.SetFeeRecipient.Recipient)
		if err != nil {
			return "", err
		}
		return recipient.Hex(), d.Pools.SetFeeRecipient(caller, recipient)
	case s.VenuePool != nil:
		return d.venuePool(accounts, s.VenuePool)
	}
	return "", ErrInvalidStep
}

func (d *Deployment) mint(accounts Accounts, s *MintStep) (string, error) {
	to, err := accounts.resolve(s.To)
	if err != nil {
		return "", err
	}
	token, err := d.Tokens.Resolve(s.Token)
	if err != nil {
		return "", err
	}
	amount, err := token.ParseUnits(s.Amount)
	if err != nil {
		return "", err
	}
	if err := d.Ledger.Mint(token.Address, to, amount); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s to %s", token.FormatUnits(amount), token.Symbol, s.To), nil
}

func (d *Deployment) addLiquidity(accounts Accounts, s *LiquidityStep) (string, error) {
	provider, err := accounts.resolve(s.Provider)
	if err != nil {
		return "", err
	}
	pool, a, b, err := d.pool(s.TokenA, s.TokenB)
	if err != nil {
		return "", err
	}
	amountA, amountB, err := parsePair(a, b, s.AmountA, s.AmountB)
	if err != nil {
		return "", err
	}
	if !asset.Less(a.Address, b.Address) {
		amountA, amountB = amountB, amountA
	}
	minted, err := pool.AddLiquidity(provider, amountA, amountB)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s shares minted to %s", minted.Dec(), s.Provider), nil
}

func (d *Deployment) removeLiquidity(accounts Accounts, s *RemoveStep) (string, error) {
	provider, err := accounts.resolve(s.Provider)
	if err != nil {
		return "", err
	}
	pool, a, b, err := d.pool(s.TokenA, s.TokenB)
	if err != nil {
		return "", err
	}
	var shares *uint256.Int
	if s.Shares == "all" {
		shares = pool.ShareBalance(provider)
	} else if shares, err = uint256.FromDecimal(s.Shares); err != nil {
		return "", fmt.Errorf("%w: shares %q: %w", ErrInvalidStep, s.Shares, err)
	}
	outLow, outHigh, err := pool.RemoveLiquidity(provider, shares)
	if err != nil {
		return "", err
	}
	low, high := a, b
	if !asset.Less(a.Address, b.Address) {
		low, high = b, a
	}
	return fmt.Sprintf("%s shares burned for %s %s and %s %s",
		shares.Dec(), low.FormatUnits(outLow), low.Symbol, high.FormatUnits(outHigh), high.Symbol), nil
}

func (d *Deployment) swap(ctx context.Context, accounts Accounts, s *SwapStep) (string, error) {
	caller, err := accounts.resolve(s.Caller)
	if err != nil {
		return "", err
	}
	recipient := caller
	if s.Recipient != "" {
		if recipient, err = accounts.resolve(s.Recipient); err != nil {
			return "", err
		}
	}
	in, out, err := d.tokenPair(s.TokenIn, s.TokenOut)
	if err != nil {
		return "", err
	}
	amountIn, err := in.ParseUnits(s.AmountIn)
	if err != nil {
		return "", err
	}
	minOut := new(uint256.Int)
	if s.MinOut != "" {
		if minOut, err = out.ParseUnits(s.MinOut); err != nil {
			return "", err
		}
	}

	path := "internal"
	if _, ok := d.Pools.LookupPool(in.Address, out.Address); !ok {
		path = "forwarded"
	}
	amountOut, err := d.Router.Swap(ctx, caller, router.SwapParams{
		AssetIn:      in.Address,
		AssetOut:     out.Address,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Recipient:    recipient,
		Deadline:     uint64(time.Now().Add(SwapTTL).Unix()),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s for %s %s (%s)",
		in.FormatUnits(amountIn), in.Symbol, out.FormatUnits(amountOut), out.Symbol, path), nil
}

func (d *Deployment) param(accounts Accounts, s *ParamStep, set func(common.Address, uint16) error) (string, error) {
	caller, err := d.caller(accounts, s.As)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d bps", s.Bps), set(caller, s.Bps)
}

func (d *Deployment) venuePool(accounts Accounts, s *VenuePoolStep) (string, error) {
	provider, err := accounts.resolve(s.Provider)
	if err != nil {
		return "", err
	}
	a, b, err := d.tokenPair(s.TokenA, s.TokenB)
	if err != nil {
		return "", err
	}
	amountA, amountB, err := parsePair(a, b, s.AmountA, s.AmountB)
	if err != nil {
		return "", err
	}
	pool, err := d.Venue.AddPool(provider, a.Address, b.Address, amountA, amountB, s.FeeBps)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("venue pool %d %s/%s", pool.ID, a.Symbol, b.Symbol), nil
}

func (d *Deployment) caller(accounts Accounts, as string) (common.Address, error) {
	if as == "" {
		return d.Controller, nil
	}
	return accounts.resolve(as)
}

func (d *Deployment) tokenPair(refA, refB string) (tokenregistry.Token, tokenregistry.Token, error) {
	a, err := d.Tokens.Resolve(refA)
	if err != nil {
		return tokenregistry.Token{}, tokenregistry.Token{}, err
	}
	b, err := d.Tokens.Resolve(refB)
	if err != nil {
		return tokenregistry.Token{}, tokenregistry.Token{}, err
	}
	return a, b, nil
}

func (d *Deployment) pool(refA, refB string) (*liquiditypool.Pool, tokenregistry.Token, tokenregistry.Token, error) {
	a, b, err := d.tokenPair(refA, refB)
	if err != nil {
		return nil, a, b, err
	}
	pool, ok := d.Pools.LookupPool(a.Address, b.Address)
	if !ok {
		return nil, a, b, fmt.Errorf("%w: %s/%s", ErrNoPool, a.Symbol, b.Symbol)
	}
	return pool, a, b, nil
}

func parsePair(a, b tokenregistry.Token, amountA, amountB string) (*uint256.Int, *uint256.Int, error) {
	x, err := a.ParseUnits(amountA)
	if err != nil {
		return nil, nil, err
	}
	y, err := b.ParseUnits(amountB)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}
