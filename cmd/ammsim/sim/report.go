package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/defistate/defistate-amm-core/protocols/liquiditypool"
	"github.com/defistate/defistate-amm-core/protocols/tokenregistry"
	"github.com/defistate/defistate-amm-core/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// --- VISUAL CONSTANTS ---
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Red   = "\033[31m"
	Green = "\033[32m"
	Cyan  = "\033[36m"
)

// ErrReplayMismatch is returned when replaying a diff does not reproduce the
// state it was computed from.
var ErrReplayMismatch = errors.New("diff replay does not match final state")

// Snapshot is the observable state of a deployment at one point in time.
type Snapshot struct {
	Pools []liquiditypool.View `json:"pools"`
	Venue []uniswapv2.Pool     `json:"venue"`
}

func (d *Deployment) Snapshot() Snapshot {
	return Snapshot{
		Pools: d.Pools.Views(),
		Venue: d.Venue.Pools(),
	}
}

// Changes is what a scenario did to the pools.
type Changes struct {
	Pools liquiditypool.Diff            `json:"pools"`
	Venue uniswapv2.UniswapV2SystemDiff `json:"venue"`
}

// IsEmpty returns true if nothing changed.
func (c Changes) IsEmpty() bool {
	return c.Pools.IsEmpty() && c.Venue.IsEmpty()
}

func Diff(before, after Snapshot) Changes {
	return Changes{
		Pools: liquiditypool.Differ(before.Pools, after.Pools),
		Venue: uniswapv2.Differ(before.Venue, after.Venue),
	}
}

// Replay applies c to before the way an indexer following the diffs would.
func Replay(before Snapshot, c Changes) (Snapshot, error) {
	pools, err := liquiditypool.Patcher(before.Pools, c.Pools)
	if err != nil {
		return Snapshot{}, err
	}
	venue, err := uniswapv2.Patcher(before.Venue, c.Venue)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Pools: pools, Venue: venue}, nil
}

// WriteReport prints the step results, the final pools and balances, and the
// JSON diff between before and after.
func (d *Deployment) WriteReport(out io.Writer, results []Result, accounts Accounts, before, after Snapshot) error {
	header(out, "STEPS")
	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "#\tACTION\tOUTCOME\t")
	fmt.Fprintln(w, "-\t------\t-------\t")
	for _, r := range results {
		outcome := Green + r.Detail + Reset
		if r.Err != nil {
			outcome = Red + "rejected: " + r.Err.Error() + Reset
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t\n", r.Index, r.Action, outcome)
	}
	w.Flush()

	header(out, "POOLS")
	w = tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tPAIR\tRESERVES\tSHARES\tFEE\t")
	fmt.Fprintln(w, "-------\t----\t--------\t------\t---\t")
	for _, v := range after.Pools {
		low, high := d.token(v.AssetLow), d.token(v.AssetHigh)
		fmt.Fprintf(w, "%s\t%s/%s\t%s / %s\t%s\t%d\t\n",
			v.Address.Hex(), low.Symbol, high.Symbol,
			low.FormatUnits(v.ReserveLow), high.FormatUnits(v.ReserveHigh),
			v.TotalShares.Dec(), v.FeeBps)
	}
	w.Flush()

	header(out, "VENUE POOLS")
	w = tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ID\tPAIR\tRESERVES\tFEE\t")
	fmt.Fprintln(w, "--\t----\t--------\t---\t")
	for _, p := range after.Venue {
		t0, t1 := d.token(p.Token0), d.token(p.Token1)
		fmt.Fprintf(w, "%d\t%s/%s\t%s / %s\t%d\t\n",
			p.ID, t0.Symbol, t1.Symbol, t0.FormatUnits(p.Reserve0), t1.FormatUnits(p.Reserve1), p.FeeBps)
	}
	w.Flush()

	header(out, "BALANCES")
	tokens := d.Tokens.All()
	w = tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprint(w, "ACCOUNT\t")
	for _, t := range tokens {
		fmt.Fprintf(w, "%s\t", t.Symbol)
	}
	fmt.Fprintln(w)
	for _, name := range accounts.Names() {
		fmt.Fprintf(w, "%s\t", name)
		for _, t := range tokens {
			fmt.Fprintf(w, "%s\t", t.FormatUnits(d.Ledger.BalanceOf(t.Address, accounts[name])))
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	header(out, "DIFF")
	changes := Diff(before, after)
	replayed, err := Replay(before, changes)
	if err != nil {
		return err
	}
	if !Diff(replayed, after).IsEmpty() {
		return ErrReplayMismatch
	}
	diff, err := json.MarshalIndent(changes, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(diff))
	return err
}

// token falls back to the raw address for assets without metadata.
func (d *Deployment) token(addr common.Address) tokenregistry.Token {
	if t, ok := d.Tokens.GetByAddress(addr); ok {
		return t
	}
	return tokenregistry.Token{Address: addr, Symbol: addr.Hex()}
}

// header prints a styled section header
func header(out io.Writer, title string) {
	fmt.Fprintln(out, "\n"+Bold+Cyan+":: "+title+" ::"+Reset)
}

