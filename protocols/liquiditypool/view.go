package liquiditypool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// View is a point-in-time copy of a pool's public state.
type View struct {
	Address     common.Address `json:"address"`
	Initialized bool           `json:"initialized"`
	AssetLow    common.Address `json:"assetLow"`
	AssetHigh   common.Address `json:"assetHigh"`
	ReserveLow  *uint256.Int   `json:"reserveLow"`
	ReserveHigh *uint256.Int   `json:"reserveHigh"`
	TotalShares *uint256.Int   `json:"totalShares"`
	FeeBps      uint16         `json:"feeBps"`
}

// View returns a snapshot that later pool operations do not modify.
func (p *Pool) View() View {
	st, err := p.initialized()
	if err != nil {
		return View{
			Address:     p.address,
			ReserveLow:  new(uint256.Int),
			ReserveHigh: new(uint256.Int),
			TotalShares: new(uint256.Int),
		}
	}
	return View{
		Address:     p.address,
		Initialized: true,
		AssetLow:    st.pair.Low,
		AssetHigh:   st.pair.High,
		ReserveLow:  st.reserveLow.Clone(),
		ReserveHigh: st.reserveHigh.Clone(),
		TotalShares: st.totalShares.Clone(),
		FeeBps:      st.fees.SwapFees().FeeBps,
	}
}

type Diff struct {
	Additions []View           `json:"additions,omitempty"`
	Updates   []View           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d Diff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two sets of pool views, keyed by
// pool address. A pool counts as updated when its reserves, share supply or
// fee changed. Output follows the order of the inputs.
func Differ(old, new []View) Diff {
	oldByAddress := make(map[common.Address]View, len(old))
	for _, v := range old {
		oldByAddress[v.Address] = v
	}
	newByAddress := make(map[common.Address]struct{}, len(new))

	var diff Diff
	for _, v := range new {
		newByAddress[v.Address] = struct{}{}
		prev, exists := oldByAddress[v.Address]
		if !exists {
			diff.Additions = append(diff.Additions, v)
			continue
		}
		if changed(prev, v) {
			diff.Updates = append(diff.Updates, v)
		}
	}
	for _, v := range old {
		if _, exists := newByAddress[v.Address]; !exists {
			diff.Deletions = append(diff.Deletions, v.Address)
		}
	}
	return diff
}

func changed(a, b View) bool {
	return a.Initialized != b.Initialized ||
		a.FeeBps != b.FeeBps ||
		!eq(a.ReserveLow, b.ReserveLow) ||
		!eq(a.ReserveHigh, b.ReserveHigh) ||
		!eq(a.TotalShares, b.TotalShares)
}

func eq(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Eq(b)
}
