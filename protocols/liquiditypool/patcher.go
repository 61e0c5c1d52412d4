package liquiditypool

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrPatchMismatch = errors.New("diff does not apply to previous views")

func cloneView(v View) View {
	out := v
	if v.ReserveLow != nil {
		out.ReserveLow = v.ReserveLow.Clone()
	}
	if v.ReserveHigh != nil {
		out.ReserveHigh = v.ReserveHigh.Clone()
	}
	if v.TotalShares != nil {
		out.TotalShares = v.TotalShares.Clone()
	}
	return out
}

// Patcher applies diff to prev and returns the next set of views, leaving
// prev untouched. Surviving pools keep their order and additions follow in
// diff order, so Patcher(old, Differ(old, new)) reproduces new whenever new
// extends old.
func Patcher(prev []View, diff Diff) ([]View, error) {
	index := make(map[common.Address]int, len(prev))
	next := make([]View, 0, len(prev)+len(diff.Additions))
	for _, v := range prev {
		index[v.Address] = len(next)
		next = append(next, cloneView(v))
	}

	for _, v := range diff.Updates {
		i, ok := index[v.Address]
		if !ok {
			return nil, fmt.Errorf("%w: update for unknown pool %s", ErrPatchMismatch, v.Address.Hex())
		}
		next[i] = cloneView(v)
	}
	for _, v := range diff.Additions {
		if _, ok := index[v.Address]; ok {
			return nil, fmt.Errorf("%w: pool %s already present", ErrPatchMismatch, v.Address.Hex())
		}
		index[v.Address] = len(next)
		next = append(next, cloneView(v))
	}

	if len(diff.Deletions) == 0 {
		return next, nil
	}
	deleted := make(map[common.Address]struct{}, len(diff.Deletions))
	for _, addr := range diff.Deletions {
		if _, ok := index[addr]; !ok {
			return nil, fmt.Errorf("%w: deletion of unknown pool %s", ErrPatchMismatch, addr.Hex())
		}
		deleted[addr] = struct{}{}
	}
	kept := next[:0]
	for _, v := range next {
		if _, gone := deleted[v.Address]; !gone {
			kept = append(kept, v)
		}
	}
	return kept, nil
}
