package uniswapv2

import "sort"

// Patcher builds the venue's next pool snapshot by applying diff to
// prevState. prevState is not modified and the result is ordered by pool ID.
func Patcher(prevState []Pool, diff UniswapV2SystemDiff) ([]Pool, error) {
	newStateMap := make(map[uint64]Pool, len(prevState)+len(diff.Additions))
	for _, pool := range prevState {
		newStateMap[pool.ID] = deepCopyPool(pool)
	}

	for _, poolIDToDelete := range diff.Deletions {
		delete(newStateMap, poolIDToDelete)
	}
	for _, updatedPool := range diff.Updates {
		newStateMap[updatedPool.ID] = deepCopyPool(updatedPool)
	}
	for _, addedPool := range diff.Additions {
		newStateMap[addedPool.ID] = deepCopyPool(addedPool)
	}

	finalState := make([]Pool, 0, len(newStateMap))
	for _, pool := range newStateMap {
		finalState = append(finalState, pool)
	}
	sort.Slice(finalState, func(i, j int) bool { return finalState[i].ID < finalState[j].ID })
	return finalState, nil
}
