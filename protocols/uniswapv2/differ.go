package uniswapv2

// --- Diff Structures with Helper Methods ---

type UniswapV2SystemDiff struct {
	Additions []Pool   `json:"additions,omitempty"`
	Updates   []Pool   `json:"updates,omitempty"`
	Deletions []uint64 `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d UniswapV2SystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two snapshots of the venue's
// pools, keyed by pool ID. Only reserve changes count as updates.
func Differ(old, new []Pool) UniswapV2SystemDiff {
	oldPoolsMap := make(map[uint64]Pool, len(old))
	for _, pool := range old {
		oldPoolsMap[pool.ID] = pool
	}

	newPoolsMap := make(map[uint64]Pool, len(new))
	for _, pool := range new {
		newPoolsMap[pool.ID] = pool
	}

	var additions []Pool
	var updates []Pool
	var deletions []uint64

	// Walk the slices rather than the maps so the diff is deterministic.
	for _, newPool := range new {
		oldPool, exists := oldPoolsMap[newPool.ID]
		if !exists {
			additions = append(additions, newPool)
			continue
		}
		if !oldPool.Reserve0.Eq(newPool.Reserve0) || !oldPool.Reserve1.Eq(newPool.Reserve1) {
			updates = append(updates, newPool)
		}
	}

	for _, oldPool := range old {
		if _, exists := newPoolsMap[oldPool.ID]; !exists {
			deletions = append(deletions, oldPool.ID)
		}
	}

	return UniswapV2SystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
