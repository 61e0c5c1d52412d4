// Package tokenpoolregistry maintains the token/pool adjacency graph of a
// deployment: which pools connect which tokens.
package tokenpoolregistry

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolRegistryView is a deep copy of the graph's core data structures.
type TokenPoolRegistryView struct {
	Tokens      []common.Address `json:"tokens"`
	Pools       []common.Address `json:"pools"`
	Adjacency   [][]int          `json:"adjacency"`
	EdgeTargets []int            `json:"edgeTargets"`
	EdgePools   [][]int          `json:"edgePools"`
}

// TokenPoolRegistry manages the relationship between tokens and pools as a
// directed graph. Every pool adds an edge in both directions between each
// pair of its tokens. It is not safe for concurrent use.
type TokenPoolRegistry struct {
	tokenToIndex map[common.Address]int
	poolToIndex  map[common.Address]int

	tokens              []common.Address
	pools               []common.Address
	adjacency           [][]int
	edgeTargets         []int
	edgePools           [][]int
	danglingEdgeCount   int
	compactionThreshold int
}

// NewTokenPoolRegistry creates an empty graph. Removed pools leave dangling
// edges behind until their number exceeds compactionThreshold.
func NewTokenPoolRegistry(compactionThreshold int) *TokenPoolRegistry {
	if compactionThreshold <= 0 {
		compactionThreshold = 1000
	}
	return &TokenPoolRegistry{
		tokenToIndex:        make(map[common.Address]int),
		poolToIndex:         make(map[common.Address]int),
		compactionThreshold: compactionThreshold,
	}
}

// AddPool connects every pair of tokens through pool.
func (r *TokenPoolRegistry) AddPool(pool common.Address, tokens ...common.Address) {
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			r.addEdge(tokens[i], tokens[j], pool)
			r.addEdge(tokens[j], tokens[i], pool)
		}
	}
}

func (r *TokenPoolRegistry) tokenIndex(token common.Address) int {
	idx, exists := r.tokenToIndex[token]
	if !exists {
		idx = len(r.tokens)
		r.tokens = append(r.tokens, token)
		r.tokenToIndex[token] = idx
		r.adjacency = append(r.adjacency, nil)
	}
	return idx
}

func (r *TokenPoolRegistry) addEdge(from, to, pool common.Address) {
	fromIndex := r.tokenIndex(from)
	toIndex := r.tokenIndex(to)
	poolIndex, exists := r.poolToIndex[pool]
	if !exists {
		poolIndex = len(r.pools)
		r.pools = append(r.pools, pool)
		r.poolToIndex[pool] = poolIndex
	}

	for _, edgeIndex := range r.adjacency[fromIndex] {
		if r.edgeTargets[edgeIndex] != toIndex {
			continue
		}
		for _, existing := range r.edgePools[edgeIndex] {
			if existing == poolIndex {
				return
			}
		}
		if len(r.edgePools[edgeIndex]) == 0 {
			r.danglingEdgeCount--
		}
		r.edgePools[edgeIndex] = append(r.edgePools[edgeIndex], poolIndex)
		return
	}

	edgeIndex := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, toIndex)
	r.edgePools = append(r.edgePools, []int{poolIndex})
	r.adjacency[fromIndex] = append(r.adjacency[fromIndex], edgeIndex)
}

// RemovePool detaches pool from every edge. Edges left without pools are
// dangling until the next compaction.
func (r *TokenPoolRegistry) RemovePool(pool common.Address) {
	poolIndex, exists := r.poolToIndex[pool]
	if !exists {
		return
	}

	for edgeIndex, poolList := range r.edgePools {
		if len(poolList) == 0 {
			continue
		}
		kept := poolList[:0]
		removed := false
		for _, p := range poolList {
			if p == poolIndex {
				removed = true
				continue
			}
			kept = append(kept, p)
		}
		if removed {
			r.edgePools[edgeIndex] = kept
			if len(kept) == 0 {
				r.danglingEdgeCount++
			}
		}
	}

	if r.danglingEdgeCount > r.compactionThreshold {
		r.compact()
	}
}

// compact rebuilds the graph without dangling edges and without the tokens
// and pools only they referenced.
func (r *TokenPoolRegistry) compact() {
	if r.danglingEdgeCount == 0 {
		return
	}

	live := NewTokenPoolRegistry(r.compactionThreshold)
	for from, adj := range r.adjacency {
		for _, edgeIndex := range adj {
			for _, poolIndex := range r.edgePools[edgeIndex] {
				live.addEdge(r.tokens[from], r.tokens[r.edgeTargets[edgeIndex]], r.pools[poolIndex])
			}
		}
	}
	*r = *live
}

// PoolsForToken returns every pool holding token, ordered by the pools'
// index in the graph.
func (r *TokenPoolRegistry) PoolsForToken(token common.Address) []common.Address {
	tokenIndex, exists := r.tokenToIndex[token]
	if !exists {
		return nil
	}

	unique := make(map[int]struct{})
	for _, edgeIndex := range r.adjacency[tokenIndex] {
		for _, poolIndex := range r.edgePools[edgeIndex] {
			unique[poolIndex] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return nil
	}

	indices := make([]int, 0, len(unique))
	for idx := range unique {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	pools := make([]common.Address, len(indices))
	for i, idx := range indices {
		pools[i] = r.pools[idx]
	}
	return pools
}

// Neighbors returns the tokens reachable from token through one pool.
func (r *TokenPoolRegistry) Neighbors(token common.Address) []common.Address {
	tokenIndex, exists := r.tokenToIndex[token]
	if !exists {
		return nil
	}
	var out []common.Address
	for _, edgeIndex := range r.adjacency[tokenIndex] {
		if len(r.edgePools[edgeIndex]) > 0 {
			out = append(out, r.tokens[r.edgeTargets[edgeIndex]])
		}
	}
	return out
}

// View returns a deep copy of the graph's core data structures.
func (r *TokenPoolRegistry) View() *TokenPoolRegistryView {
	tokens := make([]common.Address, len(r.tokens))
	copy(tokens, r.tokens)

	pools := make([]common.Address, len(r.pools))
	copy(pools, r.pools)

	adjacency := make([][]int, len(r.adjacency))
	for i, adj := range r.adjacency {
		adjacency[i] = append([]int(nil), adj...)
	}

	edgeTargets := make([]int, len(r.edgeTargets))
	copy(edgeTargets, r.edgeTargets)

	edgePools := make([][]int, len(r.edgePools))
	for i, poolList := range r.edgePools {
		edgePools[i] = append([]int(nil), poolList...)
	}

	return &TokenPoolRegistryView{
		Tokens:      tokens,
		Pools:       pools,
		Adjacency:   adjacency,
		EdgeTargets: edgeTargets,
		EdgePools:   edgePools,
	}
}
