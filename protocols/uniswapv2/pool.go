package uniswapv2

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pool is one constant-product market of the venue.
type Pool struct {
	ID       uint64         `json:"id"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *uint256.Int   `json:"reserve0"`
	Reserve1 *uint256.Int   `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"` // i.e 30 for 0.3%
}

// deepCopyPool creates a Pool that shares no memory with p.
func deepCopyPool(p Pool) Pool {
	newPool := p
	if p.Reserve0 != nil {
		newPool.Reserve0 = p.Reserve0.Clone()
	}
	if p.Reserve1 != nil {
		newPool.Reserve1 = p.Reserve1.Clone()
	}
	return newPool
}

// reserves orders the pool's reserves as (in, out) for a swap of tokenIn.
func (p *Pool) reserves(tokenIn common.Address) (in, out *uint256.Int) {
	if tokenIn == p.Token0 {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}
