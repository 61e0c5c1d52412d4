package tokenregistry

import "github.com/ethereum/go-ethereum/common"

// Token is the display metadata of an asset. The settlement core itself only
// ever sees Address.
type Token struct {
	ID       uint64         `json:"id"`
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}
