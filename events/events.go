// Package events defines the notifications produced by the settlement core.
//
// Notifications are read-only projections for indexers. They are emitted only
// after the operation that produced them has fully committed.
package events

import (
	"github.com/defistate/defistate-amm-core/asset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Name identifies a notification kind on the wire.
type Name string

const (
	NamePoolCreated               Name = "PoolCreated"
	NameLiquidityAdded            Name = "LiquidityAdded"
	NameLiquidityRemoved          Name = "LiquidityRemoved"
	NameSwap                      Name = "Swap"
	NameSwapForwarded             Name = "SwapForwarded"
	NameForwardingFeeUpdated      Name = "ForwardingFeeUpdated"
	NameFeeUpdated                Name = "FeeUpdated"
	NameFeeRecipientUpdated       Name = "FeeRecipientUpdated"
	NameProtocolFeePortionUpdated Name = "ProtocolFeePortionUpdated"
)

// Event is implemented by every notification type.
type Event interface {
	EventName() Name
}

// Emitter receives committed notifications.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every notification.
var Discard Emitter = EmitterFunc(func(Event) {})

type PoolCreated struct {
	AssetLow  common.Address `json:"assetLow"`
	AssetHigh common.Address `json:"assetHigh"`
	Pool      common.Address `json:"pool"`
	Key       asset.PoolKey  `json:"key"`
	Index     uint64         `json:"index"`
}

type LiquidityAdded struct {
	Pool         common.Address `json:"pool"`
	Provider     common.Address `json:"provider"`
	AmountA      *uint256.Int   `json:"amountA"`
	AmountB      *uint256.Int   `json:"amountB"`
	SharesMinted *uint256.Int   `json:"sharesMinted"`
}

type LiquidityRemoved struct {
	Pool         common.Address `json:"pool"`
	Provider     common.Address `json:"provider"`
	AmountA      *uint256.Int   `json:"amountA"`
	AmountB      *uint256.Int   `json:"amountB"`
	SharesBurned *uint256.Int   `json:"sharesBurned"`
}

// Swap is emitted by a pool for every completed swap. ProtocolFee is the part
// of the fee paid out to the fee recipient during the swap.
type Swap struct {
	Pool        common.Address `json:"pool"`
	Caller      common.Address `json:"caller"`
	AmountIn    *uint256.Int   `json:"amountIn"`
	AmountOut   *uint256.Int   `json:"amountOut"`
	AssetIn     common.Address `json:"assetIn"`
	Recipient   common.Address `json:"recipient"`
	ProtocolFee *uint256.Int   `json:"protocolFee"`
}

// SwapForwarded is emitted by the router when a trade is sent to the
// external AMM.
type SwapForwarded struct {
	Caller    common.Address `json:"caller"`
	AssetIn   common.Address `json:"assetIn"`
	AssetOut  common.Address `json:"assetOut"`
	AmountIn  *uint256.Int   `json:"amountIn"`
	Fee       *uint256.Int   `json:"fee"`
	AmountOut *uint256.Int   `json:"amountOut"`
	Recipient common.Address `json:"recipient"`
}

type ForwardingFeeUpdated struct {
	Old uint16 `json:"old"`
	New uint16 `json:"new"`
}

type FeeUpdated struct {
	Old uint16 `json:"old"`
	New uint16 `json:"new"`
}

type FeeRecipientUpdated struct {
	Old common.Address `json:"old"`
	New common.Address `json:"new"`
}

type ProtocolFeePortionUpdated struct {
	Old uint16 `json:"old"`
	New uint16 `json:"new"`
}

func (PoolCreated) EventName() Name               { return NamePoolCreated }
func (LiquidityAdded) EventName() Name            { return NameLiquidityAdded }
func (LiquidityRemoved) EventName() Name          { return NameLiquidityRemoved }
func (Swap) EventName() Name                      { return NameSwap }
func (SwapForwarded) EventName() Name             { return NameSwapForwarded }
func (ForwardingFeeUpdated) EventName() Name      { return NameForwardingFeeUpdated }
func (FeeUpdated) EventName() Name                { return NameFeeUpdated }
func (FeeRecipientUpdated) EventName() Name       { return NameFeeRecipientUpdated }
func (ProtocolFeePortionUpdated) EventName() Name { return NameProtocolFeePortionUpdated }
