// Package governance provides the controller check that gates configuration
// changes in the registry and router.
package governance

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotController is returned when a gated call comes from anyone but the controller.
	ErrNotController = errors.New("caller is not the controller")
	// ErrZeroAddress is returned when the zero address is proposed as controller.
	ErrZeroAddress = errors.New("controller cannot be the zero address")
	// ErrNotPendingController is returned when someone other than the proposed controller accepts.
	ErrNotPendingController = errors.New("caller is not the pending controller")
)

// Authorizer answers whether an identity may change configuration.
type Authorizer interface {
	IsController(caller common.Address) bool
}

// Require returns ErrNotController unless caller is authorized.
func Require(auth Authorizer, caller common.Address) error {
	if !auth.IsController(caller) {
		return fmt.Errorf("%w: %s", ErrNotController, caller.Hex())
	}
	return nil
}

// Controller authorizes exactly one identity at a time. Control changes hands
// in two steps: the current controller proposes a successor, and the
// successor accepts.
type Controller struct {
	current common.Address
	pending common.Address
}

// NewController creates a Controller held by initial.
func NewController(initial common.Address) (*Controller, error) {
	if initial == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	return &Controller{current: initial}, nil
}

// IsController implements Authorizer.
func (c *Controller) IsController(caller common.Address) bool {
	return caller == c.current
}

// Current returns the controlling identity.
func (c *Controller) Current() common.Address {
	return c.current
}

// Pending returns the proposed successor, or the zero address.
func (c *Controller) Pending() common.Address {
	return c.pending
}

// TransferControl proposes next as the successor. Proposing the zero
// address cancels a pending proposal.
func (c *Controller) TransferControl(caller, next common.Address) error {
	if err := Require(c, caller); err != nil {
		return err
	}
	c.pending = next
	return nil
}

// AcceptControl completes a hand-over started by TransferControl.
func (c *Controller) AcceptControl(caller common.Address) error {
	if c.pending == (common.Address{}) || caller != c.pending {
		return ErrNotPendingController
	}
	c.current = c.pending
	c.pending = common.Address{}
	return nil
}
