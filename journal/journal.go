// Package journal makes multi-step operations all-or-nothing.
//
// A Frame snapshots the ledger, collects undo actions for in-memory state and
// buffers notifications. Ending a frame with an error reverts the ledger to
// the snapshot and runs the undo actions newest first; ending it cleanly
// folds it into its parent, or, for the outermost frame, emits the buffered
// notifications. The core is single-threaded, so one Journal is shared by
// every component of a deployment.
package journal

import (
	"errors"

	"github.com/defistate/defistate-amm-core/asset"
	"github.com/defistate/defistate-amm-core/events"
)

// ErrFrameOrder is returned when frames are not ended innermost first.
var ErrFrameOrder = errors.New("journal frame ended out of order")

// finaliser is implemented by ledgers that can discard journal history once
// an outermost operation has committed.
type finaliser interface {
	Finalise()
}

// Journal coordinates frames over one ledger and one emitter.
type Journal struct {
	ledger  asset.Ledger
	emitter events.Emitter
	stack   []*Frame
}

// New creates a Journal. A nil emitter discards notifications.
func New(ledger asset.Ledger, emitter events.Emitter) *Journal {
	if emitter == nil {
		emitter = events.Discard
	}
	return &Journal{ledger: ledger, emitter: emitter}
}

// Ledger returns the ledger the journal snapshots.
func (j *Journal) Ledger() asset.Ledger {
	return j.ledger
}

// Depth returns the number of open frames.
func (j *Journal) Depth() int {
	return len(j.stack)
}

// Current returns the innermost open frame, or nil.
func (j *Journal) Current() *Frame {
	if len(j.stack) == 0 {
		return nil
	}
	return j.stack[len(j.stack)-1]
}

// AfterCommit runs fn once the outermost open frame commits, or immediately
// when no frame is open. fn is dropped if any enclosing frame rolls back.
func (j *Journal) AfterCommit(fn func()) {
	if f := j.Current(); f != nil {
		f.OnCommit(fn)
		return
	}
	fn()
}

// Begin opens a frame nested inside any frame already open.
func (j *Journal) Begin() *Frame {
	f := &Frame{
		j:        j,
		snapshot: j.ledger.Snapshot(),
		depth:    len(j.stack),
	}
	j.stack = append(j.stack, f)
	return f
}

// Frame is one unit of work.
type Frame struct {
	j        *Journal
	snapshot int
	depth    int
	undo     []func()
	commit   []func()
	pending  []events.Event
	done     bool
}

// OnRollback registers fn to run if the frame is rolled back.
func (f *Frame) OnRollback(fn func()) {
	f.undo = append(f.undo, fn)
}

// OnCommit registers fn to run after the outermost frame commits.
func (f *Frame) OnCommit(fn func()) {
	f.commit = append(f.commit, fn)
}

// Emit buffers a notification until the outermost frame commits.
func (f *Frame) Emit(e events.Event) {
	f.pending = append(f.pending, e)
}

// End commits the frame when *errp is nil and rolls it back otherwise. It is
// meant to be deferred right after Begin with a pointer to the named error
// result of the calling operation.
func (f *Frame) End(errp *error) {
	if errp != nil && *errp != nil {
		f.Rollback()
		return
	}
	if err := f.Commit(); err != nil && errp != nil {
		*errp = err
	}
}

// Commit closes the frame successfully.
func (f *Frame) Commit() error {
	if f.done {
		return nil
	}
	if err := f.pop(); err != nil {
		f.rollback()
		return err
	}

	if f.depth > 0 {
		parent := f.j.stack[f.depth-1]
		parent.undo = append(parent.undo, f.undo...)
		parent.commit = append(parent.commit, f.commit...)
		parent.pending = append(parent.pending, f.pending...)
		return nil
	}

	if fin, ok := f.j.ledger.(finaliser); ok {
		fin.Finalise()
	}
	for _, e := range f.pending {
		f.j.emitter.Emit(e)
	}
	for _, fn := range f.commit {
		fn()
	}
	return nil
}

// Rollback discards every effect recorded since Begin.
func (f *Frame) Rollback() {
	if f.done {
		return
	}
	// A frame ended out of order still gets its own effects undone.
	_ = f.pop()
	f.rollback()
}

func (f *Frame) rollback() {
	f.j.ledger.RevertToSnapshot(f.snapshot)
	for i := len(f.undo) - 1; i >= 0; i-- {
		f.undo[i]()
	}
	f.undo = nil
	f.commit = nil
	f.pending = nil
}

func (f *Frame) pop() error {
	f.done = true
	top := len(f.j.stack) - 1
	if top < 0 || f.j.stack[top] != f {
		return ErrFrameOrder
	}
	f.j.stack = f.j.stack[:top]
	return nil
}
