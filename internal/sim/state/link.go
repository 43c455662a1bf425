package state

import "sync/atomic"

// LinkWindow is a link-budget check flipped by scenario events. It is the
// stand-in for the range and line-of-sight model of the wider simulation.
type LinkWindow struct {
	up atomic.Bool
}

// NewLinkWindow returns a window in the given state.
func NewLinkWindow(up bool) *LinkWindow {
	w := &LinkWindow{}
	w.up.Store(up)
	return w
}

// LinkOK reports whether the link is currently up.
func (w *LinkWindow) LinkOK() bool { return w.up.Load() }

// Set opens or closes the window and returns the previous state.
func (w *LinkWindow) Set(up bool) bool { return w.up.Swap(up) }
