// SPDX-License-Identifier: MIT

package adapters

import "context"

// NewCustomCancelContext carries the parent's values but is done when the
// channel closes, not when the parent cancels.
func NewCustomCancelContext(parent context.Context, ch <-chan struct{}) context.Context {
	return customCancelContext{Context: parent, ch: ch}
}

func (c customCancelContext) Done() <-chan struct{} {
	return c.ch
}

func (c customCancelContext) Err() error {
	select {
	case <-c.ch:
		return context.Canceled
	default:
		return nil
	}
}
