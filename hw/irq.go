// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"fmt"
	"sync"
)

// Interrupter is called from the platform's interrupt context.
// Implementations must not block and must be comparable, normally a
// pointer to the driver.
type Interrupter interface {
	Interrupt()
}

// IrqController connects interrupt lines to handlers.
type IrqController interface {
	Register(irq uint, h Interrupter) error
	Unregister(irq uint, h Interrupter)
}

// IrqBus is an in-process IrqController.  Lines are shared; Raise calls
// every handler registered on the line in registration order.
type IrqBus struct {
	mu       sync.RWMutex
	handlers map[uint][]Interrupter
	raised   map[uint]uint64
}

func (b *IrqBus) Register(irq uint, h Interrupter) error {
	if h == nil {
		return fmt.Errorf("irq %d: nil handler", irq)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[uint][]Interrupter)
	}
	for _, x := range b.handlers[irq] {
		if x == h {
			return fmt.Errorf("irq %d: handler already registered: %w", irq, ErrBusy)
		}
	}
	b.handlers[irq] = append(b.handlers[irq], h)
	return nil
}

func (b *IrqBus) Unregister(irq uint, h Interrupter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[irq]
	for i, x := range hs {
		if x == h {
			b.handlers[irq] = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(b.handlers[irq]) == 0 {
		delete(b.handlers, irq)
	}
}

// Raise asserts the line once.
func (b *IrqBus) Raise(irq uint) {
	b.mu.Lock()
	if b.raised == nil {
		b.raised = make(map[uint]uint64)
	}
	b.raised[irq]++
	hs := append([]Interrupter(nil), b.handlers[irq]...)
	b.mu.Unlock()
	for _, h := range hs {
		h.Interrupt()
	}
}

// Raised returns how many times the line has been asserted.
func (b *IrqBus) Raised(irq uint) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.raised[irq]
}

func (b *IrqBus) Registered(irq uint) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[irq])
}
