// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBusy is returned when a port range or interrupt line is already owned.
var ErrBusy = errors.New("resource busy")

// Resources grants exclusive port windows and interrupt lines to drivers.
type Resources interface {
	ClaimPorts(owner string, base, n uint16) (*Window, error)
	ClaimIrq(owner string, irq uint, h Interrupter) (*Irq, error)
}

// Irq is a claimed interrupt line.
type Irq struct {
	Line  uint
	Owner string

	h       Interrupter
	release func(*Irq)
}

// Release unregisters the handler.  Calling it more than once is harmless.
func (i *Irq) Release() {
	if f := i.release; f != nil {
		i.release = nil
		f(i)
	}
}

func (i *Irq) String() string { return fmt.Sprintf("%s: irq %d", i.Owner, i.Line) }

type portClaim struct {
	owner     string
	base, len uint16
}

// Manager is the Resources implementation: it tracks port ownership and
// registers interrupt handlers with an IrqController.
type Manager struct {
	IO   PortIO
	Irqs IrqController

	mu    sync.Mutex
	ports []portClaim
	lines map[uint][]string
}

func NewManager(io PortIO, irqs IrqController) *Manager {
	return &Manager{IO: io, Irqs: irqs, lines: make(map[uint][]string)}
}

func (m *Manager) ClaimPorts(owner string, base, n uint16) (w *Window, err error) {
	if n == 0 || uint32(base)+uint32(n) > 1<<16 {
		err = fmt.Errorf("%s: invalid port range 0x%x/%d", owner, base, n)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.ports {
		if base < c.base+c.len && c.base < base+n {
			err = fmt.Errorf("%s: ports 0x%x/%d held by %s: %w", owner, base, n, c.owner, ErrBusy)
			return
		}
	}
	m.ports = append(m.ports, portClaim{owner: owner, base: base, len: n})
	w = &Window{io: m.IO, Base: base, Len: n, Owner: owner, release: m.releasePorts}
	return
}

func (m *Manager) releasePorts(w *Window) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.ports {
		if c.base == w.Base && c.owner == w.Owner {
			m.ports = append(m.ports[:i], m.ports[i+1:]...)
			return
		}
	}
}

func (m *Manager) ClaimIrq(owner string, line uint, h Interrupter) (*Irq, error) {
	if err := m.Irqs.Register(line, h); err != nil {
		return nil, fmt.Errorf("%s: irq %d: %w", owner, line, err)
	}
	m.mu.Lock()
	m.lines[line] = append(m.lines[line], owner)
	m.mu.Unlock()
	return &Irq{Line: line, Owner: owner, h: h, release: m.releaseIrq}, nil
}

func (m *Manager) releaseIrq(i *Irq) {
	m.Irqs.Unregister(i.Line, i.h)
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := m.lines[i.Line]
	for x, o := range owners {
		if o == i.Owner {
			m.lines[i.Line] = append(owners[:x:x], owners[x+1:]...)
			break
		}
	}
	if len(m.lines[i.Line]) == 0 {
		delete(m.lines, i.Line)
	}
}

// PortsClaimed reports whether any claimed window overlaps the range.
func (m *Manager) PortsClaimed(base, n uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.ports {
		if base < c.base+c.len && c.base < base+n {
			return true
		}
	}
	return false
}

// IrqOwners lists the owners that hold the line.
func (m *Manager) IrqOwners(line uint) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines[line]...)
}
