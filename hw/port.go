// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hw is the platform boundary seen by the NIC cores: i/o ports,
// interrupt lines and DMA-able memory.
package hw

import (
	"fmt"
	"sort"
	"sync"
)

// PortIO performs x86 style i/o port cycles.
type PortIO interface {
	In8(port uint16) uint8
	In16(port uint16) uint16
	In32(port uint16) uint32
	Out8(port uint16, v uint8)
	Out16(port uint16, v uint16)
	Out32(port uint16, v uint32)
}

// Window is a claimed range of i/o ports [Base, Base+Len).
// Offsets are relative to Base and must fall inside the window.
type Window struct {
	io    PortIO
	Base  uint16
	Len   uint16
	Owner string

	release func(*Window)
}

func (w *Window) port(o, n uint16) uint16 {
	if o+n > w.Len {
		panic(fmt.Errorf("%s: port offset 0x%x width %d outside window 0x%x/%d", w.Owner, o, n, w.Base, w.Len))
	}
	return w.Base + o
}

func (w *Window) Get8(o uint16) uint8      { return w.io.In8(w.port(o, 1)) }
func (w *Window) Get16(o uint16) uint16    { return w.io.In16(w.port(o, 2)) }
func (w *Window) Get32(o uint16) uint32    { return w.io.In32(w.port(o, 4)) }
func (w *Window) Set8(o uint16, v uint8)   { w.io.Out8(w.port(o, 1), v) }
func (w *Window) Set16(o uint16, v uint16) { w.io.Out16(w.port(o, 2), v) }
func (w *Window) Set32(o uint16, v uint32) { w.io.Out32(w.port(o, 4), v) }

// Release hands the ports back to the Resources that granted them.
// Calling it more than once is harmless.
func (w *Window) Release() {
	if f := w.release; f != nil {
		w.release = nil
		f(w)
	}
}

func (w *Window) String() string {
	return fmt.Sprintf("%s: ports 0x%x-0x%x", w.Owner, w.Base, w.Base+w.Len-1)
}

// PortDevice decodes a fixed range of ports on a PortBus.
// Ports passed to it are offsets from the start of the range.
type PortDevice interface {
	PortIO
}

type portMapping struct {
	base, len uint16
	dev       PortDevice
}

// PortBus routes port cycles to the PortDevice mapped at the port.
// Unclaimed ports float high.
type PortBus struct {
	mu       sync.RWMutex
	mappings []portMapping
}

func (b *PortBus) Map(base, n uint16, d PortDevice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.mappings {
		if base < m.base+m.len && m.base < base+n {
			return fmt.Errorf("ports 0x%x/%d overlap 0x%x/%d: %w", base, n, m.base, m.len, ErrBusy)
		}
	}
	b.mappings = append(b.mappings, portMapping{base, n, d})
	sort.Slice(b.mappings, func(i, j int) bool { return b.mappings[i].base < b.mappings[j].base })
	return nil
}

func (b *PortBus) Unmap(base uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.mappings {
		if m.base == base {
			b.mappings = append(b.mappings[:i], b.mappings[i+1:]...)
			return
		}
	}
}

func (b *PortBus) find(port uint16) (PortDevice, uint16, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := sort.Search(len(b.mappings), func(i int) bool {
		m := &b.mappings[i]
		return m.base+m.len > port
	})
	if i < len(b.mappings) && b.mappings[i].base <= port {
		m := &b.mappings[i]
		return m.dev, port - m.base, true
	}
	return nil, 0, false
}

func (b *PortBus) In8(port uint16) uint8 {
	if d, o, ok := b.find(port); ok {
		return d.In8(o)
	}
	return 0xff
}

func (b *PortBus) In16(port uint16) uint16 {
	if d, o, ok := b.find(port); ok {
		return d.In16(o)
	}
	return 0xffff
}

func (b *PortBus) In32(port uint16) uint32 {
	if d, o, ok := b.find(port); ok {
		return d.In32(o)
	}
	return 0xffffffff
}

func (b *PortBus) Out8(port uint16, v uint8) {
	if d, o, ok := b.find(port); ok {
		d.Out8(o, v)
	}
}

func (b *PortBus) Out16(port uint16, v uint16) {
	if d, o, ok := b.find(port); ok {
		d.Out16(o, v)
	}
}

func (b *PortBus) Out32(port uint16, v uint32) {
	if d, o, ok := b.find(port); ok {
		d.Out32(o, v)
	}
}
