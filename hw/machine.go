// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

// Machine is an in-process platform: a port bus, shared interrupt lines
// and a DMA heap, with a Manager granting them to drivers.
type Machine struct {
	Ports *PortBus
	Irqs  *IrqBus
	Heap  *Heap
	*Manager
}

const (
	DefaultHeapBase = 0x00100000
	DefaultHeapSize = 1 << 20
)

func NewMachine(heapBase uint64, heapSize uint) *Machine {
	m := &Machine{
		Ports: &PortBus{},
		Irqs:  &IrqBus{},
		Heap:  NewHeap(heapBase, heapSize),
	}
	m.Manager = NewManager(m.Ports, m.Irqs)
	return m
}
