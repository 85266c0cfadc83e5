// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct{ n int }

func (h *countingHandler) Interrupt() { h.n++ }

type regs struct{ last uint32 }

func (r *regs) In8(port uint16) uint8       { return uint8(port) }
func (r *regs) In16(port uint16) uint16     { return port }
func (r *regs) In32(port uint16) uint32     { return r.last }
func (r *regs) Out8(port uint16, v uint8)   { r.last = uint32(v) }
func (r *regs) Out16(port uint16, v uint16) { r.last = uint32(v) }
func (r *regs) Out32(port uint16, v uint32) { r.last = v }

func TestManagerPorts(t *testing.T) {
	bus := &PortBus{}
	dev := &regs{}
	require.NoError(t, bus.Map(0x300, 0x20, dev))
	m := NewManager(bus, &IrqBus{})

	w, err := m.ClaimPorts("lance0", 0x300, 0x20)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x10), w.Get8(0x10), "window offsets are device relative")
	w.Set32(0x10, 0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), w.Get32(0x10))
	assert.Equal(t, uint16(0xffff), bus.In16(0x400), "unmapped ports float high")

	_, err = m.ClaimPorts("other", 0x310, 4)
	assert.True(t, errors.Is(err, ErrBusy))

	w.Release()
	w.Release()
	assert.False(t, m.PortsClaimed(0x300, 0x20))
	_, err = m.ClaimPorts("other", 0x310, 4)
	assert.NoError(t, err)
}

func TestWindowBounds(t *testing.T) {
	m := NewManager(&regs{}, &IrqBus{})
	w, err := m.ClaimPorts("x", 0, 0x10)
	require.NoError(t, err)
	assert.Panics(t, func() { w.Get32(0x0e) })
}

func TestManagerIrq(t *testing.T) {
	irqs := &IrqBus{}
	m := NewManager(&regs{}, irqs)
	a, b := &countingHandler{}, &countingHandler{}

	ia, err := m.ClaimIrq("a", 11, a)
	require.NoError(t, err)
	ib, err := m.ClaimIrq("b", 11, b)
	require.NoError(t, err, "lines are shared")
	_, err = m.ClaimIrq("a", 11, a)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, []string{"a", "b"}, m.IrqOwners(11))

	irqs.Raise(11)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)

	ia.Release()
	ia.Release()
	irqs.Raise(11)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 2, b.n)
	assert.Equal(t, uint64(2), irqs.Raised(11))

	ib.Release()
	assert.Zero(t, irqs.Registered(11))
	assert.Empty(t, m.IrqOwners(11))
}
