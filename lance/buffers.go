// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

import (
	"fmt"
	"io"
	"net"

	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/nic"
)

const (
	log2InitBlockAlign  = 2
	log2DescriptorAlign = 4
	log2BufferAlign     = 4
)

// BufferManager owns the one DMA region holding, in order, the init
// block, the rx descriptors, the tx descriptors, the rx buffers and the
// tx buffers.  The region does not move until Free.
type BufferManager struct {
	name   string
	arena  *dma.Arena
	ib     InitBlock
	ibSpan dma.Span
	rxDesc dma.Span
	txDesc dma.Span

	Rx RxRing
	Tx TxRing
}

// NewBufferManager lays out and allocates the region, then writes the init
// block and both rings in place.  The rx ring is handed to the device.
func NewBufferManager(alloc hw.Allocator, c *Config, addr net.HardwareAddr, counters *nic.Counters) (m *BufferManager, err error) {
	if err = c.validate(); err != nil {
		return
	}
	rxCur, err := dma.NewCursor(uint32(c.RxRingLen))
	if err != nil {
		return nil, fmt.Errorf("rx: %w", err)
	}
	txCur, err := dma.NewCursor(uint32(c.TxRingLen))
	if err != nil {
		return nil, fmt.Errorf("tx: %w", err)
	}

	m = &BufferManager{name: c.Name}
	var l dma.Layout
	m.ibSpan = l.Reserve(InitBlockBytes, log2InitBlockAlign)
	m.rxDesc = l.Reserve(uint32(c.RxRingLen)*DescriptorBytes, log2DescriptorAlign)
	m.txDesc = l.Reserve(uint32(c.TxRingLen)*DescriptorBytes, log2DescriptorAlign)
	rxBufs := make([]dma.Span, c.RxRingLen)
	for i := range rxBufs {
		rxBufs[i] = l.Reserve(uint32(c.BufferBytes), log2BufferAlign)
	}
	txBufs := make([]dma.Span, c.TxRingLen)
	for i := range txBufs {
		txBufs[i] = l.Reserve(uint32(c.BufferBytes), log2BufferAlign)
	}
	if m.arena, err = dma.NewArena(alloc, &l); err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}

	m.Rx = RxRing{
		ring: ring{name: c.Name, a: m.arena, bufs: rxBufs, cur: rxCur, counters: counters},
		desc: make([]RxDescriptor, c.RxRingLen),
	}
	for i := range m.Rx.desc {
		m.Rx.desc[i].a = m.arena
		m.Rx.desc[i].off = m.rxDesc.At(uint32(i * DescriptorBytes))
	}
	m.Tx = TxRing{
		ring:  ring{name: c.Name, a: m.arena, bufs: txBufs, cur: txCur, counters: counters},
		desc:  make([]TxDescriptor, c.TxRingLen),
		dirty: txCur,
	}
	for i := range m.Tx.desc {
		m.Tx.desc[i].a = m.arena
		m.Tx.desc[i].off = m.txDesc.At(uint32(i * DescriptorBytes))
	}

	m.ib = InitBlock{
		Mode:          c.Mode | ModeDrx | ModeDtx,
		RxLog2:        dma.Log2Len(uint32(c.RxRingLen)),
		TxLog2:        dma.Log2Len(uint32(c.TxRingLen)),
		Address:       append(net.HardwareAddr(nil), addr...),
		LogicalFilter: c.LogicalFilter,
		RxRing:        m.arena.Phys(m.rxDesc.Off),
		TxRing:        m.arena.Phys(m.txDesc.Off),
	}
	if err = m.ib.MarshalTo(m.arena.Bytes(m.ibSpan)); err != nil {
		m.arena.Free()
		return nil, err
	}
	m.Rx.arm()
	return
}

// InitBlockAddress is the bus address the chip is given in CSR1/CSR2.
func (m *BufferManager) InitBlockAddress() uint32 { return m.arena.Phys(m.ibSpan.Off) }

func (m *BufferManager) InitBlock() InitBlock { return m.ib }

// Region is the DMA region backing everything.
func (m *BufferManager) Region() *hw.Region { return m.arena.Region() }

func (m *BufferManager) Transmit(p []byte) error { return m.Tx.Transmit(p) }

// Receive takes the next completed rx descriptor; see TakeCompletedPacket.
func (m *BufferManager) Receive() ([]byte, bool) { return m.Rx.TakeCompletedPacket() }

func (m *BufferManager) Reap() int { return m.Tx.Reap() }

// reset brings both rings back to slot 0 for a re-initialization; the
// device must be stopped.
func (m *BufferManager) reset() (dropped int) {
	dropped = m.Tx.reclaim()
	m.Rx.arm()
	return
}

// Free releases the region.  Calling it more than once is harmless.
func (m *BufferManager) Free() {
	if m.arena != nil && !m.arena.Freed() {
		m.arena.Free()
	}
}

func (m *BufferManager) Freed() bool { return m.arena == nil || m.arena.Freed() }

// Dump prints every region of the arena.
func (m *BufferManager) Dump(w io.Writer) {
	if m.Freed() {
		fmt.Fprintf(w, "%s: buffers freed\n", m.name)
		return
	}
	fmt.Fprintf(w, "%s: %v\n", m.name, m.arena.Region())
	fmt.Fprintf(w, "  init block %v @ 0x%08x: %v\n", m.ibSpan, m.InitBlockAddress(), &m.ib)
	fmt.Fprintf(w, "  rx ring %v, current %v, %d bytes per buffer\n", m.rxDesc, m.Rx.cur, m.Rx.bufs[0].Len)
	for i := range m.Rx.desc {
		fmt.Fprintf(w, "    %d: %v\n", i, &m.Rx.desc[i])
	}
	fmt.Fprintf(w, "  tx ring %v, current %v, dirty %v, in flight %d\n", m.txDesc, m.Tx.cur, m.Tx.dirty, m.Tx.inflight)
	for i := range m.Tx.desc {
		fmt.Fprintf(w, "    %d: %v\n", i, &m.Tx.desc[i])
	}
}
