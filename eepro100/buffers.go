// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"fmt"
	"io"

	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/nic"
)

const (
	log2SelfTestAlign = 4
	log2StatsAlign    = 4
	log2RecordAlign   = 2
)

// BufferManager owns the DMA region: self-test block, statistics dump
// block, receive frame area and command block list, in that order.  Each
// frame descriptor and command block carries its data area inline.
type BufferManager struct {
	name     string
	arena    *dma.Arena
	selfTest dma.Span
	stats    dma.Span

	Rx RxRing
	Tx TxRing
}

func NewBufferManager(alloc hw.Allocator, c *Config, counters *nic.Counters) (m *BufferManager, err error) {
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
	m.selfTest = l.Reserve(SelfTestBytes, log2SelfTestAlign)
	m.stats = l.Reserve(StatsBytes, log2StatsAlign)
	reserve := func(n uint) (r []record) {
		r = make([]record, n)
		for i := range r {
			h := l.Reserve(RecHeaderBytes+uint32(c.BufferBytes), log2RecordAlign)
			r[i].off = h.Off
			r[i].data = dma.Span{Off: h.Off + RecHeaderBytes, Len: uint32(c.BufferBytes)}
		}
		return
	}
	rx := reserve(c.RxRingLen)
	tx := reserve(c.TxRingLen)
	if m.arena, err = dma.NewArena(alloc, &l); err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}

	m.Rx = RxRing{
		ring:   ring{name: c.Name, a: m.arena, cur: rxCur, counters: counters},
		frames: make([]RxFrame, len(rx)),
	}
	for i := range rx {
		rx[i].a = m.arena
		m.Rx.frames[i].record = rx[i]
	}
	m.Tx = TxRing{
		ring:      ring{name: c.Name, a: m.arena, cur: txCur, counters: counters},
		blocks:    make([]TxBlock, len(tx)),
		dirty:     txCur,
		Threshold: initialThreshold,
	}
	for i := range tx {
		tx[i].a = m.arena
		m.Tx.blocks[i].record = tx[i]
		m.Tx.blocks[i].free()
	}
	m.Rx.link()
	m.Tx.link()
	m.Rx.arm()
	return
}

func (m *BufferManager) Region() *hw.Region { return m.arena.Region() }

// SelfTestAddress is the PORT self-test results block.
func (m *BufferManager) SelfTestAddress() uint32 { return m.arena.Phys(m.selfTest.Off) }

// clearSelfTest zeroes the signature and sets the result to all ones.
func (m *BufferManager) clearSelfTest() {
	m.arena.Store32(m.selfTest.At(selfTestResOff), ^uint32(0))
	m.arena.StoreWord(m.selfTest.At(selfTestSigOff), 0)
}

// selfTestResult returns the signature and result words.
func (m *BufferManager) selfTestResult() (sig, res uint32) {
	sig = m.arena.LoadWord(m.selfTest.At(selfTestSigOff))
	res = m.arena.Load32(m.selfTest.At(selfTestResOff))
	return
}

func (m *BufferManager) StatsAddress() uint32 { return m.arena.Phys(m.stats.Off) }

func (m *BufferManager) clearStatsDone() { m.arena.StoreWord(m.stats.At(StatsDoneOffset), 0) }
func (m *BufferManager) statsDone() uint32 {
	return m.arena.LoadWord(m.stats.At(StatsDoneOffset))
}
func (m *BufferManager) statsCounter(i int) uint32 {
	return m.arena.Load32(m.stats.At(uint32(4 * i)))
}

func (m *BufferManager) Transmit(p []byte) (*TxBlock, error) { return m.Tx.Transmit(p) }
func (m *BufferManager) Receive() ([]byte, bool)             { return m.Rx.TakeCompletedPacket() }
func (m *BufferManager) Reap() int                           { return m.Tx.Reap() }

// reset readies both rings for a restart of stopped units.
func (m *BufferManager) reset() (dropped int) {
	dropped = m.Tx.reclaim()
	m.Rx.arm()
	return
}

func (m *BufferManager) Free() {
	if m.arena != nil && !m.arena.Freed() {
		m.arena.Free()
	}
}

func (m *BufferManager) Freed() bool { return m.arena == nil || m.arena.Freed() }

func (m *BufferManager) Dump(w io.Writer) {
	if m.Freed() {
		fmt.Fprintf(w, "%s: buffers freed\n", m.name)
		return
	}
	fmt.Fprintf(w, "%s: %v\n", m.name, m.arena.Region())
	sig, res := m.selfTestResult()
	fmt.Fprintf(w, "  self-test @ 0x%08x: signature 0x%08x result 0x%08x\n", m.SelfTestAddress(), sig, res)
	fmt.Fprintf(w, "  stats @ 0x%08x: done 0x%04x\n", m.StatsAddress(), m.statsDone())
	fmt.Fprintf(w, "  rfa, current %v\n", m.Rx.cur)
	for i := range m.Rx.frames {
		fmt.Fprintf(w, "    %d: %v\n", i, &m.Rx.frames[i])
	}
	fmt.Fprintf(w, "  cbl, current %v, dirty %v, in flight %d, threshold 0x%08x\n",
		m.Tx.cur, m.Tx.dirty, m.Tx.inflight, m.Tx.Threshold)
	for i := range m.Tx.blocks {
		fmt.Fprintf(w, "    %d: %v\n", i, &m.Tx.blocks[i])
	}
}
