// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/nic"
)

type ring struct {
	name     string
	a        *dma.Arena
	cur      dma.Cursor
	counters *nic.Counters
}

func (r *ring) Current() uint32 { return r.cur.Index() }
func (r *ring) Len() uint32     { return r.cur.Len() }
func (r *ring) Laps() uint64    { return r.cur.Laps }
func (r *ring) prev(i uint32) uint32 {
	return (i + r.cur.Len() - 1) % r.cur.Len()
}

// RxRing is the receive frame area: a circular list of frame
// descriptors whose last armed entry carries EL.
type RxRing struct {
	ring
	frames []RxFrame
}

// TxRing is the command block list used only for transmits.
type TxRing struct {
	ring
	blocks   []TxBlock
	dirty    dma.Cursor
	inflight uint32
	// Transmit threshold; raised on each underrun.
	Threshold uint32
}

func (r *RxRing) Frame(i uint32) *RxFrame     { return &r.frames[i] }
func (r *TxRing) Block(i uint32) *TxBlock     { return &r.blocks[i] }
func (r *RxRing) Head() uint32                { return r.frames[r.cur.Index()].Phys() }
func (r *TxRing) Head() uint32                { return r.blocks[r.cur.Index()].Phys() }
func (r *TxRing) InFlight() uint32            { return r.inflight }
func (r *TxRing) prevBlock(i uint32) *TxBlock { return &r.blocks[r.prev(i)] }

func (r *RxRing) link() {
	for i := range r.frames {
		r.frames[i].setLink(r.frames[(i+1)%len(r.frames)].Phys())
	}
}

func (r *TxRing) link() {
	for i := range r.blocks {
		r.blocks[i].setLink(r.blocks[(i+1)%len(r.blocks)].Phys())
	}
}

// arm hands every frame descriptor to the receive unit, EL on the last.
func (r *RxRing) arm() {
	r.cur.Reset()
	n := len(r.frames)
	for i := range r.frames {
		r.frames[i].arm(i == n-1)
	}
}

// rearm gives slot i back as the new tail and takes EL off the old one.
func (r *RxRing) rearm(i uint32) {
	r.frames[i].arm(true)
	if p := r.prev(i); p != i {
		r.frames[p].clearCommand(CmdEL)
	}
}

// TakeCompletedPacket looks at the frame descriptor at the cursor.  ok is
// false while the receive unit owns it.  Otherwise the slot is re-armed,
// the cursor advances and p is a copy of the frame, or nil if dropped.
func (r *RxRing) TakeCompletedPacket() (p []byte, ok bool) {
	i := r.cur.Index()
	f := &r.frames[i]
	if f.Owner() != dma.Software {
		return
	}
	ok = true
	st := f.Status()
	n, eof := f.Count()
	switch {
	case st&StatusOK == 0 || st&RxErrors != 0:
		r.rxError(i, st)
	case !eof:
		r.counters.Inc(nic.RxChainedFrames)
		log.Printf("%s: rx slot %d: frame without eof dropped, count 0x%04x", r.name, i, n)
	case n == 0 || n > int(f.data.Len):
		r.counters.Inc(nic.RxBufferErrors)
		log.Printf("%s: rx slot %d: bad count %d", r.name, i, n)
	default:
		p = append([]byte(nil), r.a.Bytes(f.data)[:n]...)
		r.counters.AddPacket(nic.RxPackets, uint(n))
	}
	r.rearm(i)
	r.cur.Advance()
	return
}

var rxErrors = []struct {
	bit  uint16
	c    nic.Counter
	name string
}{
	{RxCRC, nic.RxCrcErrors, "crc"},
	{RxAlign, nic.RxAlignmentErrors, "alignment"},
	{RxNoRes, nic.RxResourceErrors, "no resources"},
	{RxOverrun, nic.RxOverrunErrors, "overrun"},
	{RxShort, nic.RxShortFrames, "short"},
	{RxErr, nic.RxFramingErrors, "receive"},
}

func (r *RxRing) rxError(i uint32, st uint16) {
	s := ""
	for _, x := range rxErrors {
		if st&x.bit != 0 {
			r.counters.Inc(x.c)
			if s != "" {
				s += ", "
			}
			s += x.name
		}
	}
	if s == "" {
		r.counters.Inc(nic.RxFramingErrors)
		s = "not ok"
	}
	log.Printf("%s: rx slot %d: %s error, status 0x%04x", r.name, i, s, st)
}

// Transmit copies p into the block at the cursor, posts it and lets the
// command unit run past the previous block.
func (r *TxRing) Transmit(p []byte) (*TxBlock, error) {
	r.Reap()
	i := r.cur.Index()
	b := &r.blocks[i]
	if len(p) == 0 {
		return nil, fmt.Errorf("%s: empty frame: %w", r.name, nic.ErrShortFrame)
	}
	if len(p) > int(b.data.Len) {
		return nil, fmt.Errorf("%s: %d byte frame, %d byte buffers: %w", r.name, len(p), b.data.Len, nic.ErrFrameTooLarge)
	}
	if b.Owner() != dma.Software || r.inflight == r.cur.Len() {
		r.counters.Inc(nic.TxRingFull)
		return nil, fmt.Errorf("%s: tx slot %d: %w", r.name, i, nic.ErrRingFull)
	}
	copy(r.a.Bytes(b.data), p)
	if err := b.post(len(p), r.Threshold); err != nil {
		return nil, err
	}
	if q := r.prevBlock(i); q != b {
		q.clearCommand(CmdS)
	}
	r.cur.Advance()
	r.inflight++
	return b, nil
}

// Reap accounts completed blocks, oldest first.
func (r *TxRing) Reap() (n int) {
	for r.inflight > 0 {
		i := r.dirty.Index()
		b := &r.blocks[i]
		st := b.Status()
		if st&StatusC == 0 {
			break
		}
		switch {
		case st&TxStatusU != 0:
			r.counters.Inc(nic.TxUnderruns)
			if r.Threshold < maxThreshold {
				r.Threshold += thresholdStep
			}
			log.Printf("%s: tx slot %d: underrun, threshold now 0x%08x", r.name, i, r.Threshold)
		case st&StatusOK == 0:
			r.counters.Inc(nic.TxBufferErrors)
			log.Printf("%s: tx slot %d: failed, status 0x%04x", r.name, i, st)
		default:
			r.counters.AddPacket(nic.TxPackets, uint(b.Bytes()))
		}
		r.dirty.Advance()
		r.inflight--
		n++
	}
	return
}

// reclaim frees blocks a stopped command unit never completed.
func (r *TxRing) reclaim() (n int) {
	r.Reap()
	for i := range r.blocks {
		b := &r.blocks[i]
		if b.Owner() != dma.Software {
			r.counters.Inc(nic.TxDropped)
			n++
		}
		b.free()
	}
	r.cur.Reset()
	r.dirty.Reset()
	r.inflight = 0
	return
}
