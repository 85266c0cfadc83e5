// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

import (
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/nic"
)

const fcsBytes = 4

type ring struct {
	name     string
	a        *dma.Arena
	bufs     []dma.Span
	cur      dma.Cursor
	counters *nic.Counters
}

func (r *ring) bufPhys(i uint32) uint32 { return r.a.Phys(r.bufs[i].Off) }

// Current is the next slot software will look at.
func (r *ring) Current() uint32 { return r.cur.Index() }
func (r *ring) Len() uint32     { return r.cur.Len() }

// Laps counts how often the cursor wrapped.
func (r *ring) Laps() uint64 { return r.cur.Laps }

// RxRing is the receive descriptor ring.
type RxRing struct {
	ring
	desc []RxDescriptor
}

// TxRing is the transmit descriptor ring.
type TxRing struct {
	ring
	desc     []TxDescriptor
	dirty    dma.Cursor
	inflight uint32
}

func (r *RxRing) Descriptor(i uint32) *RxDescriptor { return &r.desc[i] }
func (r *TxRing) Descriptor(i uint32) *TxDescriptor { return &r.desc[i] }

// arm gives every descriptor with its buffer to the device.
func (r *RxRing) arm() {
	r.cur.Reset()
	for i := range r.desc {
		d := &r.desc[i]
		if !d.IsOwnedBySoftware() {
			d.Claim()
		}
		r.rearm(uint32(i))
	}
}

func (r *RxRing) rearm(i uint32) {
	o, err := r.desc[i].Owned()
	if err == nil {
		o.Arm(r.bufPhys(i), int(r.bufs[i].Len))
		err = o.Release()
	}
	if err != nil {
		panic(fmt.Errorf("%s: rx slot %d: %w", r.name, i, err))
	}
}

// TakeCompletedPacket looks at the descriptor at the cursor.  When the
// device still owns it, ok is false.  Otherwise the descriptor is
// re-armed, the cursor advances and ok is true; p holds a copy of the
// frame without FCS or is nil when the frame was dropped.
func (r *RxRing) TakeCompletedPacket() (p []byte, ok bool) {
	i := r.cur.Index()
	o, err := r.desc[i].Owned()
	if err != nil {
		return
	}
	ok = true
	st := o.Status()
	switch {
	case st&DescErr != 0:
		r.rxError(i, st)
	case st&(DescStp|DescEnp) == DescStp|DescEnp:
		n := o.MessageBytes() - fcsBytes
		if n <= 0 || n > int(r.bufs[i].Len) {
			r.counters.Inc(nic.RxBufferErrors)
			log.Printf("%s: rx slot %d: bad message length %d", r.name, i, n+fcsBytes)
			break
		}
		p = append([]byte(nil), r.a.Bytes(r.bufs[i])[:n]...)
		r.counters.AddPacket(nic.RxPackets, uint(n))
	default:
		// Frames spanning descriptors are not reassembled.
		r.counters.Inc(nic.RxChainedFrames)
		log.Printf("%s: rx slot %d: chained frame dropped, status 0x%04x", r.name, i, st)
	}
	r.rearm(i)
	r.cur.Advance()
	return
}

func (r *RxRing) rxError(i uint32, st uint16) {
	var what string
	switch {
	case st&RxFram != 0:
		r.counters.Inc(nic.RxFramingErrors)
		what = "framing"
	case st&RxOflo != 0:
		r.counters.Inc(nic.RxOverflowErrors)
		what = "overflow"
	case st&RxCrc != 0:
		r.counters.Inc(nic.RxCrcErrors)
		what = "crc"
	case st&RxBuff != 0:
		r.counters.Inc(nic.RxBufferErrors)
		what = "buffer"
	default:
		r.counters.Inc(nic.RxFramingErrors)
		what = "unknown"
	}
	log.Printf("%s: rx slot %d: %s error, status 0x%04x", r.name, i, what, st)
}

// InFlight is the number of posted frames not yet reaped.
func (r *TxRing) InFlight() uint32 { return r.inflight }

// Transmit copies the frame into the buffer at the cursor and hands the
// descriptor to the device.
func (r *TxRing) Transmit(p []byte) error {
	r.Reap()
	i := r.cur.Index()
	b := r.bufs[i]
	if len(p) == 0 {
		return fmt.Errorf("%s: empty frame: %w", r.name, nic.ErrShortFrame)
	}
	if len(p) > int(b.Len) {
		return fmt.Errorf("%s: %d byte frame, %d byte buffers: %w", r.name, len(p), b.Len, nic.ErrFrameTooLarge)
	}
	o, err := r.desc[i].Owned()
	if err != nil || r.inflight == r.cur.Len() {
		r.counters.Inc(nic.TxRingFull)
		return fmt.Errorf("%s: tx slot %d: %w", r.name, i, nic.ErrRingFull)
	}
	copy(r.a.Bytes(b), p)
	if err = o.Post(r.bufPhys(i), len(p)); err != nil {
		return err
	}
	r.cur.Advance()
	r.inflight++
	return nil
}

// Reap accounts descriptors the device has finished with, oldest first.
func (r *TxRing) Reap() (n int) {
	for r.inflight > 0 {
		i := r.dirty.Index()
		o, err := r.desc[i].Owned()
		if err != nil {
			break
		}
		st := o.Status()
		if st&DescErr != 0 {
			r.txError(i, o.Errors())
		} else {
			r.counters.AddPacket(nic.TxPackets, uint(o.Bytes()))
		}
		switch {
		case st&TxMore != 0:
			r.counters.Inc(nic.TxMultipleCollisions)
		case st&TxOne != 0:
			r.counters.Inc(nic.TxSingleCollisions)
		}
		if st&TxDef != 0 {
			r.counters.Inc(nic.TxDeferred)
		}
		o.Clear()
		r.dirty.Advance()
		r.inflight--
		n++
	}
	return
}

var txErrors = []struct {
	bit  uint32
	c    nic.Counter
	name string
}{
	{TxErrUflo, nic.TxUnderruns, "underflow"},
	{TxErrLcol, nic.TxLateCollisions, "late collision"},
	{TxErrLcar, nic.TxLostCarrier, "lost carrier"},
	{TxErrRtry, nic.TxRetryErrors, "retry"},
	{TxErrBuff, nic.TxBufferErrors, "buffer"},
	{TxErrExdef, nic.TxExcessiveDeferrals, "excessive deferral"},
}

func (r *TxRing) txError(i uint32, e uint32) {
	s := ""
	for _, x := range txErrors {
		if e&x.bit != 0 {
			r.counters.Inc(x.c)
			if s != "" {
				s += ", "
			}
			s += x.name
		}
	}
	log.Printf("%s: tx slot %d: error 0x%08x %s", r.name, i, e, s)
}

// reclaim takes back descriptors a stopped device never finished.
func (r *TxRing) reclaim() (n int) {
	r.Reap()
	for i := range r.desc {
		d := &r.desc[i]
		if !d.IsOwnedBySoftware() {
			d.Claim()
			if o, err := d.Owned(); err == nil {
				o.Clear()
			}
			r.counters.Inc(nic.TxDropped)
			n++
		}
	}
	r.cur.Reset()
	r.dirty.Reset()
	r.inflight = 0
	return
}
