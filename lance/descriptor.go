// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

import (
	"fmt"

	"github.com/platinasystems/nicdma/dma"
)

// Descriptor layout, software style 2.
const (
	DescriptorBytes  = 16
	DescBufferOffset = 0 // u32 physical buffer address
	DescBcntOffset   = 4 // i16 negative buffer byte count, bits 15:12 ones
	DescStatusOffset = 6 // u16 status
	DescMiscOffset   = 8 // rx: message byte count; tx: error flags
)

// Status bits common to both rings.
const (
	DescOwn uint16 = 1 << 15
	DescErr uint16 = 1 << 14
	DescStp uint16 = 1 << 9
	DescEnp uint16 = 1 << 8
)

// Receive status bits.
const (
	RxFram uint16 = 1 << 13
	RxOflo uint16 = 1 << 12
	RxCrc  uint16 = 1 << 11
	RxBuff uint16 = 1 << 10
)

// Transmit status bits.
const (
	TxAddFcs uint16 = 1 << 13
	TxMore   uint16 = 1 << 12
	TxOne    uint16 = 1 << 11
	TxDef    uint16 = 1 << 10
)

// Transmit error word (TMD2).
const (
	TxErrBuff  uint32 = 1 << 31
	TxErrUflo  uint32 = 1 << 30
	TxErrExdef uint32 = 1 << 29
	TxErrLcol  uint32 = 1 << 28
	TxErrLcar  uint32 = 1 << 27
	TxErrRtry  uint32 = 1 << 26
	TxErrTdr   uint32 = 0x3ff << 16
	TxErrTrc   uint32 = 0xf
)

const (
	bcntOnes  = 0xf000
	bcntMask  = 0x0fff
	mcntMask  = 0x0fff
	MaxBuffer = bcntMask + 1
)

// EncodeBcnt returns the two's complement negative byte count of n.
func EncodeBcnt(n int) uint16 { return uint16(-int16(n)) | bcntOnes }

// DecodeBcnt is the inverse of EncodeBcnt.
func DecodeBcnt(v uint16) int {
	n := int(-int16(v|bcntOnes)) & (MaxBuffer - 1)
	if n == 0 {
		n = MaxBuffer
	}
	return n
}

type descriptor struct {
	a   *dma.Arena
	off dma.Offset
}

// Bytes 4 through 7 (bcnt and status) hold the ownership word.
func (d *descriptor) word() uint32     { return d.a.LoadWord(d.off + DescBcntOffset) }
func (d *descriptor) setWord(v uint32) { d.a.StoreWord(d.off+DescBcntOffset, v) }

func (d *descriptor) Status() uint16 { return uint16(d.word() >> 16) }

func (d *descriptor) IsOwnedBySoftware() bool { return d.Status()&DescOwn == 0 }

func (d *descriptor) Owner() dma.Owner {
	if d.IsOwnedBySoftware() {
		return dma.Software
	}
	return dma.Hardware
}

// Release hands a software owned descriptor to the device.
func (d *descriptor) Release() error {
	w := d.word()
	if w&(uint32(DescOwn)<<16) != 0 {
		return fmt.Errorf("release descriptor 0x%x: owned by hw: %w", d.a.Phys(d.off), dma.ErrProtocol)
	}
	d.setWord(w | uint32(DescOwn)<<16)
	return nil
}

// Claim takes a descriptor back from the device.  Only the device, or
// software once the device is stopped, may claim.
func (d *descriptor) Claim() error {
	w := d.word()
	if w&(uint32(DescOwn)<<16) == 0 {
		return fmt.Errorf("claim descriptor 0x%x: owned by sw: %w", d.a.Phys(d.off), dma.ErrProtocol)
	}
	d.setWord(w &^ (uint32(DescOwn) << 16))
	return nil
}

func (d *descriptor) buffer() uint32 { return d.a.Load32(d.off + DescBufferOffset) }
func (d *descriptor) misc() uint32   { return d.a.Load32(d.off + DescMiscOffset) }

// Phys is the bus address of the descriptor.
func (d *descriptor) Phys() uint32 { return d.a.Phys(d.off) }

// RxDescriptor is a receive descriptor in the arena.
type RxDescriptor struct{ descriptor }

// TxDescriptor is a transmit descriptor in the arena.
type TxDescriptor struct{ descriptor }

// OwnedRx is software's handle on a receive descriptor it owns.  Field
// access is only possible through it and it goes stale on Release.
type OwnedRx struct{ d *RxDescriptor }

// OwnedTx is software's handle on a transmit descriptor it owns.
type OwnedTx struct{ d *TxDescriptor }

func (d *RxDescriptor) Owned() (*OwnedRx, error) {
	if !d.IsOwnedBySoftware() {
		return nil, fmt.Errorf("rx descriptor 0x%x: owned by hw: %w", d.Phys(), dma.ErrProtocol)
	}
	return &OwnedRx{d}, nil
}

func (d *TxDescriptor) Owned() (*OwnedTx, error) {
	if !d.IsOwnedBySoftware() {
		return nil, fmt.Errorf("tx descriptor 0x%x: owned by hw: %w", d.Phys(), dma.ErrProtocol)
	}
	return &OwnedTx{d}, nil
}

func (o *OwnedRx) desc() *RxDescriptor {
	if o.d == nil {
		panic(fmt.Errorf("use of released rx descriptor: %w", dma.ErrProtocol))
	}
	return o.d
}

func (o *OwnedTx) desc() *TxDescriptor {
	if o.d == nil {
		panic(fmt.Errorf("use of released tx descriptor: %w", dma.ErrProtocol))
	}
	return o.d
}

func (o *OwnedRx) Status() uint16 { return o.desc().Status() }
func (o *OwnedRx) Buffer() uint32 { return o.desc().buffer() }

// MessageBytes is the received frame length including the FCS.
func (o *OwnedRx) MessageBytes() int { return int(o.desc().misc() & mcntMask) }

// Arm points the descriptor at an n byte buffer with cleared status.
func (o *OwnedRx) Arm(buf uint32, n int) {
	d := o.desc()
	d.a.Store32(d.off+DescBufferOffset, buf)
	d.a.Store32(d.off+DescMiscOffset, 0)
	d.setWord(uint32(EncodeBcnt(n)))
}

// Release gives the descriptor to the device.  The handle is dead after.
func (o *OwnedRx) Release() error {
	if o.d == nil {
		return fmt.Errorf("rx descriptor released twice: %w", dma.ErrProtocol)
	}
	d := o.d
	o.d = nil
	return d.Release()
}

func (o *OwnedTx) Status() uint16 { return o.desc().Status() }
func (o *OwnedTx) Buffer() uint32 { return o.desc().buffer() }

// Bytes is the posted frame length.
func (o *OwnedTx) Bytes() int { return DecodeBcnt(uint16(o.desc().word())) }

// Errors is the TMD2 error word of a completed transmit.
func (o *OwnedTx) Errors() uint32 { return o.desc().misc() }

// Post points the descriptor at an n byte frame and hands it to the device
// as a single buffer packet.
func (o *OwnedTx) Post(buf uint32, n int) error {
	if o.d == nil {
		return fmt.Errorf("tx descriptor released twice: %w", dma.ErrProtocol)
	}
	d := o.d
	o.d = nil
	d.a.Store32(d.off+DescBufferOffset, buf)
	d.a.Store32(d.off+DescMiscOffset, 0)
	d.setWord(uint32(EncodeBcnt(n)) | uint32(DescOwn|DescStp|DescEnp)<<16)
	return nil
}

// Clear resets status and error words after a completion was accounted.
func (o *OwnedTx) Clear() {
	d := o.desc()
	d.a.Store32(d.off+DescMiscOffset, 0)
	d.setWord(d.word() & 0xffff)
}

var rxStatusNames = []struct {
	bit  uint16
	name string
}{
	{DescOwn, "own"},
	{DescErr, "err"},
	{RxFram, "fram"},
	{RxOflo, "oflo"},
	{RxCrc, "crc"},
	{RxBuff, "buff"},
	{DescStp, "stp"},
	{DescEnp, "enp"},
}

var txStatusNames = []struct {
	bit  uint16
	name string
}{
	{DescOwn, "own"},
	{DescErr, "err"},
	{TxAddFcs, "add-fcs"},
	{TxMore, "more"},
	{TxOne, "one"},
	{TxDef, "def"},
	{DescStp, "stp"},
	{DescEnp, "enp"},
}

func (d *RxDescriptor) String() (s string) {
	st := d.Status()
	s = fmt.Sprintf("0x%08x: buffer 0x%08x, %d bytes, mcnt %d", d.Phys(), d.buffer(), DecodeBcnt(uint16(d.word())), d.misc()&mcntMask)
	for _, x := range rxStatusNames {
		if st&x.bit != 0 {
			s += ", " + x.name
		}
	}
	return
}

func (d *TxDescriptor) String() (s string) {
	st := d.Status()
	s = fmt.Sprintf("0x%08x: buffer 0x%08x, %d bytes, errors 0x%08x", d.Phys(), d.buffer(), DecodeBcnt(uint16(d.word())), d.misc())
	for _, x := range txStatusNames {
		if st&x.bit != 0 {
			s += ", " + x.name
		}
	}
	return
}
