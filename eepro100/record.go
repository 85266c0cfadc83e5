// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"fmt"

	"github.com/platinasystems/nicdma/dma"
)

// record is a command block or frame descriptor in the arena: a 16 byte
// header followed by its data area.  Status and command share the first
// word, which carries ownership: C set means software may write it.
type record struct {
	a    *dma.Arena
	off  dma.Offset
	data dma.Span
}

func (r *record) word() uint32     { return r.a.LoadWord(r.off) }
func (r *record) setWord(v uint32) { r.a.StoreWord(r.off, v) }

func (r *record) Status() uint16  { return uint16(r.word()) }
func (r *record) Command() uint16 { return uint16(r.word() >> 16) }

func (r *record) Owner() dma.Owner {
	if r.Status()&StatusC != 0 {
		return dma.Software
	}
	return dma.Hardware
}

func (r *record) Phys() uint32     { return r.a.Phys(r.off) }
func (r *record) Link() uint32     { return r.a.Load32(r.off + RecLinkOffset) }
func (r *record) setLink(v uint32) { r.a.Store32(r.off+RecLinkOffset, v) }

// clearCommand atomically clears command bits; the device may be
// writing status at the same time.
func (r *record) clearCommand(bits uint16) {
	r.a.UpdateWord(r.off, func(w uint32) uint32 { return w &^ (uint32(bits) << 16) })
}

func (r *record) check(what string) error {
	if r.Owner() != dma.Software {
		return fmt.Errorf("%s 0x%08x: owned by hw: %w", what, r.Phys(), dma.ErrProtocol)
	}
	return nil
}

// RxFrame is a receive frame descriptor.
type RxFrame struct{ record }

// arm hands the descriptor to the receive unit with an empty data area.
// The tail of the list also carries EL.
func (f *RxFrame) arm(el bool) {
	f.a.Store32(f.off+RxRbdOffset, NoTbd)
	f.a.Store16(f.off+RxCountOffset, 0)
	f.a.Store16(f.off+RxSizeOffset, uint16(f.data.Len))
	var cmd uint16
	if el {
		cmd = CmdEL
	}
	f.setWord(uint32(cmd) << 16)
}

// Count is the received byte count and its EOF and F flags.
func (f *RxFrame) Count() (n int, eof bool) {
	v := f.a.Load16(f.off + RxCountOffset)
	return int(v & RxCountMask), v&(RxEOF|RxF) == RxEOF|RxF
}

func (f *RxFrame) Size() int { return int(f.a.Load16(f.off + RxSizeOffset)) }

// TxBlock is a transmit command block.
type TxBlock struct{ record }

// free marks the block complete so software may post it.
func (b *TxBlock) free() { b.setWord(uint32(StatusC)) }

// post fills in an n byte frame already copied to the data area and
// hands the block to the command unit, to suspend after it.
func (b *TxBlock) post(n int, threshold uint32) error {
	if err := b.check("tx block"); err != nil {
		return err
	}
	b.a.Store32(b.off+TxTbdOffset, NoTbd)
	b.a.Store16(b.off+TxCountOffset, uint16(n)|TxEOF)
	b.a.Store8(b.off+TxThresholdOffset, uint8(threshold>>16))
	b.a.Store8(b.off+TxTbdNumOffset, 0)
	b.setWord(uint32(CmdTx|CmdS|CmdI) << 16)
	return nil
}

func (b *TxBlock) Bytes() int { return int(b.a.Load16(b.off+TxCountOffset) & TxCountMask) }

var rxStatusNames = []struct {
	bit  uint16
	name string
}{
	{StatusC, "c"},
	{StatusOK, "ok"},
	{RxCRC, "crc"},
	{RxAlign, "align"},
	{RxNoRes, "nores"},
	{RxOverrun, "overrun"},
	{RxShort, "short"},
	{RxErr, "rxerr"},
}

var txStatusNames = []struct {
	bit  uint16
	name string
}{
	{StatusC, "c"},
	{StatusOK, "ok"},
	{TxStatusU, "underrun"},
}

func (f *RxFrame) String() (s string) {
	n, _ := f.Count()
	s = fmt.Sprintf("0x%08x: link 0x%08x, count %d/%d, cmd 0x%04x", f.Phys(), f.Link(), n, f.Size(), f.Command())
	st := f.Status()
	for _, x := range rxStatusNames {
		if st&x.bit != 0 {
			s += " " + x.name
		}
	}
	return
}

func (b *TxBlock) String() (s string) {
	s = fmt.Sprintf("0x%08x: link 0x%08x, %d bytes, cmd 0x%04x", b.Phys(), b.Link(), b.Bytes(), b.Command())
	st := b.Status()
	for _, x := range txStatusNames {
		if st&x.bit != 0 {
			s += " " + x.name
		}
	}
	return
}
