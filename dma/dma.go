// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dma lays out descriptor rings and packet buffers inside a single
// DMA region and gives typed little-endian access to their fields.
package dma

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/platinasystems/nicdma/hw"
)

// ErrProtocol is returned when one side touches a descriptor it does not own.
var ErrProtocol = errors.New("descriptor ownership protocol violation")

// ErrUnreachable is returned for memory above the 32 bit bus address space.
var ErrUnreachable = errors.New("not reachable with 32 bit addresses")

// Offset is a byte offset from the start of an Arena.
type Offset uint32

// Span is a carved piece of an Arena.
type Span struct {
	Off Offset
	Len uint32
}

func (s Span) End() Offset { return s.Off + Offset(s.Len) }

// At returns offset o within the span.
func (s Span) At(o uint32) Offset {
	if o >= s.Len {
		panic(fmt.Errorf("offset %d outside span of %d bytes", o, s.Len))
	}
	return s.Off + Offset(o)
}

func (s Span) String() string { return fmt.Sprintf("[0x%x,0x%x)", s.Off, s.End()) }

// Layout reserves spans before the region exists so the whole arena
// can be allocated at once.
type Layout struct {
	size       uint32
	log2_align uint
}

func (l *Layout) Reserve(n uint32, log2Align uint) (s Span) {
	a := uint32(1) << log2Align
	s.Off = Offset((l.size + a - 1) &^ (a - 1))
	s.Len = n
	l.size = uint32(s.End())
	if log2Align > l.log2_align {
		l.log2_align = log2Align
	}
	return
}

// Size is the number of bytes to allocate.
func (l *Layout) Size() uint32 { return l.size }

// Log2Align is the largest alignment any span asked for.
func (l *Layout) Log2Align() uint { return l.log2_align }

// Arena is a DMA region addressed by Offset.  All device visible
// addresses are 32 bit.
type Arena struct {
	r *hw.Region
	b []byte
}

// NewArena allocates a region big enough for the layout.
func NewArena(alloc hw.Allocator, l *Layout) (a *Arena, err error) {
	r, err := alloc.DmaAlloc(uint(l.Size()), l.Log2Align())
	if err != nil {
		return
	}
	if r.Phys()+uint64(r.Len()) > 1<<32 {
		r.Free()
		err = fmt.Errorf("%v: %w", r, ErrUnreachable)
		return
	}
	a = &Arena{r: r, b: r.Bytes()}
	return
}

func (a *Arena) Region() *hw.Region { return a.r }

// Phys is the bus address of o.
func (a *Arena) Phys(o Offset) uint32 { return uint32(a.r.Phys()) + uint32(o) }

// Offset maps a bus address back into the arena.
func (a *Arena) Offset(phys uint32) (o Offset, ok bool) {
	base := uint32(a.r.Phys())
	if phys < base || phys-base >= uint32(len(a.b)) {
		return
	}
	return Offset(phys - base), true
}

// Bytes is the live view of a span.
func (a *Arena) Bytes(s Span) []byte { return a.b[s.Off:s.End():s.End()] }

func (a *Arena) Load8(o Offset) uint8       { return a.b[o] }
func (a *Arena) Store8(o Offset, v uint8)   { a.b[o] = v }
func (a *Arena) Load16(o Offset) uint16     { return binary.LittleEndian.Uint16(a.b[o:]) }
func (a *Arena) Store16(o Offset, v uint16) { binary.LittleEndian.PutUint16(a.b[o:], v) }
func (a *Arena) Load32(o Offset) uint32     { return binary.LittleEndian.Uint32(a.b[o:]) }
func (a *Arena) Store32(o Offset, v uint32) { binary.LittleEndian.PutUint32(a.b[o:], v) }

// Free releases the region.  The arena must not be used afterwards.
func (a *Arena) Free() {
	a.r.Free()
	a.b = nil
}

func (a *Arena) Freed() bool { return a.b == nil }
