// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/nicdma/hw"
)

func TestLayout(t *testing.T) {
	var l Layout
	a := l.Reserve(28, 2)
	b := l.Reserve(64, 4)
	c := l.Reserve(3, 0)
	assert.Equal(t, Offset(0), a.Off)
	assert.Equal(t, Offset(32), b.Off)
	assert.Equal(t, Offset(96), c.Off)
	assert.Equal(t, uint32(99), l.Size())
	assert.Equal(t, uint(4), l.Log2Align())
	assert.Panics(t, func() { a.At(28) })
}

func TestArena(t *testing.T) {
	h := hw.NewHeap(0x100000, 1<<12)
	var l Layout
	s := l.Reserve(16, 4)
	a, err := NewArena(h, &l)
	require.NoError(t, err)

	a.Store32(s.At(0), 0x11223344)
	a.Store16(s.At(4), 0xf000)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11, 0x00, 0xf0}, a.Bytes(s)[:6])
	assert.Equal(t, uint16(0x2233), a.Load16(s.At(1)))
	assert.Equal(t, a.Phys(0)+8, a.Phys(s.At(8)))

	o, ok := a.Offset(a.Phys(s.At(12)))
	assert.True(t, ok)
	assert.Equal(t, s.At(12), o)
	_, ok = a.Offset(a.Phys(0) + 16)
	assert.False(t, ok)

	a.Free()
	assert.True(t, a.Freed())
	assert.Zero(t, h.InUse())
}

func TestArenaAbove4G(t *testing.T) {
	h := hw.NewHeap(1<<32, 1<<12)
	var l Layout
	l.Reserve(16, 0)
	_, err := NewArena(h, &l)
	assert.True(t, errors.Is(err, ErrUnreachable), "%v", err)
	assert.Zero(t, h.InUse(), "rejected region is returned")
}

func TestCursor(t *testing.T) {
	for _, n := range []uint32{0, 3, 1024} {
		_, err := NewCursor(n)
		assert.Error(t, err, "length %d", n)
	}
	c, err := NewCursor(4)
	require.NoError(t, err)
	for i := 0; i < 3*4; i++ {
		assert.Less(t, c.Index(), c.Len())
		c.Advance()
	}
	assert.Equal(t, uint32(0), c.Index())
	assert.Equal(t, uint64(3), c.Laps)

	one, err := NewCursor(1)
	require.NoError(t, err)
	one.Advance()
	assert.Equal(t, uint32(0), one.Index())

	assert.Equal(t, uint8(0), Log2Len(1))
	assert.Equal(t, uint8(9), Log2Len(512))
}

func TestWord(t *testing.T) {
	h := hw.NewHeap(0x1000, 64)
	var l Layout
	s := l.Reserve(16, 4)
	a, err := NewArena(h, &l)
	require.NoError(t, err)
	a.StoreWord(s.At(4), 0x8300fffe)
	assert.Equal(t, uint16(0xfffe), a.Load16(s.At(4)))
	assert.Equal(t, uint16(0x8300), a.Load16(s.At(6)))
	assert.Equal(t, uint32(0x8300fffe), a.LoadWord(s.At(4)))
	assert.Panics(t, func() { a.LoadWord(s.At(6)) })
}

func TestUpdateWord(t *testing.T) {
	h := hw.NewHeap(0x1000, 64)
	var l Layout
	s := l.Reserve(8, 2)
	a, err := NewArena(h, &l)
	require.NoError(t, err)
	a.StoreWord(s.Off, 0x60048000)
	v := a.UpdateWord(s.Off, func(v uint32) uint32 { return v &^ (0x4000 << 16) })
	assert.Equal(t, uint32(0x20048000), v)
	assert.Equal(t, uint16(0x2004), a.Load16(s.At(2)))
}
