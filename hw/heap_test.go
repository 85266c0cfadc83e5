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

func TestHeapAlignment(t *testing.T) {
	h := NewHeap(0x10000008, 4096)
	a, err := h.DmaAlloc(10, 0)
	require.NoError(t, err)
	b, err := h.DmaAlloc(100, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10000008), a.Phys())
	assert.Zero(t, b.Phys()%16)
	assert.GreaterOrEqual(t, b.Phys(), a.Phys()+uint64(a.Len()))
	assert.Equal(t, uint(110), h.InUse())
}

func TestHeapReuse(t *testing.T) {
	h := NewHeap(0x1000, 256)
	a, err := h.DmaAlloc(128, 0)
	require.NoError(t, err)
	_, err = h.DmaAlloc(128, 0)
	require.NoError(t, err)

	_, err = h.DmaAlloc(1, 0)
	assert.True(t, errors.Is(err, ErrNoMemory))

	a.Bytes()[0] = 0x55
	a.Free()
	a.Free()
	assert.True(t, a.Freed())

	c, err := h.DmaAlloc(64, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), c.Phys())
	assert.Equal(t, byte(0), c.Bytes()[0], "allocations are zeroed")
}

func TestHeapTranslate(t *testing.T) {
	h := NewHeap(0x2000, 1024)
	r, err := h.DmaAlloc(64, 3)
	require.NoError(t, err)
	b, err := h.Translate(r.Phys()+8, 8)
	require.NoError(t, err)
	b[0] = 0xaa
	assert.Equal(t, byte(0xaa), r.Bytes()[8])

	_, err = h.Translate(r.Phys()+60, 8)
	assert.Error(t, err, "straddles end of allocation")
	_, err = h.Translate(0x10, 1)
	assert.Error(t, err)

	r.Free()
	_, err = h.Translate(r.Phys(), 1)
	assert.Error(t, err, "freed memory is not reachable by devices")
}
