// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"fmt"
	"sort"
	"sync"
)

// BusMemory is memory as seen by a bus-mastering device.
type BusMemory interface {
	// Translate returns the n bytes at physical address phys.
	Translate(phys uint64, n uint) ([]byte, error)
}

type heapChunk struct {
	offset, len uint
}

// Heap is a DMA allocator over one contiguous block of memory whose first
// byte sits at physical address Base.  It also serves device side
// accesses through Translate.
type Heap struct {
	Base uint64

	mu     sync.Mutex
	data   []byte
	chunks []heapChunk // sorted by offset
}

// NewHeap returns a Heap of n bytes at physical address base.
func NewHeap(base uint64, n uint) *Heap {
	return &Heap{Base: base, data: make([]byte, n)}
}

func (h *Heap) DmaAlloc(n, log2Align uint) (r *Region, err error) {
	if n == 0 {
		return nil, fmt.Errorf("dma alloc: zero length")
	}
	align := uint(1) << log2Align
	h.mu.Lock()
	defer h.mu.Unlock()
	o, i := uint(0), 0
	for ; ; i++ {
		// Align physical address, not offset.
		a := uint((h.Base + uint64(o) + uint64(align) - 1) &^ uint64(align-1))
		o = a - uint(h.Base)
		end := uint(len(h.data))
		if i < len(h.chunks) {
			end = h.chunks[i].offset
		}
		if o+n <= end {
			break
		}
		if i >= len(h.chunks) {
			return nil, fmt.Errorf("dma alloc %d bytes: %w", n, ErrNoMemory)
		}
		o = h.chunks[i].offset + h.chunks[i].len
	}
	h.chunks = append(h.chunks, heapChunk{})
	copy(h.chunks[i+1:], h.chunks[i:])
	h.chunks[i] = heapChunk{offset: o, len: n}
	b := h.data[o : o+n : o+n]
	for x := range b {
		b[x] = 0
	}
	r = &Region{phys: h.Base + uint64(o), b: b, free: h.put}
	return
}

func (h *Heap) put(r *Region) {
	o := uint(r.phys - h.Base)
	h.mu.Lock()
	defer h.mu.Unlock()
	i := sort.Search(len(h.chunks), func(i int) bool { return h.chunks[i].offset >= o })
	if i < len(h.chunks) && h.chunks[i].offset == o {
		h.chunks = append(h.chunks[:i], h.chunks[i+1:]...)
	}
}

// Translate only resolves addresses inside a live allocation, so a device
// writing through a stale pointer gets an error instead of scribbling.
func (h *Heap) Translate(phys uint64, n uint) ([]byte, error) {
	if phys < h.Base {
		return nil, fmt.Errorf("dma 0x%x: below heap", phys)
	}
	o := uint(phys - h.Base)
	h.mu.Lock()
	defer h.mu.Unlock()
	i := sort.Search(len(h.chunks), func(i int) bool {
		c := &h.chunks[i]
		return c.offset+c.len > o
	})
	if i >= len(h.chunks) || h.chunks[i].offset > o || o+n > h.chunks[i].offset+h.chunks[i].len {
		return nil, fmt.Errorf("dma 0x%x/%d: not allocated", phys, n)
	}
	return h.data[o : o+n : o+n], nil
}

// InUse returns the number of allocated bytes.
func (h *Heap) InUse() (n uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.chunks {
		n += c.len
	}
	return
}

func (h *Heap) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("heap 0x%x: %d chunks, %d bytes", h.Base, len(h.chunks), len(h.data))
}
