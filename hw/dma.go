// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"errors"
	"fmt"
)

var ErrNoMemory = errors.New("out of dma memory")

// Allocator hands out physically contiguous DMA regions.
type Allocator interface {
	DmaAlloc(n, log2Align uint) (*Region, error)
}

// Region is a physically contiguous block of DMA memory.  The region
// never moves while allocated.
type Region struct {
	phys uint64
	b    []byte
	free func(*Region)
}

func (r *Region) Phys() uint64  { return r.phys }
func (r *Region) Bytes() []byte { return r.b }
func (r *Region) Len() uint     { return uint(len(r.b)) }

// Freed reports whether Free has been called.
func (r *Region) Freed() bool { return r.b == nil }

// Free returns the region to its allocator; the byte view is invalid
// afterwards.  Calling Free more than once is harmless.
func (r *Region) Free() {
	if f := r.free; f != nil {
		r.free = nil
		f(r)
		r.b = nil
	}
}

func (r *Region) String() string {
	return fmt.Sprintf("dma 0x%x-0x%x", r.phys, r.phys+uint64(len(r.b)))
}
