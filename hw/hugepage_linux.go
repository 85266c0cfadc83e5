// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	log2PageSize     = 12
	log2HugePageSize = log2PageSize + 9
	hugePageSize     = 1 << log2HugePageSize

	pfnMask = 1<<55 - 1
)

// HugePages allocates DMA regions out of locked 2MB huge pages.
// Allocations never straddle a huge page so each one is physically
// contiguous.  Needs CAP_SYS_ADMIN to read physical frame numbers.
type HugePages struct {
	mu    sync.Mutex
	data  []byte
	pages []uint64 // physical address of each huge page
	heaps []*Heap
}

// NewHugePages maps n huge pages.
func NewHugePages(n uint) (p *HugePages, err error) {
	p = &HugePages{}
	p.data, err = unix.Mmap(-1, 0, int(n*hugePageSize),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB|unix.MAP_LOCKED|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d huge pages: %w", n, err)
	}
	defer func() {
		if err != nil {
			unix.Munmap(p.data)
			p = nil
		}
	}()

	fd, err := unix.Open("/proc/self/pagemap", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return
	}
	defer unix.Close(fd)

	p.pages = make([]uint64, n)
	for i := range p.pages {
		var b [8]byte
		a := uint64(uintptrOf(p.data)) + uint64(i)*hugePageSize
		if _, err = unix.Pread(fd, b[:], int64(a>>log2PageSize)*8); err != nil {
			return
		}
		v := binary.LittleEndian.Uint64(b[:])
		// Bits 0-54 are the physical page number; bit 63 is present.
		if v&(1<<63) == 0 || v&pfnMask == 0 {
			err = fmt.Errorf("huge page %d: physical address unavailable", i)
			return
		}
		p.pages[i] = (v & pfnMask) << log2PageSize
		p.heaps = append(p.heaps, &Heap{Base: p.pages[i], data: p.data[i*hugePageSize : (i+1)*hugePageSize]})
	}
	return
}

func (p *HugePages) DmaAlloc(n, log2Align uint) (*Region, error) {
	if n > hugePageSize {
		return nil, fmt.Errorf("dma alloc %d bytes: larger than a huge page", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.heaps {
		if r, err := h.DmaAlloc(n, log2Align); err == nil {
			return r, nil
		}
	}
	return nil, fmt.Errorf("dma alloc %d bytes: %w", n, ErrNoMemory)
}

// Translate resolves a physical address inside a live allocation.
func (p *HugePages) Translate(phys uint64, n uint) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.heaps {
		if phys >= h.Base && phys < h.Base+hugePageSize {
			return h.Translate(phys, n)
		}
	}
	return nil, fmt.Errorf("dma 0x%x/%d: not in a huge page", phys, n)
}

func (p *HugePages) InUse() (n uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.heaps {
		n += h.InUse()
	}
	return
}

func (p *HugePages) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heaps = nil
	return unix.Munmap(p.data)
}
