// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import "fmt"

// Owner tells which side may write a descriptor.
type Owner uint8

const (
	Software Owner = iota
	Hardware
)

func (o Owner) String() string {
	switch o {
	case Software:
		return "sw"
	case Hardware:
		return "hw"
	}
	return fmt.Sprintf("owner %d", uint8(o))
}

const MaxRingLog2 = 9

// Cursor indexes a power of two sized ring and wraps modulo its length.
type Cursor struct {
	i, mask uint32
	// Number of times the index has wrapped to zero.
	Laps uint64
}

// NewCursor returns a cursor over a ring of n slots.
func NewCursor(n uint32) (c Cursor, err error) {
	if n == 0 || n&(n-1) != 0 || n > 1<<MaxRingLog2 {
		err = fmt.Errorf("ring length %d: must be a power of 2 between 1 and %d", n, 1<<MaxRingLog2)
		return
	}
	c.mask = n - 1
	return
}

// Log2Len returns the exponent of a valid ring length.
func Log2Len(n uint32) (l uint8) {
	for ; n > 1; n >>= 1 {
		l++
	}
	return
}

func (c *Cursor) Index() uint32 { return c.i }
func (c *Cursor) Len() uint32   { return c.mask + 1 }

func (c *Cursor) Advance() {
	c.i = (c.i + 1) & c.mask
	if c.i == 0 {
		c.Laps++
	}
}

func (c *Cursor) Reset() { c.i, c.Laps = 0, 0 }

func (c Cursor) String() string { return fmt.Sprintf("%d/%d", c.i, c.mask+1) }
