// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// Ownership words are read and written with 32 bit atomics.  Storing the
// word last publishes every other field of the descriptor and its buffer
// to the side that loads it.

var nativeLittle = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

func word(b []byte) *uint32 {
	if len(b) < 4 || uintptr(unsafe.Pointer(&b[0]))&3 != 0 {
		panic(fmt.Errorf("dma: unaligned ownership word"))
	}
	return (*uint32)(unsafe.Pointer(&b[0]))
}

func le(v uint32) uint32 {
	if nativeLittle {
		return v
	}
	return bits.ReverseBytes32(v)
}

// LoadWord atomically loads the little-endian word at b[0:4].
func LoadWord(b []byte) uint32 { return le(atomic.LoadUint32(word(b))) }

// StoreWord atomically stores the little-endian word at b[0:4].
func StoreWord(b []byte, v uint32) { atomic.StoreUint32(word(b), le(v)) }

func (a *Arena) LoadWord(o Offset) uint32     { return LoadWord(a.b[o:]) }
func (a *Arena) StoreWord(o Offset, v uint32) { StoreWord(a.b[o:], v) }

// UpdateWord atomically replaces the word at b[0:4] with f of its value.
// The device may change other bits of the word concurrently.
func UpdateWord(b []byte, f func(uint32) uint32) uint32 {
	p := word(b)
	for {
		old := atomic.LoadUint32(p)
		v := f(le(old))
		if atomic.CompareAndSwapUint32(p, old, le(v)) {
			return v
		}
	}
}

func (a *Arena) UpdateWord(o Offset, f func(uint32) uint32) uint32 { return UpdateWord(a.b[o:], f) }
