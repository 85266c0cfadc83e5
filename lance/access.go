// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

import (
	"fmt"

	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/nic"
)

type Width uint8

const (
	Word Width = iota
	Dword
)

func (w Width) String() string {
	if w == Dword {
		return "dword"
	}
	return "word"
}

// RegisterAccess reaches CSRs and BCRs indirectly: the register number
// goes to RAP, data moves through RDP (CSR) or BDP (BCR).
type RegisterAccess interface {
	Width() Width
	// Reset reads the reset port: a software reset that leaves the chip stopped.
	Reset()
	CSR(n uint32) uint32
	SetCSR(n, v uint32)
	BCR(n uint32) uint32
	SetBCR(n, v uint32)
}

type wordAccess struct{ w *hw.Window }

func (a wordAccess) Width() Width { return Word }
func (a wordAccess) Reset()       { a.w.Get16(WordReset) }

func (a wordAccess) CSR(n uint32) uint32 {
	a.w.Set16(WordRAP, uint16(n))
	return uint32(a.w.Get16(WordRDP))
}

func (a wordAccess) SetCSR(n, v uint32) {
	a.w.Set16(WordRAP, uint16(n))
	a.w.Set16(WordRDP, uint16(v))
}

func (a wordAccess) BCR(n uint32) uint32 {
	a.w.Set16(WordRAP, uint16(n))
	return uint32(a.w.Get16(WordBDP))
}

func (a wordAccess) SetBCR(n, v uint32) {
	a.w.Set16(WordRAP, uint16(n))
	a.w.Set16(WordBDP, uint16(v))
}

func (a wordAccess) probe() bool {
	a.Reset()
	a.w.Set16(WordRAP, CSR0)
	if a.w.Get16(WordRDP) != uint16(CSR0Stop) {
		return false
	}
	a.w.Set16(WordRAP, CSR88)
	return a.w.Get16(WordRAP) == CSR88
}

type dwordAccess struct{ w *hw.Window }

func (a dwordAccess) Width() Width { return Dword }
func (a dwordAccess) Reset()       { a.w.Get32(DwordReset) }

func (a dwordAccess) CSR(n uint32) uint32 {
	a.w.Set32(DwordRAP, n)
	return a.w.Get32(DwordRDP) & 0xffff
}

func (a dwordAccess) SetCSR(n, v uint32) {
	a.w.Set32(DwordRAP, n)
	a.w.Set32(DwordRDP, v)
}

func (a dwordAccess) BCR(n uint32) uint32 {
	a.w.Set32(DwordRAP, n)
	return a.w.Get32(DwordBDP) & 0xffff
}

func (a dwordAccess) SetBCR(n, v uint32) {
	a.w.Set32(DwordRAP, n)
	a.w.Set32(DwordBDP, v)
}

func (a dwordAccess) probe() bool {
	a.Reset()
	a.w.Set32(DwordRAP, CSR0)
	if a.w.Get32(DwordRDP)&0xffff != CSR0Stop {
		return false
	}
	a.w.Set32(DwordRAP, CSR88)
	return a.w.Get32(DwordRAP)&0xffff == CSR88
}

// probeAccess tries word access first, then dword.
func probeAccess(w *hw.Window) (RegisterAccess, error) {
	if a := (wordAccess{w}); a.probe() {
		return a, nil
	}
	if a := (dwordAccess{w}); a.probe() {
		return a, nil
	}
	return nil, fmt.Errorf("%v: no csr0 stop or rap readback: %w", w, nic.ErrNotRecognized)
}
