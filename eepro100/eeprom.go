// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"fmt"
	"net"

	"github.com/platinasystems/nicdma/hw"
)

const EEPROMChecksum = 0xbaba

// EEPROM is the contents of the serial configuration EEPROM.
type EEPROM struct {
	Words []uint16
	// Number of address bits the part decodes: 6 or 8.
	AddressBits uint
}

// eepromCmd clocks the low n+1 bits of cmd into the EEPROM, most
// significant first, and returns the bits read back on DO.
func eepromCmd(w *hw.Window, cmd uint32, n int) (v uint32) {
	w.Set16(SCBEeprom, EEEnable)
	w.Set16(SCBEeprom, EEEnable|EESK)
	for i := n; i >= 0; i-- {
		d := EEWrite0
		if cmd&(1<<uint(i)) != 0 {
			d = EEWrite1
		}
		w.Set16(SCBEeprom, d)
		w.Set16(SCBEeprom, d|EESK)
		v <<= 1
		if w.Get16(SCBEeprom)&EEDO != 0 {
			v |= 1
		}
	}
	w.Set16(SCBEeprom, EEEnable)
	w.Set16(SCBEeprom, EEEnable&^EECS)
	return
}

// readEEPROM sizes the part then reads every word.  A 256 word part is
// still sending address bits where a 64 word part drives its dummy zero.
func readEEPROM(w *hw.Window) (e EEPROM) {
	const cmdBits = 27
	readCmd := uint32(EEReadCmd) << 24
	e.AddressBits = 8
	if eepromCmd(w, readCmd, cmdBits)&0xffe0000 != 0xffe0000 {
		readCmd = uint32(EEReadCmd) << 22
		e.AddressBits = 6
	}
	e.Words = make([]uint16, 1<<e.AddressBits)
	for i := range e.Words {
		e.Words[i] = uint16(eepromCmd(w, readCmd|uint32(i)<<16, cmdBits))
	}
	return
}

// Sum of all words; a good image sums to EEPROMChecksum.
func (e *EEPROM) Sum() (s uint16) {
	for _, v := range e.Words {
		s += v
	}
	return
}

func (e *EEPROM) Valid() bool { return len(e.Words) > 0 && e.Sum() == EEPROMChecksum }

// Address is the station address from words 0 through 2, low byte first.
func (e *EEPROM) Address() net.HardwareAddr {
	a := make(net.HardwareAddr, 6)
	for i := 0; i < 3 && i < len(e.Words); i++ {
		a[2*i] = byte(e.Words[i])
		a[2*i+1] = byte(e.Words[i] >> 8)
	}
	return a
}

// Phy returns the primary PHY's address and type from word 6.
func (e *EEPROM) Phy() (addr, typ uint) {
	if len(e.Words) < 7 {
		return
	}
	return uint(e.Words[6] & 0x1f), uint(e.Words[6]>>8) & 0x3f
}

func (e *EEPROM) String() string {
	return fmt.Sprintf("%d words, sum 0x%04x, address %v", len(e.Words), e.Sum(), e.Address())
}
