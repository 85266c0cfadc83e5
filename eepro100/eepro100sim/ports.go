// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100sim

import "github.com/platinasystems/nicdma/eepro100"

const (
	eeIdle = iota
	eeOpcode
	eeAddress
	eeData
	eeDone
)

// eeprom is a 93C46/93C66 style serial part clocked through the SCB
// EEPROM control register.
type eeprom struct {
	words []uint16
	bits  uint

	sk    bool
	state int
	n     uint
	op    uint
	addr  uint
	do    bool
}

func newEEPROM(w []uint16, bits uint) eeprom {
	return eeprom{words: w, bits: bits, do: true}
}

func (e *eeprom) write(v uint16) {
	if v&eepro100.EECS == 0 {
		e.state, e.do, e.sk = eeIdle, true, false
		return
	}
	sk := v&eepro100.EESK != 0
	rising := sk && !e.sk
	e.sk = sk
	if !rising {
		return
	}
	var di uint
	if v&eepro100.EEDI != 0 {
		di = 1
	}
	switch e.state {
	case eeIdle:
		if di == 1 {
			e.state, e.n, e.op = eeOpcode, 0, 0
		}
	case eeOpcode:
		e.op = e.op<<1 | di
		if e.n++; e.n == 2 {
			e.state, e.n, e.addr = eeAddress, 0, 0
		}
	case eeAddress:
		e.addr = e.addr<<1 | di
		if e.n++; e.n == e.bits {
			// Dummy zero ahead of the data.
			e.do = false
			e.state, e.n = eeDone, 0
			if e.op == 2 {
				e.state = eeData
			}
		}
	case eeData:
		e.do = e.words[e.addr%uint(len(e.words))]&(0x8000>>e.n) != 0
		if e.n++; e.n == 16 {
			e.state = eeDone
		}
	case eeDone:
		e.do = true
	}
}

func (e *eeprom) read() (v uint16) {
	if e.do {
		v |= eepro100.EEDO
	}
	return
}

func (d *Device) mdiWrite(v uint32) {
	op := v >> 26 & 3
	phy := uint(v>>21) & 0x1f
	reg := uint(v>>16) & 0x1f
	d.mdi = v&0x0fff0000 | eepro100.MDIReady
	d.mdiBusy = d.cfg.MdiBusyReads
	if phy != d.cfg.PhyAddr {
		d.mdi |= 0xffff
		return
	}
	switch op {
	case 1:
		d.phy[reg] = uint16(v)
		d.mdi |= v & 0xffff
	case 2:
		d.mdi |= uint32(d.phy[reg])
	}
}

func (d *Device) In8(port uint16) (v uint8) {
	var w uint16
	switch port &^ 1 {
	case eepro100.SCBStatus, eepro100.SCBCmd, eepro100.SCBEeprom:
		w = d.In16(port &^ 1)
	default:
		return 0xff
	}
	if port&1 != 0 {
		return uint8(w >> 8)
	}
	return uint8(w)
}

func (d *Device) In16(port uint16) (v uint16) {
	d.do(func() {
		switch port {
		case eepro100.SCBStatus:
			v = d.status()
		case eepro100.SCBCmd:
			// Commands are accepted at once; only the mask reads back.
			v = d.mask
		case eepro100.SCBEeprom:
			v = d.ee.read()
		default:
			v = 0xffff
		}
	})
	return
}

func (d *Device) In32(port uint16) (v uint32) {
	d.do(func() {
		switch port {
		case eepro100.SCBStatus:
			v = uint32(d.status()) | uint32(d.mask)<<16
		case eepro100.SCBPointer:
			v = d.pointer
		case eepro100.SCBCtrlMDI:
			if d.mdiBusy > 0 {
				d.mdiBusy--
				v = d.mdi &^ eepro100.MDIReady
			} else if d.cfg.MdiStuck {
				v = d.mdi &^ eepro100.MDIReady
			} else {
				v = d.mdi
			}
		case eepro100.SCBPort:
			v = 0
		default:
			v = 0xffffffff
		}
	})
	return
}

func (d *Device) Out8(port uint16, v uint8) {
	d.do(func() {
		switch port {
		case eepro100.SCBStatus + 1:
			d.ack(uint16(v) << 8)
		case eepro100.SCBCmd:
			d.command(d.mask | uint16(v))
		case eepro100.SCBCmd + 1:
			d.command(uint16(v) << 8)
		}
	})
}

func (d *Device) ack(v uint16) {
	d.stat &^= v & 0xff00
	d.update()
}

func (d *Device) Out16(port uint16, v uint16) {
	d.do(func() {
		switch port {
		case eepro100.SCBStatus:
			d.ack(v)
		case eepro100.SCBCmd:
			d.command(v)
		case eepro100.SCBEeprom:
			d.ee.write(v)
		}
	})
}

func (d *Device) Out32(port uint16, v uint32) {
	d.do(func() {
		switch port {
		case eepro100.SCBPointer:
			d.pointer = v
		case eepro100.SCBPort:
			d.port(v)
		case eepro100.SCBCtrlMDI:
			d.mdiWrite(v)
		}
	})
}
