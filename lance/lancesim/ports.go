// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lancesim

import "github.com/platinasystems/nicdma/lance"

func (d *Device) aprom(o uint16) byte {
	switch {
	case o < 6:
		return d.cfg.Address[o]
	case o >= 14:
		return 'W'
	}
	return 0
}

func (d *Device) In8(port uint16) (v uint8) {
	d.do(func() {
		v = 0xff
		if port < lance.APROMSize {
			v = d.aprom(port)
		}
	})
	return
}

func (d *Device) In16(port uint16) (v uint16) {
	d.do(func() {
		v = 0xffff
		if port < lance.APROMSize {
			v = uint16(d.aprom(port)) | uint16(d.aprom(port+1))<<8
			return
		}
		if d.dwio {
			return
		}
		switch port {
		case lance.WordRDP:
			v = uint16(d.readCSR(d.rap))
		case lance.WordRAP:
			v = uint16(d.rap)
		case lance.WordReset:
			d.reset()
			v = 0
		case lance.WordBDP:
			v = uint16(d.bcr[d.rap%uint32(len(d.bcr))])
		}
	})
	return
}

func (d *Device) In32(port uint16) (v uint32) {
	d.do(func() {
		v = 0xffffffff
		if port < lance.APROMSize {
			v = 0
			for i := uint16(0); i < 4; i++ {
				v |= uint32(d.aprom(port+i)) << (8 * i)
			}
			return
		}
		if !d.dwio {
			return
		}
		switch port {
		case lance.DwordRDP:
			v = d.readCSR(d.rap)
		case lance.DwordRAP:
			v = d.rap
		case lance.DwordReset:
			d.reset()
			v = 0
		case lance.DwordBDP:
			v = d.bcr[d.rap%uint32(len(d.bcr))]
		}
	})
	return
}

func (d *Device) Out8(port uint16, v uint8) {}

func (d *Device) Out16(port uint16, v uint16) {
	d.do(func() {
		if d.dwio {
			return
		}
		switch port {
		case lance.WordRAP:
			d.rap = uint32(v) & 0x7f
		case lance.WordRDP:
			d.writeCSR(d.rap, uint32(v))
		case lance.WordBDP:
			d.bcr[d.rap%uint32(len(d.bcr))] = uint32(v)
		}
	})
}

func (d *Device) Out32(port uint16, v uint32) {
	d.do(func() {
		if !d.dwio {
			// A dword write to RDP switches the chip to 32 bit i/o.
			if port == lance.DwordRDP {
				d.dwio = true
			}
			return
		}
		switch port {
		case lance.DwordRAP:
			d.rap = v & 0x7f
		case lance.DwordRDP:
			d.writeCSR(d.rap, v)
		case lance.DwordBDP:
			d.bcr[d.rap%uint32(len(d.bcr))] = v & 0xffff
		}
	})
}
