// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lancesim is a PCnet-PCI chip behind a port bus and a DMA heap:
// enough of the register set, the init block and both descriptor rings
// to run the lance driver without hardware.
package lancesim

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"net"
	"sync"

	"github.com/platinasystems/log"
	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/hw/pci"
	"github.com/platinasystems/nicdma/lance"
)

type Config struct {
	Mem     hw.BusMemory
	Irqs    *hw.IrqBus
	Irq     uint
	Address net.HardwareAddr
	// Part number reported in CSR88/89; default PCnet-PCI II.
	Part uint16
	// Dword makes the chip answer 32 bit accesses only.
	Dword bool
	// ManualTx holds transmit descriptors until ProcessTx.
	ManualTx bool
}

// Device is one simulated chip.  Register access, Inject and ProcessTx
// may be called from any goroutine.
type Device struct {
	cfg Config

	mu      sync.Mutex
	dwio    bool
	rap     uint32
	csr     [128]uint32
	bcr     [32]uint32
	ib      lance.InitBlock
	inited  bool
	rxi     uint32
	txi     uint32
	partial []byte
	sent    [][]byte
	txErrs  []uint32
	raise   bool

	Resets  int
	Dropped int
}

func New(cfg Config) *Device {
	if cfg.Part == 0 {
		cfg.Part = 0x2621
	}
	if len(cfg.Address) != 6 {
		cfg.Address = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	}
	d := &Device{cfg: cfg, dwio: cfg.Dword}
	d.reset()
	return d
}

// PCI returns a configuration header for the chip at the given i/o base.
func (d *Device) PCI(base uint16) *pci.Config {
	c := &pci.Config{
		DeviceID: pci.DeviceID{Vendor: pci.AMD, Device: lance.DeviceIDs[0]},
		IrqLine:  uint8(d.cfg.Irq),
		IrqPin:   1,
	}
	c.BaseAddressRegs[0] = pci.BaseAddressReg(uint32(base) | 1)
	c.BarSizes[0] = lance.IOSize
	return c
}

// Plug maps the chip's ports on the bus.
func (d *Device) Plug(bus *hw.PortBus, base uint16) error {
	return bus.Map(base, lance.IOSize, d)
}

// do runs f with the lock held, then raises the interrupt line if f left
// an enabled interrupt pending.
func (d *Device) do(f func()) {
	d.mu.Lock()
	f()
	raise := d.raise
	d.raise = false
	d.mu.Unlock()
	if raise && d.cfg.Irqs != nil {
		d.cfg.Irqs.Raise(d.cfg.Irq)
	}
}

func (d *Device) update() {
	if d.csr[0]&lance.CSR0Iena != 0 && d.intr() {
		d.raise = true
	}
}

func (d *Device) intr() bool {
	return d.csr[0]&lance.CSR0Ack != 0 ||
		d.csr[4]&lance.CSR4Ack != 0 ||
		d.csr[5]&lance.CSR5Ack != 0
}

func (d *Device) reset() {
	d.Resets++
	d.rap = 0
	for i := range d.csr {
		d.csr[i] = 0
	}
	d.csr[0] = lance.CSR0Stop
	id := uint32(d.cfg.Part)<<12 | 0x003
	d.csr[lance.CSR88] = id & 0xffff
	d.csr[lance.CSR89] = id >> 16
	d.bcr[lance.BCR20] = 0
	d.inited = false
	d.rxi, d.txi = 0, 0
	d.partial = nil
}

func (d *Device) csr0() uint32 {
	v := d.csr[0] &^ (lance.CSR0Intr | lance.CSR0Err)
	if v&(lance.CSR0Babl|lance.CSR0Cerr|lance.CSR0Miss|lance.CSR0Merr) != 0 {
		v |= lance.CSR0Err
	}
	if d.intr() {
		v |= lance.CSR0Intr
	}
	return v
}

func (d *Device) readCSR(n uint32) uint32 {
	switch n {
	case lance.CSR0:
		return d.csr0()
	case lance.CSR58:
		return d.bcr[lance.BCR20]
	}
	if n < uint32(len(d.csr)) {
		return d.csr[n]
	}
	return 0
}

func (d *Device) writeCSR(n, v uint32) {
	v &= 0xffff
	switch n {
	case lance.CSR0:
		d.writeCSR0(v)
	case lance.CSR4:
		d.csr[4] = d.csr[4]&lance.CSR4Ack&^v | v&^lance.CSR4Ack
	case lance.CSR5:
		d.csr[5] = d.csr[5]&lance.CSR5Ack&^v | v&^lance.CSR5Ack
	case lance.CSR58:
		d.bcr[lance.BCR20] = v
	case lance.CSR88, lance.CSR89:
	default:
		if n < uint32(len(d.csr)) {
			d.csr[n] = v
		}
	}
	d.update()
}

func (d *Device) writeCSR0(v uint32) {
	if v&lance.CSR0Stop != 0 {
		d.csr[0] = lance.CSR0Stop
		d.inited = false
		return
	}
	c := d.csr[0] &^ (v & lance.CSR0Ack)
	c = c&^lance.CSR0Iena | v&lance.CSR0Iena
	d.csr[0] = c
	if v&lance.CSR0Init != 0 {
		d.init()
	}
	if v&lance.CSR0Strt != 0 {
		d.start()
	}
	if v&lance.CSR0Tdmd != 0 && !d.cfg.ManualTx {
		d.processTx(-1)
	}
}

func (d *Device) init() {
	a := d.csr[lance.CSR1] | d.csr[lance.CSR2]<<16
	if d.bcr[lance.BCR20]&0xff != lance.SoftwareStyle2 {
		log.Print("lancesim: init with software style ", d.bcr[lance.BCR20]&0xff)
		d.csr[0] |= lance.CSR0Merr
		return
	}
	b, err := d.cfg.Mem.Translate(uint64(a), lance.InitBlockBytes)
	if err == nil {
		d.ib, err = lance.UnmarshalInitBlock(b)
	}
	if err != nil {
		log.Print("lancesim: init block 0x", fmt.Sprintf("%08x", a), ": ", err)
		d.csr[0] |= lance.CSR0Merr
		return
	}
	d.csr[lance.CSR15] = uint32(d.ib.Mode)
	d.rxi, d.txi = 0, 0
	d.inited = true
	d.csr[0] = d.csr[0]&^lance.CSR0Stop | lance.CSR0Init | lance.CSR0Idon
}

func (d *Device) start() {
	if !d.inited {
		return
	}
	c := d.csr[0]&^lance.CSR0Stop | lance.CSR0Strt
	if d.csr[lance.CSR15]&uint32(lance.ModeDrx) == 0 {
		c |= lance.CSR0Rxon
	}
	if d.csr[lance.CSR15]&uint32(lance.ModeDtx) == 0 {
		c |= lance.CSR0Txon
	}
	d.csr[0] = c
	if !d.cfg.ManualTx {
		d.processTx(-1)
	}
}

func (d *Device) descriptor(ring uint32, i uint32) []byte {
	b, err := d.cfg.Mem.Translate(uint64(ring+i*lance.DescriptorBytes), lance.DescriptorBytes)
	if err != nil {
		log.Print("lancesim: descriptor: ", err)
		d.csr[0] |= lance.CSR0Merr
		return nil
	}
	return b
}

// processTx handles up to limit descriptors; limit < 0 means all posted.
func (d *Device) processTx(limit int) (n int) {
	for d.csr[0]&lance.CSR0Txon != 0 && n != limit {
		desc := d.descriptor(d.ib.TxRing, d.txi)
		if desc == nil {
			break
		}
		w := dma.LoadWord(desc[lance.DescBcntOffset:])
		st := uint16(w >> 16)
		if st&lance.DescOwn == 0 {
			break
		}
		if d.csr[4]&lance.CSR4Txstrtm == 0 {
			d.csr[4] |= lance.CSR4Txstrt
		}
		nb := lance.DecodeBcnt(uint16(w))
		buf, err := d.cfg.Mem.Translate(uint64(binary.LittleEndian.Uint32(desc[lance.DescBufferOffset:])), uint(nb))
		var tmd2 uint32
		if err != nil {
			log.Print("lancesim: tx buffer: ", err)
			tmd2 = lance.TxErrBuff
		} else {
			if st&lance.DescStp != 0 {
				d.partial = d.partial[:0]
			}
			d.partial = append(d.partial, buf...)
		}
		if st&lance.DescEnp != 0 && tmd2 == 0 {
			if len(d.txErrs) > 0 {
				tmd2, d.txErrs = d.txErrs[0], d.txErrs[1:]
			} else {
				d.sent = append(d.sent, append([]byte(nil), d.partial...))
			}
			d.partial = d.partial[:0]
		}
		st &^= lance.DescOwn
		if tmd2 != 0 {
			st |= lance.DescErr
		}
		binary.LittleEndian.PutUint32(desc[lance.DescMiscOffset:], tmd2)
		dma.StoreWord(desc[lance.DescBcntOffset:], uint32(st)<<16|w&0xffff)
		d.txi = (d.txi + 1) % d.ib.TxLen()
		d.csr[0] |= lance.CSR0Tint
		n++
	}
	d.update()
	return
}

func (d *Device) receive(frame []byte, errBits uint16) (ok bool) {
	if d.csr[0]&lance.CSR0Rxon == 0 {
		d.Dropped++
		return
	}
	desc := d.descriptor(d.ib.RxRing, d.rxi)
	if desc == nil {
		return
	}
	w := dma.LoadWord(desc[lance.DescBcntOffset:])
	if uint16(w>>16)&lance.DescOwn == 0 {
		d.csr[0] |= lance.CSR0Miss
		d.csr[lance.CSR112] = (d.csr[lance.CSR112] + 1) & 0xffff
		if d.csr[lance.CSR112] == 0 && d.csr[4]&lance.CSR4Mfcom == 0 {
			d.csr[4] |= lance.CSR4Mfco
		}
		d.update()
		return
	}
	size := lance.DecodeBcnt(uint16(w))
	fcs := make([]byte, 4)
	binary.LittleEndian.PutUint32(fcs, crc32.ChecksumIEEE(frame))
	msg := append(append([]byte(nil), frame...), fcs...)
	st := lance.DescStp | lance.DescEnp | errBits
	if len(msg) > size {
		// No chaining: the frame does not fit one buffer.
		st = lance.DescErr | lance.RxBuff | lance.DescStp
		msg = msg[:size]
	}
	if errBits != 0 {
		st |= lance.DescErr
	}
	buf, err := d.cfg.Mem.Translate(uint64(binary.LittleEndian.Uint32(desc[lance.DescBufferOffset:])), uint(len(msg)))
	if err != nil {
		log.Print("lancesim: rx buffer: ", err)
		d.csr[0] |= lance.CSR0Merr
		d.update()
		return
	}
	copy(buf, msg)
	binary.LittleEndian.PutUint32(desc[lance.DescMiscOffset:], uint32(len(msg)))
	dma.StoreWord(desc[lance.DescBcntOffset:], uint32(st)<<16|w&0xffff)
	d.rxi = (d.rxi + 1) % d.ib.RxLen()
	d.csr[0] |= lance.CSR0Rint
	d.update()
	return true
}

// Inject delivers a frame from the wire; the chip appends the FCS.
// It returns false when the frame was missed or the receiver is off.
func (d *Device) Inject(frame []byte) (ok bool) {
	d.do(func() { ok = d.receive(frame, 0) })
	return
}

// InjectError delivers a frame whose descriptor reports the given
// receive error bits (RxCrc, RxFram, ...).
func (d *Device) InjectError(frame []byte, bits uint16) (ok bool) {
	d.do(func() { ok = d.receive(frame, bits) })
	return
}

// ProcessTx transmits every descriptor the driver has posted.
func (d *Device) ProcessTx() (n int) {
	d.do(func() { n = d.processTx(-1) })
	return
}

// Step transmits at most one posted descriptor.
func (d *Device) Step() (n int) {
	d.do(func() { n = d.processTx(1) })
	return
}

// FailTx makes the next transmit complete with the TMD2 error word.
func (d *Device) FailTx(tmd2 uint32) {
	d.do(func() { d.txErrs = append(d.txErrs, tmd2) })
}

// Sent returns and forgets the frames put on the wire.
func (d *Device) Sent() (s [][]byte) {
	d.do(func() { s, d.sent = d.sent, nil })
	return
}

// UserInterrupt sets CSR4 UINT as if software had written UINTCMD.
func (d *Device) UserInterrupt() {
	d.do(func() {
		d.csr[4] |= lance.CSR4Uint
		d.update()
	})
}

// CSR peeks at a register without side effects.
func (d *Device) CSR(n uint32) (v uint32) {
	d.do(func() { v = d.readCSR(n) })
	return
}

func (d *Device) BCR(n uint32) (v uint32) {
	d.do(func() { v = d.bcr[n%uint32(len(d.bcr))] })
	return
}

func (d *Device) InitBlock() (ib lance.InitBlock) {
	d.do(func() { ib = d.ib })
	return
}

// Dword reports whether the chip is in 32 bit i/o mode.
func (d *Device) Dword() (v bool) {
	d.do(func() { v = d.dwio })
	return
}
