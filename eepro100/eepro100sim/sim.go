// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eepro100sim is an i82557 behind a port bus and a DMA heap: the
// system control block, PORT, serial EEPROM, MDI and the simplified mode
// command and receive units, enough to run the eepro100 driver without
// hardware.
package eepro100sim

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/eepro100"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/hw/pci"
)

type Config struct {
	Mem     hw.BusMemory
	Irqs    *hw.IrqBus
	Irq     uint
	Address net.HardwareAddr
	// Device id in the configuration header; default 82557.
	DeviceID pci.VendorDeviceID

	// PHY type and address written to EEPROM word 6; default DP83840 at 1.
	PhyType uint
	PhyAddr uint
	// 6 (64 words, default) or 8 (256 words).
	EEPROMAddressBits uint
	BadChecksum       bool

	// Result word written by PORT self-test; NoSelfTest never answers.
	SelfTestResult uint32
	NoSelfTest     bool

	// SaveBad stores errored frames with their error bits instead of
	// discarding them.
	SaveBad bool
	// ManualTx holds command blocks until ProcessTx or Step.
	ManualTx bool
	// StatsDelay postpones writing a statistics dump.
	StatsDelay time.Duration
	// MDI control reads that show a cycle still running; MdiStuck never
	// finishes one.
	MdiBusyReads int
	MdiStuck     bool
}

// Device is one simulated chip.  Register access, Inject and ProcessTx
// may be called from any goroutine.
type Device struct {
	cfg Config

	mu        sync.Mutex
	ee        eeprom
	phy       [32]uint16
	stat      uint16
	cu, ru    uint16
	mask      uint16
	pointer   uint32
	mdi       uint32
	mdiBusy   int
	cuBase    uint32
	ruBase    uint32
	cuPtr     uint32
	ruPtr     uint32
	statsAddr uint32
	stats     [eepro100.StatsCounters]uint32
	sent      [][]byte
	txErrs    []uint16
	raise     bool

	Resets  int
	Dropped int
}

func New(cfg Config) *Device {
	if len(cfg.Address) != 6 {
		cfg.Address = net.HardwareAddr{0x00, 0xaa, 0x00, 0x12, 0x34, 0x56}
	}
	if cfg.DeviceID == 0 {
		cfg.DeviceID = 0x1229
	}
	if cfg.PhyType == 0 {
		cfg.PhyType = eepro100.PhyDP83840
	}
	if cfg.PhyAddr == 0 {
		cfg.PhyAddr = 1
	}
	if cfg.EEPROMAddressBits != 8 {
		cfg.EEPROMAddressBits = 6
	}
	d := &Device{cfg: cfg}
	d.ee = newEEPROM(d.image(), cfg.EEPROMAddressBits)
	d.phy[0] = 0x3100
	d.phy[1] = 0x782d
	d.phy[2] = 0x2000
	d.phy[3] = 0x5c01
	d.reset()
	return d
}

// image is the EEPROM contents: station address, PHY word and a
// checksum word making the sum 0xbaba.
func (d *Device) image() []uint16 {
	w := make([]uint16, 1<<d.cfg.EEPROMAddressBits)
	for i := 0; i < 3; i++ {
		w[i] = uint16(d.cfg.Address[2*i]) | uint16(d.cfg.Address[2*i+1])<<8
	}
	w[6] = uint16(d.cfg.PhyType&0x3f)<<8 | uint16(d.cfg.PhyAddr&0x1f)
	var sum uint16
	for _, v := range w[:len(w)-1] {
		sum += v
	}
	w[len(w)-1] = eepro100.EEPROMChecksum - sum
	if d.cfg.BadChecksum {
		w[len(w)-1]++
	}
	return w
}

// PCI returns a configuration header for the chip at the given i/o base.
func (d *Device) PCI(base uint16) *pci.Config {
	c := &pci.Config{
		DeviceID: pci.DeviceID{Vendor: pci.Intel, Device: d.cfg.DeviceID},
		IrqLine:  uint8(d.cfg.Irq),
		IrqPin:   1,
	}
	// BAR 0 is the memory mapped CSR window; the driver uses BAR 1.
	c.BaseAddressRegs[0] = pci.BaseAddressReg(0xfebff000)
	c.BarSizes[0] = 0x1000
	c.BaseAddressRegs[1] = pci.BaseAddressReg(uint32(base) | 1)
	c.BarSizes[1] = eepro100.IOSize
	return c
}

// Plug maps the chip's ports on the bus.
func (d *Device) Plug(bus *hw.PortBus, base uint16) error {
	return bus.Map(base, eepro100.IOSize, d)
}

// do runs f with the lock held, then raises the interrupt line if f left
// an unmasked interrupt pending.
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
	if d.mask&eepro100.SCBMaskAll == 0 && d.stat != 0 {
		d.raise = true
	}
}

func (d *Device) reset() {
	d.Resets++
	d.stat = 0
	d.cu, d.ru = eepro100.CUIdle, eepro100.RUIdle
	d.mask = eepro100.SCBMaskAll
	d.pointer = 0
	d.cuBase, d.ruBase = 0, 0
	d.cuPtr, d.ruPtr = 0, 0
	d.statsAddr = 0
}

func (d *Device) status() uint16 { return d.stat | d.cu | d.ru }

func (d *Device) translate(a uint32, n uint) []byte {
	b, err := d.cfg.Mem.Translate(uint64(a), n)
	if err != nil {
		log.Printf("eepro100sim: dma 0x%08x/%d: %v", a, n, err)
		return nil
	}
	return b
}

// port handles a write to the PORT register.
func (d *Device) port(v uint32) {
	a := v &^ 0xf
	switch v & 0xf {
	case eepro100.PortReset:
		d.reset()
	case eepro100.PortSelfTest:
		if d.cfg.NoSelfTest {
			return
		}
		if b := d.translate(a, eepro100.SelfTestBytes); b != nil {
			binary.LittleEndian.PutUint32(b[4:], d.cfg.SelfTestResult)
			dma.StoreWord(b, 0x5a5a5a5a)
		}
		d.reset()
	case eepro100.PortSelectiveReset:
		d.cu, d.ru = eepro100.CUIdle, eepro100.RUIdle
	}
}

// command handles a write to the SCB command word.
func (d *Device) command(v uint16) {
	d.mask = v & eepro100.SCBMaskAll
	if v&eepro100.SCBTriggerIntr != 0 {
		d.stat |= eepro100.StatSWI
	}
	switch v & eepro100.CUMask {
	case eepro100.CUStart:
		d.cuPtr = d.cuBase + d.pointer
		d.cu = eepro100.CUActive
		d.runCU(-1)
	case eepro100.CUResume:
		if d.cu == eepro100.CUSuspended {
			d.cuPtr = d.link(d.cuPtr)
			d.cu = eepro100.CUActive
			d.runCU(-1)
		}
	case eepro100.CUStatsAddr:
		d.statsAddr = d.pointer
	case eepro100.CUCmdBase:
		d.cuBase = d.pointer
	case eepro100.CUShowStats:
		d.dumpStats(eepro100.StatsDumpDone)
	case eepro100.CUDumpStats:
		d.dumpStats(eepro100.StatsDumpReset)
	}
	switch v & eepro100.RUMask {
	case eepro100.RUStart:
		d.ruPtr = d.ruBase + d.pointer
		d.ru = eepro100.RUReady
	case eepro100.RUResume:
		if d.ru == eepro100.RUSuspended {
			d.ru = eepro100.RUReady
		}
	case eepro100.RUAbort:
		d.ru = eepro100.RUIdle
	case eepro100.RUAddrLoad:
		d.ruBase = d.pointer
	}
	d.update()
}

func (d *Device) dumpStats(done uint32) {
	if d.cfg.StatsDelay > 0 {
		a, stats := d.statsAddr, d.stats
		if done == eepro100.StatsDumpReset {
			d.stats = [eepro100.StatsCounters]uint32{}
		}
		time.AfterFunc(d.cfg.StatsDelay, func() {
			d.do(func() { d.writeStats(a, &stats, done) })
		})
		return
	}
	d.writeStats(d.statsAddr, &d.stats, done)
	if done == eepro100.StatsDumpReset {
		d.stats = [eepro100.StatsCounters]uint32{}
	}
}

func (d *Device) writeStats(a uint32, stats *[eepro100.StatsCounters]uint32, done uint32) {
	b := d.translate(a, eepro100.StatsBytes)
	if b == nil {
		return
	}
	for i, v := range stats {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	dma.StoreWord(b[eepro100.StatsDoneOffset:], done)
}

func (d *Device) link(a uint32) uint32 {
	if b := d.translate(a, eepro100.RecHeaderBytes); b != nil {
		return binary.LittleEndian.Uint32(b[eepro100.RecLinkOffset:])
	}
	return 0
}

// complete sets the status half of a record's first word, keeping the
// command half the driver may be changing.
func complete(b []byte, st uint16) uint32 {
	return dma.UpdateWord(b, func(w uint32) uint32 { return w&0xffff0000 | uint32(st) })
}

// runCU executes up to limit command blocks; limit < 0 runs until the
// unit suspends or goes idle.
func (d *Device) runCU(limit int) (n int) {
	for d.cu == eepro100.CUActive && n != limit && !(d.cfg.ManualTx && limit < 0) {
		h := d.translate(d.cuPtr, eepro100.RecHeaderBytes)
		if h == nil {
			d.cu = eepro100.CUIdle
			d.stat |= eepro100.StatCNA
			break
		}
		cmd := uint16(dma.LoadWord(h) >> 16)
		st := eepro100.StatusC | eepro100.StatusOK
		if cmd&eepro100.CmdTypeMask == eepro100.CmdTx {
			st = d.transmit(h)
		}
		w := complete(h, st)
		cmd = uint16(w >> 16)
		n++
		if cmd&eepro100.CmdI != 0 {
			d.stat |= eepro100.StatCX
		}
		switch {
		case cmd&eepro100.CmdEL != 0:
			d.cu = eepro100.CUIdle
			d.stat |= eepro100.StatCNA
		case cmd&eepro100.CmdS != 0:
			d.cu = eepro100.CUSuspended
			d.stat |= eepro100.StatCNA
		default:
			d.cuPtr = binary.LittleEndian.Uint32(h[eepro100.RecLinkOffset:])
		}
	}
	d.update()
	return
}

func (d *Device) transmit(h []byte) uint16 {
	if len(d.txErrs) > 0 {
		var st uint16
		st, d.txErrs = d.txErrs[0], d.txErrs[1:]
		if st&eepro100.TxStatusU != 0 {
			d.stats[eepro100.StatTxUnderruns]++
		}
		return eepro100.StatusC | st
	}
	n := uint(binary.LittleEndian.Uint16(h[eepro100.TxCountOffset:]) & eepro100.TxCountMask)
	b := d.translate(d.cuPtr+eepro100.RecHeaderBytes, n)
	if b == nil {
		return eepro100.StatusC
	}
	d.sent = append(d.sent, append([]byte(nil), b...))
	d.stats[eepro100.StatTxGood]++
	return eepro100.StatusC | eepro100.StatusOK
}

var rxErrorStats = []struct {
	bit uint16
	i   int
}{
	{eepro100.RxCRC, eepro100.StatRxCrcErrors},
	{eepro100.RxAlign, eepro100.StatRxAlignmentErrors},
	{eepro100.RxNoRes, eepro100.StatRxResourceErrors},
	{eepro100.RxOverrun, eepro100.StatRxOverrunErrors},
	{eepro100.RxShort, eepro100.StatRxShortFrames},
}

func (d *Device) countRxErrors(bits uint16) {
	for _, x := range rxErrorStats {
		if bits&x.bit != 0 {
			d.stats[x.i]++
		}
	}
}

func (d *Device) receive(frame []byte, errBits uint16) (ok bool) {
	if d.ru != eepro100.RUReady {
		d.Dropped++
		d.stats[eepro100.StatRxResourceErrors]++
		return
	}
	h := d.translate(d.ruPtr, eepro100.RecHeaderBytes)
	if h == nil {
		return
	}
	w := dma.LoadWord(h)
	if uint16(w)&eepro100.StatusC != 0 {
		// Not yet given back by the driver.
		d.ru = eepro100.RUNoResources
		d.stat |= eepro100.StatRNR
		d.stats[eepro100.StatRxResourceErrors]++
		d.update()
		return
	}
	size := uint(binary.LittleEndian.Uint16(h[eepro100.RxSizeOffset:]))
	if uint(len(frame)) > size {
		errBits |= eepro100.RxOverrun
	}
	if errBits != 0 && !d.cfg.SaveBad {
		d.countRxErrors(errBits)
		d.update()
		return
	}
	n := uint(len(frame))
	if n > size {
		n = size
	}
	b := d.translate(d.ruPtr+eepro100.RecHeaderBytes, n)
	if b == nil {
		return
	}
	copy(b, frame)
	binary.LittleEndian.PutUint16(h[eepro100.RxCountOffset:], uint16(n)|eepro100.RxEOF|eepro100.RxF)
	// Saved bad frames are reported through their descriptor only.
	st := eepro100.StatusC | errBits
	if errBits == 0 {
		st |= eepro100.StatusOK
		d.stats[eepro100.StatRxGood]++
	}
	w = complete(h, st)
	d.stat |= eepro100.StatFR
	if uint16(w>>16)&eepro100.CmdEL != 0 {
		d.ru = eepro100.RUNoResources
		d.stat |= eepro100.StatRNR
	}
	d.ruPtr = binary.LittleEndian.Uint32(h[eepro100.RecLinkOffset:])
	d.update()
	return errBits == 0
}

// Inject delivers a frame from the wire.  It returns false when the frame
// was not stored.
func (d *Device) Inject(frame []byte) (ok bool) {
	d.do(func() { ok = d.receive(frame, 0) })
	return
}

// InjectError delivers a frame with the given receive status error bits.
func (d *Device) InjectError(frame []byte, bits uint16) (ok bool) {
	d.do(func() { ok = d.receive(frame, bits) })
	return
}

// ProcessTx runs the command unit until it suspends or goes idle.
func (d *Device) ProcessTx() (n int) {
	d.do(func() {
		manual := d.cfg.ManualTx
		d.cfg.ManualTx = false
		n = d.runCU(-1)
		d.cfg.ManualTx = manual
	})
	return
}

// Step executes at most one command block.
func (d *Device) Step() (n int) {
	d.do(func() { n = d.runCU(1) })
	return
}

// FailTx makes the next transmit complete with the given status bits,
// e.g. TxStatusU, in place of OK.
func (d *Device) FailTx(st uint16) {
	d.do(func() { d.txErrs = append(d.txErrs, st) })
}

// Sent returns and forgets the frames put on the wire.
func (d *Device) Sent() (s [][]byte) {
	d.do(func() { s, d.sent = d.sent, nil })
	return
}

// UserInterrupt sets SWI as if software had written SCBTriggerIntr.
func (d *Device) UserInterrupt() {
	d.do(func() {
		d.stat |= eepro100.StatSWI
		d.update()
	})
}

// AddStat bumps a statistics counter as if the chip had seen the event.
func (d *Device) AddStat(i int, n uint32) {
	d.do(func() { d.stats[i] += n })
}

func (d *Device) Stats() (s [eepro100.StatsCounters]uint32) {
	d.do(func() { s = d.stats })
	return
}

// Status peeks at the SCB status word.
func (d *Device) Status() (v uint16) {
	d.do(func() { v = d.status() })
	return
}

func (d *Device) PhyReg(reg uint) (v uint16) {
	d.do(func() { v = d.phy[reg&0x1f] })
	return
}

// CUPointer is the address of the command block the unit is on.
func (d *Device) CUPointer() (p uint32) {
	d.do(func() { p = d.cuPtr })
	return
}
