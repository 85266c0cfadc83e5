// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lance drives AMD PCnet (Lance) family ethernet controllers
// using 32 bit software style 2 descriptor rings.
package lance

import (
	"fmt"
	"net"

	"github.com/platinasystems/log"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/hw/pci"
	"github.com/platinasystems/nicdma/nic"
)

// Bound on interrupt causes handled per service call.
const maxServiceLoops = 32

type Core struct {
	*nic.Engine

	Chip Chip

	cfg     Config
	dev     pci.Device
	irq     *hw.Irq
	ports   *hw.Window
	io      RegisterAccess
	address net.HardwareAddr
	bm      *BufferManager
	rx      nic.Receiver
	scratch []byte

	// Set once CSR0 has shown STOP, cleared by Initialize.  The DMA
	// region is only freed while set.
	stopped bool
}

// Attach claims the device's interrupt line and ports, identifies the
// chip and builds its buffers.  On error everything claimed is given back.
func Attach(dev pci.Device, res hw.Resources, alloc hw.Allocator, cfg Config, rx nic.Receiver) (c *Core, err error) {
	cfg.setDefaults()
	if err = cfg.validate(); err != nil {
		return
	}
	bar, ok := dev.Resource(0)
	if !ok || !bar.BAR.IsIO() {
		return nil, fmt.Errorf("%s: %v: bar 0 %v: %w", cfg.Name, dev.Addr(), bar.BAR, nic.ErrNoIOBase)
	}
	size := bar.Size
	if size == 0 {
		size = IOSize
	}
	if size < IOSize || bar.Base+size > 1<<16 {
		return nil, fmt.Errorf("%s: %v: i/o range %v: %w", cfg.Name, dev.Addr(), bar, nic.ErrNoIOBase)
	}
	if rx == nil {
		rx = nic.Discard
	}

	c = &Core{
		Engine:  nic.NewEngine(cfg.Name, cfg.Polled, cfg.Registry),
		cfg:     cfg,
		dev:     dev,
		rx:      rx,
		scratch: make([]byte, cfg.BufferBytes),
	}
	defer func() {
		if err != nil {
			c.rollback()
			c = nil
		}
	}()

	if c.irq, err = res.ClaimIrq(cfg.Name, dev.InterruptLine(), c); err != nil {
		return
	}
	if c.ports, err = res.ClaimPorts(cfg.Name, uint16(bar.Base), uint16(size)); err != nil {
		return
	}
	if c.io, err = probeAccess(c.ports); err != nil {
		return
	}
	c.Chip = chipFromID(c.io.CSR(CSR88) | c.io.CSR(CSR89)<<16)
	if !c.Chip.Known() {
		log.Print("err", cfg.Name, ": ", c.Chip, ": unknown part, treating as PCnet-PCI")
	}

	if cfg.Address != "" {
		c.address, _ = cfg.stationAddress()
	} else {
		c.address = make(net.HardwareAddr, 6)
		for i := range c.address {
			c.address[i] = c.ports.Get8(APROM + uint16(i))
		}
	}

	if c.bm, err = NewBufferManager(alloc, &c.cfg, c.address, c.Counters); err != nil {
		return
	}
	c.stopped = true
	dev.SetCommand(dev.Command() | pci.IOEnable | pci.BusMasterEnable)
	if err = c.SetState(nic.Attached); err != nil {
		return
	}
	log.Printf("info", "%s: %v at 0x%04x irq %d, %v access, address %v",
		cfg.Name, c.Chip, bar.Base, dev.InterruptLine(), c.io.Width(), c.address)
	return
}

func (c *Core) rollback() {
	if c.bm != nil {
		c.bm.Free()
	}
	if c.ports != nil {
		c.ports.Release()
	}
	if c.irq != nil {
		c.irq.Release()
	}
	c.Engine.Close()
	c.Counters.Unregister()
}

func (c *Core) Address() net.HardwareAddr { return c.address }
func (c *Core) Width() Width              { return c.io.Width() }
func (c *Core) Config() Config            { return c.cfg }

// Buffers is the core's buffer manager; hold the lock while touching it.
func (c *Core) Buffers() *BufferManager { return c.bm }

// Init starts initialization for the pci driver registry.
func (c *Core) Init() error { return c.Initialize() }

// Initialize resets the chip, points it at the init block and issues
// INIT.  Receive and transmit start once the chip reports IDON.
func (c *Core) Initialize() error {
	c.Lock()
	defer c.Unlock()
	switch s := c.State(); s {
	case nic.Attached:
	case nic.Disabled:
		if n := c.bm.reset(); n > 0 {
			log.Printf("%s: dropped %d unsent frames", c.Name, n)
		}
	default:
		return fmt.Errorf("%s: initialize while %v: %w", c.Name, s, nic.ErrNotRunning)
	}

	c.io.Reset()
	c.io.SetBCR(BCR20, SoftwareStyle2)
	c.io.SetBCR(BCR2, BCR2Asel)
	if c.cfg.FullDuplex && c.Chip.FullDuplex {
		c.io.SetBCR(BCR9, BCR9Fden)
	}
	c.io.SetCSR(CSR4, CSR4Dmaplus|CSR4ApadXmt)
	c.io.SetCSR(CSR5, CSR5Ltinten|CSR5Sinte|CSR5Slpinte|CSR5Exdinte|CSR5Mpinte)

	a := c.bm.InitBlockAddress()
	c.io.SetCSR(CSR1, a&0xffff)
	c.io.SetCSR(CSR2, a>>16)

	if err := c.SetState(nic.Initializing); err != nil {
		return err
	}
	c.stopped = false
	c.Start(c.service)
	c.io.SetCSR(CSR0, CSR0Init|CSR0Iena)
	return nil
}

// Transmit sends one ethernet frame with the station address as source.
// A full ring is reported with nic.ErrRingFull; nothing is queued.
func (c *Core) Transmit(frame []byte) error {
	c.Lock()
	defer c.Unlock()
	if s := c.State(); !s.CanTransmit() {
		return fmt.Errorf("%s: %v: %w", c.Name, s, nic.ErrNotRunning)
	}
	if len(frame) < 14 {
		return fmt.Errorf("%s: %d byte frame: %w", c.Name, len(frame), nic.ErrShortFrame)
	}
	if len(frame) > len(c.scratch) {
		return fmt.Errorf("%s: %d byte frame: %w", c.Name, len(frame), nic.ErrFrameTooLarge)
	}
	p := c.scratch[:len(frame)]
	copy(p, frame)
	copy(p[6:12], c.address)
	if err := c.bm.Transmit(p); err != nil {
		return err
	}
	c.io.SetCSR(CSR0, CSR0Tdmd|CSR0Iena)
	return nil
}

// service handles interrupt causes until CSR0 shows none, then hands
// received frames to the receiver with the lock dropped.
func (c *Core) service() {
	c.Lock()
	frames := c.handleInterrupts()
	c.Unlock()
	for _, p := range frames {
		c.rx.OnReceive(p)
	}
}

func (c *Core) handleInterrupts() (frames [][]byte) {
	if !c.State().CanTransmit() {
		return
	}
	for n := 0; c.io.CSR(CSR0)&CSR0Intr != 0; n++ {
		if n >= maxServiceLoops {
			log.Printf("%s: interrupt still asserted after %d passes", c.Name, n)
			break
		}
		csr0 := c.io.CSR(CSR0)
		csr4 := c.io.CSR(CSR4)
		csr5 := c.io.CSR(CSR5)

		c.io.SetCSR(CSR0, csr0&CSR0Ack|CSR0Iena)
		c.io.SetCSR(CSR4, csr4)
		c.io.SetCSR(CSR5, csr5)

		if csr0&CSR0Idon != 0 {
			c.initDone()
		}
		if csr0&CSR0Tint != 0 {
			c.bm.Reap()
		}
		if csr0&CSR0Rint != 0 {
			for {
				p, ok := c.bm.Receive()
				if !ok {
					break
				}
				if p != nil {
					frames = append(frames, p)
				}
			}
		}
		if csr0&CSR0Err != 0 {
			c.deviceErrors(csr0)
		}
		c.deviceEvents(csr4, csr5)
	}
	return
}

func (c *Core) initDone() {
	log.Printf("info", "%s: %s initialization complete", c.Name, c.Chip.Name)
	// Enable rx/tx keeping the other mode bits.
	c.io.SetCSR(CSR15, uint32(c.cfg.Mode&^(ModeDrx|ModeDtx)))
	c.io.SetCSR(CSR0, CSR0Strt|CSR0Iena|CSR0Idon)
	if err := c.SetState(nic.Running); err != nil {
		log.Print("err", err)
	}
}

var csr0Errors = []struct {
	bit  uint32
	c    nic.Counter
	name string
}{
	{CSR0Merr, nic.MemoryErrors, "memory error"},
	{CSR0Miss, nic.RxMissed, "missed frame"},
	{CSR0Cerr, nic.CollisionErrors, "collision error"},
	{CSR0Babl, nic.Babble, "babble"},
}

var csr45Events = []struct {
	csr5 bool
	bit  uint32
	c    nic.Counter
	name string
}{
	{false, CSR4Mfco, nic.MissedFrameCounterOverflows, "missed frame counter overflow"},
	{false, CSR4Uint, nic.UserInterrupts, "user interrupt"},
	{false, CSR4Rcvcco, nic.RxCollisionCounterOverflows, "receive collision counter overflow"},
	{false, CSR4Txstrt, nic.TxStarts, "transmit start"},
	{false, CSR4Jab, nic.Jabber, "jabber"},
	{true, CSR5Sint, nic.SystemInterrupts, "system interrupt"},
	{true, CSR5Slpint, nic.SleepInterrupts, "sleep interrupt"},
	{true, CSR5Exdint, nic.ExcessiveDeferralInterrupts, "excessive deferral"},
	{true, CSR5Mpint, nic.MagicPackets, "magic packet"},
}

func (c *Core) deviceErrors(csr0 uint32) {
	for _, x := range csr0Errors {
		if csr0&x.bit != 0 {
			c.Counters.Inc(x.c)
			log.Printf("%s: %s", c.Name, x.name)
		}
	}
}

func (c *Core) deviceEvents(csr4, csr5 uint32) {
	for _, x := range csr45Events {
		v := csr4
		if x.csr5 {
			v = csr5
		}
		if v&x.bit != 0 {
			c.Counters.Inc(x.c)
			log.Printf("%s: %s", c.Name, x.name)
		}
	}
}

// Disable stops the chip and the service goroutine and waits for the
// chip to report STOP.  Disabling a chip that did not stop last time
// issues STOP again.
func (c *Core) Disable() error {
	c.Lock()
	switch s := c.State(); {
	case s == nic.Attached || s.CanTransmit():
		c.io.Reset()
		c.io.SetCSR(CSR0, CSR0Stop)
		err := c.SetState(nic.Disabled)
		c.Unlock()
		c.Stop()
		if err != nil {
			return err
		}
	case s == nic.Disabled && !c.stopped:
		c.io.SetCSR(CSR0, CSR0Stop)
		c.Unlock()
	default:
		c.Unlock()
		return nil
	}
	if !nic.WaitFor(c.cfg.QuiesceTimeout, c.checkStopped) {
		return fmt.Errorf("%s: no stop within %v", c.Name, c.cfg.QuiesceTimeout)
	}
	return nil
}

func (c *Core) checkStopped() bool {
	c.Lock()
	defer c.Unlock()
	if c.io.CSR(CSR0)&CSR0Stop != 0 {
		c.stopped = true
	}
	return c.stopped
}

// Release disables the chip and gives back the interrupt line, the ports
// and the DMA region.  A chip that would not stop keeps its region.
func (c *Core) Release() error {
	if c.State() == nic.Released {
		return nil
	}
	err := c.Disable()
	c.Engine.Close()
	c.Lock()
	defer c.Unlock()
	c.irq.Release()
	c.ports.Release()
	if c.stopped {
		c.bm.Free()
	} else {
		log.Print("err", c.Name, ": chip never stopped; leaking ", c.bm.Region())
	}
	if e := c.SetState(nic.Released); err == nil {
		err = e
	}
	return err
}

// Driver attaches cores to matching devices found by a pci.Registry.
type Driver struct {
	Resources hw.Resources
	Allocator hw.Allocator
	Config    Config
	Receiver  nic.Receiver

	Cores []*Core
}

func (d *Driver) Register(r *pci.Registry) error {
	return r.SetDriver(d, pci.AMD, DeviceIDs)
}

func (d *Driver) DeviceMatch(dev pci.Device) (pci.DriverDevice, error) {
	cfg := d.Config
	cfg.Name = fmt.Sprintf("lance%d", len(d.Cores))
	c, err := Attach(dev, d.Resources, d.Allocator, cfg, d.Receiver)
	if err != nil {
		return nil, err
	}
	d.Cores = append(d.Cores, c)
	return c, nil
}
