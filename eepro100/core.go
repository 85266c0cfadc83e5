// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eepro100 drives Intel i82557 family (EtherExpress PRO/100)
// ethernet controllers with simplified mode command blocks and frame
// descriptors.
package eepro100

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/platinasystems/log"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/hw/pci"
	"github.com/platinasystems/nicdma/nic"
)

var ErrSelfTest = errors.New("self-test failed")

const (
	// Bound on STAT/ACK passes per service call.
	maxServiceLoops = 20
	// Bound on reads waiting for the SCB to accept a command.
	cmdPolls = 1000
)

type Core struct {
	*nic.Engine

	Chip string

	cfg     Config
	dev     pci.Device
	irq     *hw.Irq
	ports   *hw.Window
	eeprom  EEPROM
	address net.HardwareAddr
	bm      *BufferManager
	rx      nic.Receiver
	scratch []byte
	mask    uint16

	statsQuit, statsDone chan struct{}
	// Held across a statistics dump, which waits without the core lock.
	statsMu sync.Mutex

	// Set once both units have been seen idle, cleared by Initialize.
	// The DMA region is only freed while set.
	stopped bool
}

// Attach claims the device's interrupt line and ports, reads the EEPROM,
// builds the buffers and runs the PORT self-test.  On error everything
// claimed is given back.
func Attach(dev pci.Device, res hw.Resources, alloc hw.Allocator, cfg Config, rx nic.Receiver) (c *Core, err error) {
	cfg.setDefaults()
	if err = cfg.validate(); err != nil {
		return
	}
	bar, ok := dev.Resource(1)
	if !ok || !bar.BAR.IsIO() {
		return nil, fmt.Errorf("%s: %v: bar 1 %v: %w", cfg.Name, dev.Addr(), bar.BAR, nic.ErrNoIOBase)
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
		Chip:    chipName(dev.ID().Device),
		cfg:     cfg,
		dev:     dev,
		rx:      rx,
		scratch: make([]byte, cfg.BufferBytes),
		mask:    SCBMaskAll,
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

	c.ports.Set32(SCBPort, PortReset)
	if st := c.ports.Get16(SCBStatus); st == 0xffff {
		err = fmt.Errorf("%s: %v: scb status 0x%04x: %w", cfg.Name, c.ports, st, nic.ErrNotRecognized)
		return
	}

	c.eeprom = readEEPROM(c.ports)
	if !c.eeprom.Valid() {
		log.Printf("err", "%s: invalid EEPROM checksum 0x%04x, check settings before activating this device",
			cfg.Name, c.eeprom.Sum())
	}
	if cfg.Address != "" {
		c.address, _ = cfg.stationAddress()
	} else {
		c.address = c.eeprom.Address()
	}

	if c.bm, err = NewBufferManager(alloc, &c.cfg, c.Counters); err != nil {
		return
	}
	err = c.selfTest()
	// Self-test leaves the chip in reset either way.
	c.ports.Set32(SCBPort, PortReset)
	if err != nil {
		return
	}

	c.stopped = true
	dev.SetCommand(dev.Command() | pci.IOEnable | pci.BusMasterEnable)
	if err = c.SetState(nic.Attached); err != nil {
		return
	}
	log.Printf("info", "%s: %s at 0x%04x irq %d, address %v, eeprom %d words",
		cfg.Name, c.Chip, bar.Base, dev.InterruptLine(), c.address, len(c.eeprom.Words))
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

var selfTestFailures = []struct {
	bit  uint32
	name string
}{
	{SelfTestROM, "rom"},
	{SelfTestRegisters, "registers"},
	{SelfTestSerial, "serial"},
}

func (c *Core) selfTest() error {
	c.bm.clearSelfTest()
	c.ports.Set32(SCBPort, c.bm.SelfTestAddress()|PortSelfTest)
	done := nic.WaitFor(c.cfg.SelfTestTimeout, func() bool {
		sig, _ := c.bm.selfTestResult()
		return sig != 0
	})
	if !done {
		return fmt.Errorf("%s: no self-test result within %v: %w", c.Name, c.cfg.SelfTestTimeout, ErrSelfTest)
	}
	sig, res := c.bm.selfTestResult()
	if res&SelfTestFailed != 0 {
		s := ""
		for _, x := range selfTestFailures {
			if res&x.bit != 0 {
				s += " " + x.name
			}
		}
		return fmt.Errorf("%s: self-test result 0x%08x%s: %w", c.Name, res, s, ErrSelfTest)
	}
	log.Printf("%s: self-test passed, signature 0x%08x", c.Name, sig)
	return nil
}

func (c *Core) Address() net.HardwareAddr { return c.address }
func (c *Core) Config() Config            { return c.cfg }
func (c *Core) EEPROM() *EEPROM           { return &c.eeprom }
func (c *Core) Buffers() *BufferManager   { return c.bm }

// Init starts initialization for the pci driver registry.
func (c *Core) Init() error { return c.Initialize() }

// command issues an SCB command and waits for the SCB to accept it.
func (c *Core) command(cmd uint16) error {
	c.ports.Set16(SCBCmd, cmd|c.mask)
	for i := 0; i < cmdPolls; i++ {
		if c.ports.Get16(SCBCmd)&0xff == 0 {
			return nil
		}
	}
	return fmt.Errorf("%s: scb command 0x%04x not accepted", c.Name, cmd)
}

func (c *Core) commandAt(cmd uint16, p uint32) error {
	c.ports.Set32(SCBPointer, p)
	return c.command(cmd)
}

func (c *Core) status() uint16 { return c.ports.Get16(SCBStatus) }

// Initialize resets the chip, loads the unit bases and statistics
// address, starts the receive unit on the frame area and unmasks
// interrupts.
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

	c.mask = SCBMaskAll
	c.ports.Set32(SCBPort, PortReset)
	c.stopped = false
	for _, x := range []struct {
		cmd uint16
		p   uint32
	}{
		{RUAddrLoad, 0},
		{CUCmdBase, 0},
		{CUStatsAddr, c.bm.StatsAddress()},
		{RUStart, c.bm.Rx.Head()},
	} {
		if err := c.commandAt(x.cmd, x.p); err != nil {
			return err
		}
	}
	if err := c.setupPhy(); err != nil {
		log.Print("err", c.Name, ": phy: ", err)
	}

	if err := c.SetState(nic.Initializing); err != nil {
		return err
	}
	c.Start(c.service)
	c.mask = 0
	if err := c.command(CUNop); err != nil {
		return err
	}
	if err := c.SetState(nic.Running); err != nil {
		return err
	}
	if d := c.cfg.StatsInterval; d > 0 {
		c.statsQuit, c.statsDone = make(chan struct{}), make(chan struct{})
		go func(quit, done chan struct{}) {
			defer close(done)
			c.pollStats(d, quit)
		}(c.statsQuit, c.statsDone)
	}
	return nil
}

// Transmit sends one ethernet frame with the station address as source.
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
	b, err := c.bm.Transmit(p)
	if err != nil {
		return err
	}
	if c.status()&CUStatusMask == CUIdle {
		return c.commandAt(CUStart, b.Phys())
	}
	return c.command(CUResume)
}

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
	for n := 0; ; n++ {
		ack := c.status() & IntrAllNormal
		if ack == 0 {
			break
		}
		if n >= maxServiceLoops {
			log.Printf("%s: status 0x%04x still pending after %d passes", c.Name, ack, n)
			c.ports.Set16(SCBStatus, IntrAllNormal)
			break
		}
		c.ports.Set16(SCBStatus, ack)
		if ack&(StatFR|StatRNR) != 0 {
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
		if ack&(StatCX|StatCNA) != 0 {
			c.bm.Reap()
		}
		if ack&StatRNR != 0 && c.status()&RUStatusMask != RUReady {
			c.Counters.Inc(nic.RxRestarts)
			log.Printf("%s: receive unit not ready, restarting at slot %d", c.Name, c.bm.Rx.Current())
			if err := c.commandAt(RUStart, c.bm.Rx.Head()); err != nil {
				log.Print("err", err)
			}
		}
		if ack&StatSWI != 0 {
			c.Counters.Inc(nic.UserInterrupts)
		}
	}
	return
}

// Disable stops both units with a selective reset, masks and acknowledges
// interrupts, then waits for the units to go idle.  Disabling a chip that
// did not go idle last time resets the units again.
func (c *Core) Disable() error {
	c.Lock()
	switch s := c.State(); {
	case s == nic.Attached || s.CanTransmit():
		c.ports.Set32(SCBPort, PortSelectiveReset)
		c.mask = SCBMaskAll
		c.ports.Set16(SCBCmd, SCBMaskAll)
		c.ports.Set16(SCBStatus, c.status()&IntrAllNormal)
		err := c.SetState(nic.Disabled)
		quit, done := c.statsQuit, c.statsDone
		c.statsQuit, c.statsDone = nil, nil
		c.Unlock()
		if quit != nil {
			close(quit)
			<-done
		}
		c.Stop()
		if err != nil {
			return err
		}
	case s == nic.Disabled && !c.stopped:
		c.ports.Set32(SCBPort, PortSelectiveReset)
		c.Unlock()
	default:
		c.Unlock()
		return nil
	}
	if !nic.WaitFor(c.cfg.QuiesceTimeout, c.checkStopped) {
		return fmt.Errorf("%s: units not idle within %v", c.Name, c.cfg.QuiesceTimeout)
	}
	return nil
}

func (c *Core) checkStopped() bool {
	c.Lock()
	defer c.Unlock()
	st := c.status()
	if st&CUStatusMask == CUIdle && st&RUStatusMask == RUIdle {
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
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.Lock()
	defer c.Unlock()
	c.irq.Release()
	c.ports.Release()
	if c.stopped {
		c.bm.Free()
	} else {
		log.Print("err", c.Name, ": units never went idle; leaking ", c.bm.Region())
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
	return r.SetDriver(d, pci.Intel, DeviceIDs)
}

func (d *Driver) DeviceMatch(dev pci.Device) (pci.DriverDevice, error) {
	cfg := d.Config
	cfg.Name = fmt.Sprintf("eepro100-%d", len(d.Cores))
	c, err := Attach(dev, d.Resources, d.Allocator, cfg, d.Receiver)
	if err != nil {
		return nil, err
	}
	d.Cores = append(d.Cores, c)
	return c, nil
}
