// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pci

import (
	"fmt"
	"sync"
)

// Config is a Device backed by a fixed configuration header, for devices
// that are not found by scanning a bus.
type Config struct {
	Address  BusAddress
	DeviceID DeviceID
	Revision uint8

	// BARs as the driver reads them; bit 0 set marks I/O space.
	BaseAddressRegs [6]BaseAddressReg
	BarSizes        [6]uint32

	IrqLine uint8
	IrqPin  uint8

	mu      sync.Mutex
	command Command
}

func (c *Config) Addr() BusAddress { return c.Address }
func (c *Config) ID() DeviceID     { return c.DeviceID }

func (c *Config) Resource(i uint) (r Resource, ok bool) {
	if i >= uint(len(c.BaseAddressRegs)) || !c.BaseAddressRegs[i].Valid() {
		return
	}
	b := c.BaseAddressRegs[i]
	r = Resource{Index: uint32(i), BAR: b, Base: uint64(b.Addr()), Size: uint64(c.BarSizes[i])}
	ok = true
	return
}

func (c *Config) InterruptLine() uint { return uint(c.IrqLine) }

func (c *Config) Command() Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command
}

func (c *Config) SetCommand(x Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.command = x
}

func (c *Config) String() string {
	return fmt.Sprintf("%v %v", c.Address, c.DeviceID)
}
