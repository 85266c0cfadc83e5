// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pci describes the configuration space a driver sees and binds
// drivers to devices by vendor and device id.
package pci

import (
	"errors"
	"fmt"
	"sync"
)

type Command uint16

const (
	IOEnable Command = 1 << iota
	MemoryEnable
	BusMasterEnable
	SpecialCycles
	WriteInvalidate
	VgaPaletteSnoop
	Parity
	AddressDataStepping
	SERR
	BackToBackWrite
	INTxEmulationDisable
)

var commandNames = [...]string{
	"io", "mem", "bus-master", "special", "mwi", "vga-snoop", "parity",
	"stepping", "serr", "fast-b2b", "intx-disable",
}

func (c Command) String() (s string) {
	for i, n := range commandNames {
		if c&(1<<uint(i)) != 0 {
			if s != "" {
				s += ","
			}
			s += n
		}
	}
	if s == "" {
		s = "none"
	}
	return
}

// Vendor and device ids as read from configuration space.
type VendorID uint16
type VendorDeviceID uint16

const (
	AMD   VendorID = 0x1022
	Intel VendorID = 0x8086
)

func (v VendorID) String() string       { return fmt.Sprintf("0x%04x", uint16(v)) }
func (d VendorDeviceID) String() string { return fmt.Sprintf("0x%04x", uint16(d)) }

// Vendor/Device pair
type DeviceID struct {
	Vendor VendorID
	Device VendorDeviceID
}

func (d DeviceID) String() string { return fmt.Sprintf("%v:%v", d.Vendor, d.Device) }

type BaseAddressReg uint32

func (b BaseAddressReg) IsMem() bool { return b&(1<<0) == 0 }
func (b BaseAddressReg) IsIO() bool  { return !b.IsMem() }

func (b BaseAddressReg) Addr() uint32 {
	if b.IsIO() {
		return uint32(b &^ 0x3)
	}
	return uint32(b &^ 0xf)
}

func (b BaseAddressReg) Valid() bool {
	return b.Addr() != 0
}

func (b BaseAddressReg) String() string {
	if b == 0 {
		return "{}"
	}
	x := uint32(b)
	tp := "mem"
	loc := ""
	if b.IsIO() {
		tp = "i/o"
	} else {
		switch (x >> 1) & 3 {
		case 0:
			loc = "32-bit "
		case 1:
			loc = "< 1M "
		case 2:
			loc = "64-bit "
		case 3:
			loc = "unknown "
		}
		if x&(1<<3) != 0 {
			loc += "prefetchable "
		}
	}
	return fmt.Sprintf("{%s: %s0x%08x}", tp, loc, b.Addr())
}

type BusAddress struct {
	Domain        uint16
	Bus, Slot, Fn uint8
}

func (a BusAddress) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%01x", a.Domain, a.Bus, a.Slot, a.Fn)
}

// Resource is a decoded base address register.
type Resource struct {
	Index      uint32 // index of BAR
	BAR        BaseAddressReg
	Base, Size uint64
}

func (r Resource) String() string {
	return fmt.Sprintf("{%d: 0x%x-0x%x}", r.Index, r.Base, r.Base+r.Size-1)
}

// Device is the view of a PCI function a driver needs.
type Device interface {
	Addr() BusAddress
	ID() DeviceID
	Resource(i uint) (Resource, bool)
	InterruptLine() uint
	Command() Command
	SetCommand(c Command)
}

// Driver is implemented by each NIC driver registered with a Registry.
type Driver interface {
	// DeviceMatch attaches to a device whose id the driver registered.
	DeviceMatch(d Device) (i DriverDevice, err error)
}

type DriverDevice interface {
	Init() (err error)
	Interrupt()
}

var ErrNoDriver = errors.New("no driver")

// Registry maps device ids to drivers.
type Registry struct {
	mu      sync.Mutex
	drivers map[DeviceID]Driver
}

var DefaultRegistry = &Registry{}

func (r *Registry) setDriver(v Driver, id DeviceID) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drivers == nil {
		r.drivers = make(map[DeviceID]Driver)
	}
	if _, exists := r.drivers[id]; exists {
		err = fmt.Errorf("%v: driver already registered", id)
	} else {
		r.drivers[id] = v
	}
	return
}

// SetDriver registers v for each id given as a DeviceID, or as a
// VendorID followed by VendorDeviceIDs.
func (r *Registry) SetDriver(v Driver, args ...interface{}) (err error) {
	var id DeviceID
	set := func(id DeviceID) {
		if e := r.setDriver(v, id); e != nil && err == nil {
			err = e
		}
	}
	for _, a := range args {
		switch b := a.(type) {
		case VendorID:
			id.Vendor = b
		case VendorDeviceID:
			id.Device = b
			set(id)
		case DeviceID:
			id = b
			set(id)
		case []DeviceID:
			for i := range b {
				set(b[i])
			}
		case []VendorDeviceID:
			for i := range b {
				set(DeviceID{Vendor: id.Vendor, Device: b[i]})
			}
		default:
			return fmt.Errorf("SetDriver: unexpected %T", a)
		}
	}
	return
}

func (r *Registry) GetDriver(d DeviceID) Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drivers[d]
}

// Probe finds the driver registered for the device and lets it claim
// the device.
func (r *Registry) Probe(d Device) (DriverDevice, error) {
	v := r.GetDriver(d.ID())
	if v == nil {
		return nil, fmt.Errorf("%v %v: %w", d.Addr(), d.ID(), ErrNoDriver)
	}
	return v.DeviceMatch(d)
}

func SetDriver(v Driver, args ...interface{}) error { return DefaultRegistry.SetDriver(v, args...) }
func GetDriver(d DeviceID) Driver                   { return DefaultRegistry.GetDriver(d) }
func Probe(d Device) (DriverDevice, error)          { return DefaultRegistry.Probe(d) }
