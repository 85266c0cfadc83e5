// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

import (
	"fmt"
	"net"
	"time"

	"github.com/rcrowley/go-metrics"
)

type Config struct {
	// Log and counter prefix, e.g. lance0.
	Name string `yaml:"name"`

	RxRingLen   uint `yaml:"rx-ring-len"`
	TxRingLen   uint `yaml:"tx-ring-len"`
	BufferBytes uint `yaml:"buffer-bytes"`

	// Init block mode.  Receive and transmit stay disabled until
	// initialization completes.
	Mode          uint16  `yaml:"mode"`
	LogicalFilter [8]byte `yaml:"-"`

	// Station address; empty uses the address PROM.
	Address string `yaml:"address"`

	FullDuplex bool `yaml:"full-duplex"`

	// Polled drivers service interrupts from Poll instead of a goroutine.
	Polled bool `yaml:"polled"`

	QuiesceTimeout time.Duration `yaml:"quiesce-timeout"`

	// Registry for counters; nil keeps them private.
	Registry metrics.Registry `yaml:"-"`
}

const (
	DefaultRingLen        = 4
	DefaultBufferBytes    = 1544
	DefaultQuiesceTimeout = 100 * time.Millisecond
)

// DefaultConfig matches the ring sizes of the classic driver.
var DefaultConfig = Config{
	Name:           "lance0",
	RxRingLen:      DefaultRingLen,
	TxRingLen:      DefaultRingLen,
	BufferBytes:    DefaultBufferBytes,
	Mode:           ModeDrx | ModeDtx,
	QuiesceTimeout: DefaultQuiesceTimeout,
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = DefaultConfig.Name
	}
	if c.RxRingLen == 0 {
		c.RxRingLen = DefaultRingLen
	}
	if c.TxRingLen == 0 {
		c.TxRingLen = DefaultRingLen
	}
	if c.BufferBytes == 0 {
		c.BufferBytes = DefaultBufferBytes
	}
	if c.QuiesceTimeout == 0 {
		c.QuiesceTimeout = DefaultQuiesceTimeout
	}
}

func (c *Config) validate() error {
	if c.BufferBytes < 64 || c.BufferBytes > MaxBuffer {
		return fmt.Errorf("%s: buffer size %d: must be between 64 and %d", c.Name, c.BufferBytes, MaxBuffer)
	}
	if c.Address != "" {
		if _, err := c.stationAddress(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) stationAddress() (net.HardwareAddr, error) {
	a, err := net.ParseMAC(c.Address)
	if err == nil && len(a) != 6 {
		err = fmt.Errorf("not a 48 bit address")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: address %q: %w", c.Name, c.Address, err)
	}
	return a, nil
}
