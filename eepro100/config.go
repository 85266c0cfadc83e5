// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"fmt"
	"net"
	"time"

	"github.com/rcrowley/go-metrics"
)

type Config struct {
	// Log and counter prefix, e.g. eepro100-0.
	Name string `yaml:"name"`

	RxRingLen   uint `yaml:"rx-ring-len"`
	TxRingLen   uint `yaml:"tx-ring-len"`
	BufferBytes uint `yaml:"buffer-bytes"`

	// Station address; empty uses the EEPROM.
	Address string `yaml:"address"`

	Polled bool `yaml:"polled"`

	// Bounds on PORT self-test and on the stop after Disable.
	SelfTestTimeout time.Duration `yaml:"self-test-timeout"`
	QuiesceTimeout  time.Duration `yaml:"quiesce-timeout"`

	// Dump device statistics this often while running; 0 disables.
	StatsInterval time.Duration `yaml:"stats-interval"`

	Registry metrics.Registry `yaml:"-"`
}

const (
	DefaultRingLen         = 16
	DefaultBufferBytes     = 1528
	DefaultSelfTestTimeout = 100 * time.Millisecond
	DefaultQuiesceTimeout  = 100 * time.Millisecond
	maxBufferBytes         = int(RxCountMask)
)

var DefaultConfig = Config{
	Name:            "eepro100-0",
	RxRingLen:       DefaultRingLen,
	TxRingLen:       DefaultRingLen,
	BufferBytes:     DefaultBufferBytes,
	SelfTestTimeout: DefaultSelfTestTimeout,
	QuiesceTimeout:  DefaultQuiesceTimeout,
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
	if c.SelfTestTimeout == 0 {
		c.SelfTestTimeout = DefaultSelfTestTimeout
	}
	if c.QuiesceTimeout == 0 {
		c.QuiesceTimeout = DefaultQuiesceTimeout
	}
}

func (c *Config) validate() error {
	if c.BufferBytes < 64 || c.BufferBytes > uint(maxBufferBytes) {
		return fmt.Errorf("%s: buffer size %d: must be between 64 and %d", c.Name, c.BufferBytes, maxBufferBytes)
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
		err = fmt.Errorf("not an ethernet address")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: address %q: %w", c.Name, c.Address, err)
	}
	return a, nil
}
