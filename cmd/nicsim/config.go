// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/platinasystems/nicdma/eepro100"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/lance"
	"github.com/platinasystems/nicdma/stats"
	"gopkg.in/yaml.v2"
)

// Slot places one simulated chip on the port bus.
type Slot struct {
	Base    uint16 `yaml:"base"`
	Irq     uint   `yaml:"irq"`
	Address string `yaml:"address"`
}

type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Redis server and hash for counters; empty disables.
	Redis string `yaml:"redis"`
	Hash  string `yaml:"hash"`
	// Publish into the goes redis server.
	Goes       bool                    `yaml:"goes"`
	Prometheus *stats.PrometheusConfig `yaml:"prometheus"`
	Graphite   *stats.GraphiteConfig   `yaml:"graphite"`
}

type Config struct {
	HeapBytes uint `yaml:"heap-bytes"`
	// Locked 2MB huge pages to use for DMA in place of the heap.
	HugePages uint `yaml:"huge-pages"`

	Lance    []Slot `yaml:"lance"`
	EEPRO100 []Slot `yaml:"eepro100"`

	LanceConfig    lance.Config    `yaml:"lance-config"`
	EEPRO100Config eepro100.Config `yaml:"eepro100-config"`

	// Frames sent by each device and their UDP payload size.
	Frames  int           `yaml:"frames"`
	Payload int           `yaml:"payload"`
	Timeout time.Duration `yaml:"timeout"`

	Stats StatsConfig `yaml:"stats"`
}

var defaultConfig = Config{
	HeapBytes: hw.DefaultHeapSize,
	Lance:     []Slot{{Base: 0x300, Irq: 10}},
	EEPRO100:  []Slot{{Base: 0x1000, Irq: 11}},
	Frames:    64,
	Payload:   64,
	Timeout:   5 * time.Second,
}

func loadConfig(fn string) (*Config, error) {
	c := defaultConfig
	if fn == "" {
		return &c, nil
	}
	b, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if c.Frames <= 0 {
		return nil, fmt.Errorf("%s: frames %d: must be positive", fn, c.Frames)
	}
	if c.Payload < 18 || c.Payload > 1472 {
		return nil, fmt.Errorf("%s: payload %d: must be between 18 and 1472", fn, c.Payload)
	}
	return &c, nil
}
