// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Nicsim attaches the lance and eepro100 drivers to simulated chips,
// loops UDP traffic through every device and reports the driver
// counters.
//
//	nicsim [-polled] [-dump] [-publish] [-c FILE] [-frames N] [-hugepages N]
//		[-redis ADDR] [-prometheus ADDR] [-graphite HOST:PORT]
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/nicdma/eepro100"
	"github.com/platinasystems/nicdma/eepro100/eepro100sim"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/hw/pci"
	"github.com/platinasystems/nicdma/lance"
	"github.com/platinasystems/nicdma/lance/lancesim"
	"github.com/platinasystems/nicdma/nic"
	"github.com/platinasystems/nicdma/stats"
	"github.com/platinasystems/parms"
	"github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

const usage = "nicsim [-polled] [-dump] [-publish] [-c FILE] [-frames N] [-hugepages N] [-redis ADDR] [-prometheus ADDR] [-graphite HOST:PORT]"

func main() {
	if err := Main(os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, "nicsim:", err)
		os.Exit(1)
	}
}

// mux hands each looped back frame to the port that sent it.
type mux struct {
	mu    sync.Mutex
	ports map[string]*port
}

func (m *mux) OnReceive(frame []byte) {
	if len(frame) < 12 {
		return
	}
	m.mu.Lock()
	p := m.ports[string(frame[6:12])]
	m.mu.Unlock()
	if p != nil {
		p.OnReceive(frame)
	}
}

func (m *mux) add(p *port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports[string(p.core.Address())] = p
}

func Main(args ...string) error {
	flag, args := flags.New(args, "-polled", "-dump", "-publish", []string{"-h", "-help", "--help"})
	parm, args := parms.New(args, "-c", "-frames", "-hugepages", "-redis", "-prometheus", "-graphite")
	if flag.ByName["-h"] {
		fmt.Println(usage)
		return nil
	}
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected\nusage: %s", args, usage)
	}
	cfg, err := loadConfig(parm.ByName["-c"])
	if err != nil {
		return err
	}
	if s := parm.ByName["-frames"]; s != "" {
		if cfg.Frames, err = strconv.Atoi(s); err != nil || cfg.Frames <= 0 {
			return fmt.Errorf("-frames %q: must be a positive count", s)
		}
	}
	if s := parm.ByName["-hugepages"]; s != "" {
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return fmt.Errorf("-hugepages %q: %w", s, err)
		}
		cfg.HugePages = uint(n)
	}
	if s := parm.ByName["-redis"]; s != "" {
		cfg.Stats.Redis = s
	}
	if s := parm.ByName["-prometheus"]; s != "" {
		cfg.Stats.Prometheus = &stats.PrometheusConfig{Listen: s, Namespace: "nicsim"}
	}
	if s := parm.ByName["-graphite"]; s != "" {
		cfg.Stats.Graphite = &stats.GraphiteConfig{Host: s, Prefix: "nicsim"}
	}
	if flag.ByName["-polled"] {
		cfg.LanceConfig.Polled = true
		cfg.EEPRO100Config.Polled = true
	}
	cfg.Stats.Goes = cfg.Stats.Goes || flag.ByName["-publish"]

	reg := metrics.NewRegistry()
	m := hw.NewMachine(hw.DefaultHeapBase, cfg.HeapBytes)
	mem, closeMem, err := openMemory(m, cfg)
	if err != nil {
		return err
	}
	defer closeMem()
	rx := &mux{ports: make(map[string]*port)}
	ports, err := attach(m, mem, cfg, reg, rx)
	for _, p := range ports {
		defer p.core.Release()
	}
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		return fmt.Errorf("no devices configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exporters, ectx := errgroup.WithContext(ctx)
	if err = startExporters(ectx, exporters, reg, &cfg.Stats); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range ports {
		p := p
		g.Go(func() error { return p.run(gctx, cfg.Frames, cfg.Payload, cfg.Timeout) })
	}
	err = g.Wait()

	for _, p := range ports {
		if flag.ByName["-dump"] {
			p.core.Dump(os.Stdout)
		}
	}
	report(os.Stdout, ports)
	cancel()
	if e := exporters.Wait(); err == nil && e != nil && e != context.Canceled {
		err = e
	}
	return err
}

// dmaMemory backs both the drivers' allocations and the chips' DMA.
type dmaMemory interface {
	hw.Allocator
	hw.BusMemory
	InUse() uint
}

// openMemory is the machine heap, or huge pages when configured.
func openMemory(m *hw.Machine, cfg *Config) (dmaMemory, func() error, error) {
	if cfg.HugePages == 0 {
		return m.Heap, func() error { return nil }, nil
	}
	p, err := hw.NewHugePages(cfg.HugePages)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

// attach plugs a simulated chip into every configured slot and lets the
// pci registry bind the drivers.
func attach(m *hw.Machine, mem dmaMemory, cfg *Config, reg metrics.Registry, rx nic.Receiver) (ports []*port, err error) {
	var r pci.Registry
	ld := &lance.Driver{Resources: m, Allocator: mem, Config: cfg.LanceConfig, Receiver: rx}
	ld.Config.Registry = reg
	ed := &eepro100.Driver{Resources: m, Allocator: mem, Config: cfg.EEPRO100Config, Receiver: rx}
	ed.Config.Registry = reg
	if err = ld.Register(&r); err != nil {
		return
	}
	if err = ed.Register(&r); err != nil {
		return
	}

	mx := rx.(*mux)
	probe := func(name string, dev *pci.Config, w wire) error {
		dd, err := r.Probe(dev)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		p := &port{wire: w}
		switch c := dd.(type) {
		case *lance.Core:
			p.name, p.core, p.counters = c.Name, c, c.Counters
		case *eepro100.Core:
			p.name, p.core, p.counters = c.Name, c, c.Counters
		}
		mx.add(p)
		ports = append(ports, p)
		return nil
	}

	for i, s := range cfg.Lance {
		a, err := slotAddress(s, 0x10, i)
		if err != nil {
			return ports, err
		}
		sim := lancesim.New(lancesim.Config{Mem: mem, Irqs: m.Irqs, Irq: s.Irq, Address: a})
		if err = sim.Plug(m.Ports, s.Base); err != nil {
			return ports, err
		}
		if err = probe(fmt.Sprintf("lance slot %d", i), sim.PCI(s.Base), sim); err != nil {
			return ports, err
		}
	}
	for i, s := range cfg.EEPRO100 {
		a, err := slotAddress(s, 0x20, i)
		if err != nil {
			return ports, err
		}
		sim := eepro100sim.New(eepro100sim.Config{Mem: mem, Irqs: m.Irqs, Irq: s.Irq, Address: a})
		if err = sim.Plug(m.Ports, s.Base); err != nil {
			return ports, err
		}
		if err = probe(fmt.Sprintf("eepro100 slot %d", i), sim.PCI(s.Base), sim); err != nil {
			return ports, err
		}
	}
	return
}

// slotAddress is the configured address or a locally administered one
// unique to the slot.
func slotAddress(s Slot, kind byte, i int) (net.HardwareAddr, error) {
	if s.Address != "" {
		return net.ParseMAC(s.Address)
	}
	return net.HardwareAddr{0x02, 0x00, 0x00, 0x00, kind, byte(i)}, nil
}

func startExporters(ctx context.Context, g *errgroup.Group, reg metrics.Registry, c *StatsConfig) error {
	var pubs []stats.Publisher
	if c.Redis != "" {
		hash := c.Hash
		if hash == "" {
			hash = "nicsim"
		}
		p, err := stats.DialRedigo(c.Redis, hash)
		if err != nil {
			return fmt.Errorf("redis %s: %w", c.Redis, err)
		}
		pubs = append(pubs, p)
	}
	if c.Goes {
		p, err := stats.NewGoesPublisher()
		if err != nil {
			return err
		}
		pubs = append(pubs, p)
	}
	interval := c.Interval
	if interval == 0 {
		interval = time.Second
	}
	for _, pub := range pubs {
		pub := pub
		poller := &stats.Poller{Registry: reg, Publisher: pub, Interval: interval}
		g.Go(func() error {
			defer pub.Close()
			return poller.Run(ctx)
		})
	}
	if c.Prometheus != nil {
		g.Go(func() error { return stats.ServePrometheus(ctx, reg, c.Prometheus) })
	}
	if c.Graphite != nil {
		g.Go(func() error { return stats.RunGraphite(ctx, reg, c.Graphite) })
	}
	return nil
}

// report prints nonzero counters, as a table on a terminal.
func report(f *os.File, ports []*port) {
	if !isatty.IsTerminal(f.Fd()) {
		for _, p := range ports {
			p.counters.WriteTo(f)
		}
		return
	}
	w := tabwriter.NewWriter(f, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tCOUNTER\tVALUE")
	for _, p := range ports {
		p.counters.Foreach(false, func(c nic.Counter, v uint64) {
			fmt.Fprintf(w, "%s\t%v\t%d\n", p.name, c, v)
		})
	}
	w.Flush()
}
