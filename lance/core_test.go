// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance_test

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/hw/pci"
	"github.com/platinasystems/nicdma/lance"
	"github.com/platinasystems/nicdma/lance/lancesim"
	"github.com/platinasystems/nicdma/nic"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBase = 0x300
	testIrq  = 10
)

var station = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

type sink struct {
	sync.Mutex
	frames [][]byte
}

func (s *sink) OnReceive(p []byte) {
	s.Lock()
	defer s.Unlock()
	s.frames = append(s.frames, p)
}

func (s *sink) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.frames)
}

func (s *sink) Frames() [][]byte {
	s.Lock()
	defer s.Unlock()
	return append([][]byte(nil), s.frames...)
}

type rig struct {
	m    *hw.Machine
	sim  *lancesim.Device
	dev  *pci.Config
	core *lance.Core
	rx   *sink
}

func newRig(t *testing.T, sc lancesim.Config, cfg lance.Config) *rig {
	r := &rig{m: hw.NewMachine(hw.DefaultHeapBase, hw.DefaultHeapSize), rx: &sink{}}
	sc.Mem = r.m.Heap
	sc.Irqs = r.m.Irqs
	sc.Irq = testIrq
	if sc.Address == nil {
		sc.Address = station
	}
	r.sim = lancesim.New(sc)
	require.NoError(t, r.sim.Plug(r.m.Ports, testBase))
	r.dev = r.sim.PCI(testBase)
	c, err := lance.Attach(r.dev, r.m, r.m.Heap, cfg, r.rx)
	require.NoError(t, err)
	r.core = c
	t.Cleanup(func() { c.Release() })
	return r
}

// running initializes a polled core and services IDON.
func (r *rig) running(t *testing.T) {
	require.NoError(t, r.core.Initialize())
	require.Equal(t, nic.Initializing, r.core.State())
	require.True(t, r.core.Poll())
	require.Equal(t, nic.Running, r.core.State())
}

func (r *rig) poll() {
	for r.core.Poll() {
	}
}

func frame(n int, fill byte) []byte {
	p := bytes.Repeat([]byte{fill}, n)
	copy(p, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	return p
}

func TestAttach(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true})
	c := r.core
	assert.Equal(t, nic.Attached, c.State())
	assert.Equal(t, station, c.Address())
	assert.Equal(t, lance.Word, c.Width())
	assert.True(t, c.Chip.Known())
	assert.Equal(t, uint16(0x2621), c.Chip.Part)
	assert.True(t, r.m.PortsClaimed(testBase, lance.IOSize))
	assert.Equal(t, []string{"lance0"}, r.m.IrqOwners(testIrq))
	assert.NotZero(t, r.dev.Command()&pci.BusMasterEnable)
	assert.NotZero(t, r.dev.Command()&pci.IOEnable)
}

func TestAttachConfiguredAddress(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true, Address: "02:00:00:00:00:07"})
	assert.Equal(t, "02:00:00:00:00:07", r.core.Address().String())
	r.running(t)
	assert.Equal(t, "02:00:00:00:00:07", r.sim.InitBlock().Address.String())
}

func TestDwordAccess(t *testing.T) {
	r := newRig(t, lancesim.Config{Dword: true}, lance.Config{Polled: true})
	assert.Equal(t, lance.Dword, r.core.Width())
	r.running(t)
	require.True(t, r.sim.Inject(frame(60, 1)))
	r.poll()
	assert.Equal(t, 1, r.rx.Len())
}

func TestInitialize(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true})
	r.running(t)
	ib := r.sim.InitBlock()
	assert.Equal(t, lance.ModeDrx|lance.ModeDtx, ib.Mode)
	assert.Equal(t, uint32(4), ib.RxLen())
	assert.Equal(t, r.core.Buffers().InitBlock(), ib)
	assert.Equal(t, lance.SoftwareStyle2, r.sim.BCR(lance.BCR20))
	csr0 := r.sim.CSR(lance.CSR0)
	assert.NotZero(t, csr0&lance.CSR0Rxon)
	assert.NotZero(t, csr0&lance.CSR0Txon)
	assert.NotZero(t, csr0&lance.CSR0Iena)
	assert.Zero(t, csr0&lance.CSR0Idon, "idon acknowledged")
	assert.Zero(t, r.sim.CSR(lance.CSR15)&uint32(lance.ModeDrx|lance.ModeDtx))
	assert.Error(t, r.core.Initialize(), "already running")
}

// Four 46 byte frames fill a four slot ring; the fifth is refused until
// the chip hands back slot 0, which the next frame then reuses.
func TestTransmitRingFull(t *testing.T) {
	r := newRig(t, lancesim.Config{ManualTx: true}, lance.Config{Polled: true})
	r.running(t)
	c := r.core
	p := frame(46, 0xaa)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Transmit(p))
	}
	err := c.Transmit(p)
	assert.True(t, errors.Is(err, nic.ErrRingFull))
	assert.Equal(t, uint64(1), c.Counters.Get(nic.TxRingFull))

	require.Equal(t, 1, r.sim.Step())
	r.poll()
	require.NoError(t, c.Transmit(p))
	tx := &c.Buffers().Tx
	assert.Equal(t, uint32(1), tx.Current())
	assert.Equal(t, dma.Hardware, tx.Descriptor(0).Owner())
	assert.Equal(t, uint32(4), tx.InFlight())

	sent := r.sim.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte(station), sent[0][6:12], "source is the station address")
	assert.Equal(t, p[12:], sent[0][12:])
	assert.Equal(t, uint64(1), c.Counters.Get(nic.TxPackets))
	assert.Equal(t, uint64(46), c.Counters.Get(nic.TxBytes))
}

func TestTransmitErrors(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true})
	c := r.core
	assert.True(t, errors.Is(c.Transmit(frame(60, 0)), nic.ErrNotRunning))
	r.running(t)
	assert.True(t, errors.Is(c.Transmit(frame(13, 0)), nic.ErrShortFrame))
	assert.True(t, errors.Is(c.Transmit(frame(1545, 0)), nic.ErrFrameTooLarge))

	r.sim.FailTx(lance.TxErrLcol)
	require.NoError(t, c.Transmit(frame(60, 0)))
	r.poll()
	require.NoError(t, c.Transmit(frame(60, 0)))
	r.poll()
	assert.Equal(t, uint64(1), c.Counters.Get(nic.TxLateCollisions))
	assert.Equal(t, uint64(1), c.Counters.Get(nic.TxPackets))
	assert.Len(t, r.sim.Sent(), 1)
	assert.NotZero(t, c.Counters.Get(nic.TxStarts))
}

func TestReceive(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true})
	r.running(t)
	p := frame(60, 0x5a)
	require.True(t, r.sim.Inject(p))
	r.poll()
	got := r.rx.Frames()
	require.Len(t, got, 1)
	assert.Equal(t, p, got[0], "fcs stripped")
	assert.Equal(t, uint64(1), r.core.Counters.Get(nic.RxPackets))
	assert.Equal(t, uint64(60), r.core.Counters.Get(nic.RxBytes))
}

func TestReceiveWraps(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true})
	r.running(t)
	for i := 0; i < 12; i++ {
		require.True(t, r.sim.Inject(frame(64, byte(i))))
		r.poll()
	}
	got := r.rx.Frames()
	require.Len(t, got, 12)
	for i, p := range got {
		assert.Equal(t, byte(i), p[63])
	}
	assert.Equal(t, uint64(3), r.core.Buffers().Rx.Laps())
}

func TestReceiveErrorIsolated(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true, BufferBytes: 128})
	r.running(t)
	require.True(t, r.sim.InjectError(frame(60, 1), lance.RxCrc))
	require.True(t, r.sim.Inject(frame(200, 2)))
	require.True(t, r.sim.Inject(frame(60, 3)))
	r.poll()
	got := r.rx.Frames()
	require.Len(t, got, 1)
	assert.Equal(t, byte(3), got[0][59])
	assert.Equal(t, uint64(1), r.core.Counters.Get(nic.RxCrcErrors))
	assert.Equal(t, uint64(1), r.core.Counters.Get(nic.RxBufferErrors))
}

func TestReceiveMissed(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true})
	r.running(t)
	for i := 0; i < 4; i++ {
		require.True(t, r.sim.Inject(frame(60, byte(i))))
	}
	assert.False(t, r.sim.Inject(frame(60, 4)))
	r.poll()
	assert.Equal(t, 4, r.rx.Len())
	assert.Equal(t, uint64(1), r.core.Counters.Get(nic.RxMissed))
	assert.Equal(t, uint32(1), r.sim.CSR(lance.CSR112))
}

func TestUserInterrupt(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true})
	r.running(t)
	r.sim.UserInterrupt()
	r.poll()
	assert.Equal(t, uint64(1), r.core.Counters.Get(nic.UserInterrupts))
	assert.Zero(t, r.sim.CSR(lance.CSR4)&lance.CSR4Uint)
}

func TestDisableReinitialize(t *testing.T) {
	r := newRig(t, lancesim.Config{ManualTx: true}, lance.Config{Polled: true})
	r.running(t)
	c := r.core
	require.NoError(t, c.Transmit(frame(60, 0)))
	require.NoError(t, c.Transmit(frame(60, 0)))
	require.NoError(t, c.Disable())
	assert.Equal(t, nic.Disabled, c.State())
	assert.NotZero(t, r.sim.CSR(lance.CSR0)&lance.CSR0Stop)
	require.NoError(t, c.Disable(), "disable twice")
	assert.True(t, errors.Is(c.Transmit(frame(60, 0)), nic.ErrNotRunning))
	assert.False(t, r.sim.Inject(frame(60, 0)), "receiver off")

	r.running(t)
	assert.Equal(t, uint64(2), c.Counters.Get(nic.TxDropped))
	assert.Equal(t, uint32(0), c.Buffers().Tx.Current())
	require.True(t, r.sim.Inject(frame(60, 0)))
	r.poll()
	assert.Equal(t, 1, r.rx.Len())
}

func TestRelease(t *testing.T) {
	r := newRig(t, lancesim.Config{}, lance.Config{Polled: true})
	r.running(t)
	c := r.core
	require.NoError(t, c.Release())
	require.NoError(t, c.Release())
	assert.Equal(t, nic.Released, c.State())
	assert.Zero(t, r.m.Heap.InUse())
	assert.False(t, r.m.PortsClaimed(testBase, lance.IOSize))
	assert.Zero(t, r.m.Irqs.Registered(testIrq))

	n := c.Counters.Get(nic.Interrupts)
	c.Interrupt()
	assert.False(t, c.Poll())
	assert.Equal(t, n, c.Counters.Get(nic.Interrupts), "interrupt after release dropped")
	assert.Error(t, c.Initialize())
	assert.True(t, errors.Is(c.Transmit(frame(60, 0)), nic.ErrNotRunning))

	var b bytes.Buffer
	c.Dump(&b)
	assert.Contains(t, b.String(), "buffers freed")
}

// wedged hides STOP in CSR0 once set, like a chip stuck mastering the bus.
type wedged struct {
	hw.PortIO
	base uint16
	rap  uint16
	on   atomic.Bool
}

func (w *wedged) Out16(port uint16, v uint16) {
	if port == w.base+lance.WordRAP {
		w.rap = v
	}
	w.PortIO.Out16(port, v)
}

func (w *wedged) In16(port uint16) uint16 {
	v := w.PortIO.In16(port)
	if port == w.base+lance.WordRDP && w.rap == 0 && w.on.Load() {
		v &^= uint16(lance.CSR0Stop)
	}
	return v
}

func TestReleaseAfterFailedDisable(t *testing.T) {
	m := hw.NewMachine(hw.DefaultHeapBase, hw.DefaultHeapSize)
	sim := lancesim.New(lancesim.Config{Mem: m.Heap, Irqs: m.Irqs, Irq: testIrq, Address: station})
	require.NoError(t, sim.Plug(m.Ports, testBase))
	io := &wedged{PortIO: m.Ports, base: testBase}
	cfg := lance.Config{Polled: true, QuiesceTimeout: 20 * time.Millisecond}

	c, err := lance.Attach(sim.PCI(testBase), hw.NewManager(io, m.Irqs), m.Heap, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c.Initialize())
	require.True(t, c.Poll())
	require.Equal(t, nic.Running, c.State())
	region := c.Buffers().Region()

	io.on.Store(true)
	assert.Error(t, c.Disable())
	assert.Equal(t, nic.Disabled, c.State())
	assert.Error(t, c.Release(), "chip still not stopped")
	assert.Equal(t, nic.Released, c.State())
	assert.False(t, region.Freed(), "region of a running chip kept")
	assert.NotZero(t, m.Heap.InUse())
	assert.Zero(t, m.Irqs.Registered(testIrq))
	assert.False(t, m.PortsClaimed(testBase, lance.IOSize))

	// A chip that stops on the second attempt gets its region freed.
	m = hw.NewMachine(hw.DefaultHeapBase, hw.DefaultHeapSize)
	sim = lancesim.New(lancesim.Config{Mem: m.Heap, Irqs: m.Irqs, Irq: testIrq, Address: station})
	require.NoError(t, sim.Plug(m.Ports, testBase))
	io = &wedged{PortIO: m.Ports, base: testBase}
	c, err = lance.Attach(sim.PCI(testBase), hw.NewManager(io, m.Irqs), m.Heap, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c.Initialize())
	require.True(t, c.Poll())
	io.on.Store(true)
	assert.Error(t, c.Disable())
	io.on.Store(false)
	require.NoError(t, c.Release())
	assert.Zero(t, m.Heap.InUse())
}

func TestAttachFailures(t *testing.T) {
	m := hw.NewMachine(hw.DefaultHeapBase, hw.DefaultHeapSize)
	cfg := lance.Config{Polled: true}

	mem := &pci.Config{DeviceID: pci.DeviceID{Vendor: pci.AMD, Device: 0x2000}, IrqLine: testIrq}
	mem.BaseAddressRegs[0] = 0xfe000000
	_, err := lance.Attach(mem, m, m.Heap, cfg, nil)
	assert.True(t, errors.Is(err, nic.ErrNoIOBase))

	// Nothing answers at the ports.
	sim := lancesim.New(lancesim.Config{Mem: m.Heap, Irqs: m.Irqs, Irq: testIrq})
	_, err = lance.Attach(sim.PCI(testBase), m, m.Heap, cfg, nil)
	assert.True(t, errors.Is(err, nic.ErrNotRecognized))
	assert.False(t, m.PortsClaimed(testBase, lance.IOSize))
	assert.Zero(t, m.Irqs.Registered(testIrq))

	require.NoError(t, sim.Plug(m.Ports, testBase))
	w, err := m.ClaimPorts("other", testBase, lance.IOSize)
	require.NoError(t, err)
	_, err = lance.Attach(sim.PCI(testBase), m, m.Heap, cfg, nil)
	assert.True(t, errors.Is(err, hw.ErrBusy))
	assert.Zero(t, m.Irqs.Registered(testIrq), "irq given back")
	assert.Zero(t, m.Heap.InUse())
	w.Release()

	c, err := lance.Attach(sim.PCI(testBase), m, m.Heap, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c.Release())
}

func TestInterruptGoroutine(t *testing.T) {
	reg := metrics.NewRegistry()
	r := newRig(t, lancesim.Config{}, lance.Config{Registry: reg})
	c := r.core
	require.NoError(t, c.Initialize())
	require.Eventually(t, func() bool { return c.State() == nic.Running }, time.Second, time.Millisecond)
	for i := 0; i < 3; i++ {
		require.True(t, r.sim.Inject(frame(60, byte(i))))
	}
	require.Eventually(t, func() bool { return r.rx.Len() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, c.Transmit(frame(60, 0)))
	require.Eventually(t, func() bool { return c.Counters.Get(nic.TxPackets) == 1 }, time.Second, time.Millisecond)
	assert.NotNil(t, reg.Get("lance0.rx_packets"))
	assert.NotZero(t, r.m.Irqs.Raised(testIrq))
	require.NoError(t, c.Release())
}

func TestDriverProbe(t *testing.T) {
	m := hw.NewMachine(hw.DefaultHeapBase, hw.DefaultHeapSize)
	var reg pci.Registry
	d := &lance.Driver{Resources: m, Allocator: m.Heap, Config: lance.Config{Polled: true}}
	require.NoError(t, d.Register(&reg))
	for i, base := range []uint16{0x300, 0x340} {
		sim := lancesim.New(lancesim.Config{Mem: m.Heap, Irqs: m.Irqs, Irq: uint(testIrq + i)})
		require.NoError(t, sim.Plug(m.Ports, base))
		dd, err := reg.Probe(sim.PCI(base))
		require.NoError(t, err)
		require.NoError(t, dd.Init())
	}
	require.Len(t, d.Cores, 2)
	assert.Equal(t, "lance1", d.Cores[1].Name)
	for _, c := range d.Cores {
		assert.True(t, c.Poll())
		assert.Equal(t, nic.Running, c.State())
		var b bytes.Buffer
		c.Dump(&b)
		assert.Contains(t, b.String(), "init block")
		assert.Contains(t, b.String(), "rxon")
		require.NoError(t, c.Release())
	}
}
