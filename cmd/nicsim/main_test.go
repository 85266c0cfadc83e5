// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/nic"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPFrame(t *testing.T) {
	src := []byte{0x02, 0, 0, 0, 0x10, 0}
	f, err := udpFrame(src, 7, 18)
	require.NoError(t, err)
	assert.Len(t, f, 60)
	pkt := gopacket.NewPacket(f, layers.LayerTypeEthernet, gopacket.Default)
	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, layers.UDPPort(udpPort), udp.DstPort)
	assert.Equal(t, byte(7), udp.Payload[7])
}

func TestLoadConfig(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "nicsim.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(`
frames: 10
lance:
  - {base: 0x300, irq: 10}
  - {base: 0x340, irq: 9, address: "02:00:00:00:00:aa"}
eepro100: []
lance-config:
  rx-ring-len: 8
  polled: true
timeout: 2s
`), 0644))
	c, err := loadConfig(fn)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Frames)
	assert.Equal(t, 64, c.Payload)
	require.Len(t, c.Lance, 2)
	assert.Equal(t, uint16(0x340), c.Lance[1].Base)
	assert.Empty(t, c.EEPRO100)
	assert.Equal(t, uint(8), c.LanceConfig.RxRingLen)
	assert.True(t, c.LanceConfig.Polled)
	assert.Equal(t, 2*time.Second, c.Timeout)
	assert.Zero(t, c.HugePages)

	require.NoError(t, os.WriteFile(fn, []byte("frames: -1\n"), 0644))
	_, err = loadConfig(fn)
	assert.Error(t, err)
}

func TestLoopback(t *testing.T) {
	for _, polled := range []bool{true, false} {
		cfg := defaultConfig
		cfg.Frames = 40
		cfg.LanceConfig.Polled = polled
		cfg.EEPRO100Config.Polled = polled
		reg := metrics.NewRegistry()
		m := hw.NewMachine(hw.DefaultHeapBase, cfg.HeapBytes)
		ports, err := attach(m, m.Heap, &cfg, reg, &mux{ports: make(map[string]*port)})
		require.NoError(t, err)
		require.Len(t, ports, 2)
		for _, p := range ports {
			require.NoError(t, p.run(context.Background(), cfg.Frames, cfg.Payload, cfg.Timeout))
			assert.Equal(t, uint64(40), p.Received(), p.name)
			assert.Equal(t, uint64(40), p.counters.Get(nic.TxPackets), p.name)
			require.NoError(t, p.core.Release())
		}
		assert.Zero(t, m.Heap.InUse())
		assert.NotNil(t, reg.Get("lance0.rx_packets"))
		assert.NotNil(t, reg.Get("eepro100-0.tx_packets"))
	}
}

func TestLoopbackHugePages(t *testing.T) {
	cfg := defaultConfig
	cfg.Frames = 10
	cfg.HugePages = 1
	cfg.LanceConfig.Polled = true
	cfg.EEPRO100Config.Polled = true
	m := hw.NewMachine(hw.DefaultHeapBase, cfg.HeapBytes)
	mem, closeMem, err := openMemory(m, &cfg)
	if err != nil {
		t.Skip("no huge pages: ", err)
	}
	defer closeMem()

	ports, err := attach(m, mem, &cfg, metrics.NewRegistry(), &mux{ports: make(map[string]*port)})
	if errors.Is(err, dma.ErrUnreachable) {
		for _, p := range ports {
			p.core.Release()
		}
		t.Skip("huge page above 4G: ", err)
	}
	require.NoError(t, err)
	for _, p := range ports {
		require.NoError(t, p.run(context.Background(), cfg.Frames, cfg.Payload, cfg.Timeout))
		assert.Equal(t, uint64(10), p.Received(), p.name)
		require.NoError(t, p.core.Release())
	}
	assert.Zero(t, mem.InUse())
	assert.Zero(t, m.Heap.InUse(), "machine heap unused")
}
