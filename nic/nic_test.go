// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine(t *testing.T) {
	e := NewEngine("x0", true, nil)
	require.Equal(t, Unattached, e.State())
	assert.Error(t, e.SetState(Running))
	require.NoError(t, e.SetState(Attached))
	require.NoError(t, e.SetState(Initializing))
	assert.True(t, e.State().CanTransmit())
	require.NoError(t, e.SetState(Running))
	require.NoError(t, e.SetState(Disabled))
	assert.False(t, e.State().CanTransmit())
	require.NoError(t, e.SetState(Released))
	assert.Error(t, e.SetState(Attached), "released is final")
	assert.Equal(t, "released", e.State().String())
}

func TestPolledEngineCoalesces(t *testing.T) {
	e := NewEngine("x0", true, nil)
	n := 0
	e.Start(func() { n++ })
	assert.False(t, e.Poll())
	e.Interrupt()
	e.Interrupt()
	e.Interrupt()
	assert.True(t, e.Pending())
	assert.True(t, e.Poll())
	assert.False(t, e.Poll())
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(3), e.Counters.Get(Interrupts))
}

func TestEngineGoroutine(t *testing.T) {
	e := NewEngine("x0", false, nil)
	var n int32
	e.Start(func() {
		e.Lock()
		defer e.Unlock()
		atomic.AddInt32(&n, 1)
	})
	e.Interrupt()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 1 }, time.Second, time.Millisecond)

	e.Close()
	e.Interrupt()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&n), "no service after close")
	assert.False(t, e.Pending())
}

func TestCounters(t *testing.T) {
	r := metrics.NewRegistry()
	cs := NewCounters("lance0", r)
	cs.AddPacket(RxPackets, 60)
	cs.AddPacket(RxPackets, 64)
	cs.Inc(RxCrcErrors)
	assert.Equal(t, uint64(2), cs.Get(RxPackets))
	assert.Equal(t, uint64(124), cs.Get(RxBytes))

	c, ok := r.Get("lance0.rx_crc_errors").(metrics.Counter)
	require.True(t, ok)
	assert.Equal(t, int64(1), c.Count())

	var b bytes.Buffer
	_, err := cs.WriteTo(&b)
	require.NoError(t, err)
	assert.Contains(t, b.String(), "rx_bytes")
	assert.NotContains(t, b.String(), "tx_packets")

	cs.Unregister()
	assert.Nil(t, r.Get("lance0.rx_crc_errors"))
}

func TestWaitFor(t *testing.T) {
	i := 0
	assert.True(t, WaitFor(time.Second, func() bool { i++; return i == 3 }))
	assert.False(t, WaitFor(time.Millisecond, func() bool { return false }))
}
