// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"errors"
	"testing"

	"github.com/platinasystems/nicdma/dma"
	"github.com/platinasystems/nicdma/hw"
	"github.com/platinasystems/nicdma/nic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffers(t *testing.T, rx, tx uint) (*BufferManager, *nic.Counters) {
	heap := hw.NewHeap(0x10000, 1<<18)
	cfg := DefaultConfig
	cfg.RxRingLen, cfg.TxRingLen = rx, tx
	cs := nic.NewCounters("t0", nil)
	m, err := NewBufferManager(heap, &cfg, cs)
	require.NoError(t, err)
	t.Cleanup(m.Free)
	return m, cs
}

// deliver plays the receive unit storing p with the given status.
func deliver(m *BufferManager, i uint32, p []byte, count, st uint16) {
	f := m.Rx.Frame(i)
	copy(m.arena.Bytes(f.data), p)
	m.arena.Store16(f.off+RxCountOffset, count)
	m.arena.UpdateWord(f.off, func(w uint32) uint32 { return w&0xffff0000 | uint32(st) })
}

// execute plays the command unit completing block i.
func execute(m *BufferManager, i uint32, st uint16) {
	b := m.Tx.Block(i)
	m.arena.UpdateWord(b.off, func(w uint32) uint32 { return w&0xffff0000 | uint32(StatusC|st) })
}

func TestEEPROM(t *testing.T) {
	e := EEPROM{Words: make([]uint16, 64), AddressBits: 6}
	e.Words[0], e.Words[1], e.Words[2] = 0xaa00, 0x1200, 0x5634
	e.Words[6] = PhyDP83840<<8 | 1
	assert.False(t, e.Valid())
	e.Words[63] = EEPROMChecksum - (e.Sum() - e.Words[63])
	assert.True(t, e.Valid())
	assert.Equal(t, "00:aa:00:12:34:56", e.Address().String())
	addr, typ := e.Phy()
	assert.Equal(t, uint(1), addr)
	assert.Equal(t, uint(PhyDP83840), typ)
	assert.False(t, (&EEPROM{}).Valid())
}

func TestRecordLayout(t *testing.T) {
	m, _ := newTestBuffers(t, 4, 4)
	assert.Zero(t, m.SelfTestAddress()%16)
	assert.Zero(t, m.StatsAddress()%16)
	for i := uint32(0); i < 4; i++ {
		f := m.Rx.Frame(i)
		assert.Zero(t, f.Phys()%4)
		assert.Equal(t, m.Rx.Frame((i+1)%4).Phys(), f.Link())
		assert.Equal(t, dma.Hardware, f.Owner())
		assert.Equal(t, DefaultBufferBytes, f.Size())
		assert.Equal(t, i == 3, f.Command()&CmdEL != 0, "el on slot %d", i)

		b := m.Tx.Block(i)
		assert.Equal(t, m.Tx.Block((i+1)%4).Phys(), b.Link())
		assert.Equal(t, dma.Software, b.Owner())
	}

	m.clearSelfTest()
	sig, res := m.selfTestResult()
	assert.Zero(t, sig)
	assert.Equal(t, ^uint32(0), res)
}

func TestRxRearm(t *testing.T) {
	m, cs := newTestBuffers(t, 4, 4)
	_, ok := m.Receive()
	assert.False(t, ok, "receive unit owns slot 0")

	p := make([]byte, 60)
	p[59] = 7
	deliver(m, 0, p, 60|RxEOF|RxF, StatusC|StatusOK)
	got, ok := m.Receive()
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, uint32(1), m.Rx.Current())
	assert.Equal(t, dma.Hardware, m.Rx.Frame(0).Owner())
	assert.NotZero(t, m.Rx.Frame(0).Command()&CmdEL, "slot 0 is the new tail")
	assert.Zero(t, m.Rx.Frame(3).Command()&CmdEL)
	assert.Equal(t, uint64(1), cs.Get(nic.RxPackets))
	assert.Equal(t, uint64(60), cs.Get(nic.RxBytes))

	// The copy survives the slot being reused.
	deliver(m, 0, make([]byte, 60), 60|RxEOF|RxF, StatusC|StatusOK)
	assert.Equal(t, byte(7), got[59])
}

func TestRxErrors(t *testing.T) {
	m, cs := newTestBuffers(t, 4, 4)
	p := make([]byte, 64)
	deliver(m, 0, p, 64|RxEOF|RxF, StatusC|RxCRC)
	deliver(m, 1, p, 64|RxF, StatusC|StatusOK)
	deliver(m, 2, p, RxEOF|RxF, StatusC|StatusOK)
	deliver(m, 3, p, 64|RxEOF|RxF, StatusC|StatusOK)
	for i := 0; i < 3; i++ {
		got, ok := m.Receive()
		require.True(t, ok)
		assert.Nil(t, got, "slot %d dropped", i)
	}
	got, ok := m.Receive()
	require.True(t, ok)
	assert.Len(t, got, 64)
	assert.Equal(t, uint64(1), cs.Get(nic.RxCrcErrors))
	assert.Equal(t, uint64(1), cs.Get(nic.RxChainedFrames))
	assert.Equal(t, uint64(1), cs.Get(nic.RxBufferErrors))
	assert.Equal(t, uint64(1), cs.Get(nic.RxPackets))
	assert.Equal(t, uint64(1), m.Rx.Laps())
}

func TestTxRing(t *testing.T) {
	m, cs := newTestBuffers(t, 4, 4)
	p := make([]byte, 46)
	for i := uint32(0); i < 4; i++ {
		b, err := m.Transmit(p)
		require.NoError(t, err)
		assert.Equal(t, m.Tx.Block(i), b)
		assert.Equal(t, dma.Hardware, b.Owner())
		assert.Equal(t, CmdTx|CmdS|CmdI, b.Command())
		assert.Equal(t, 46, b.Bytes())
		if i > 0 {
			assert.Zero(t, m.Tx.Block(i-1).Command()&CmdS, "suspend moved off slot %d", i-1)
		}
	}
	_, err := m.Transmit(p)
	assert.True(t, errors.Is(err, nic.ErrRingFull))
	assert.Equal(t, uint64(1), cs.Get(nic.TxRingFull))
	_, err = m.Transmit(make([]byte, DefaultBufferBytes+1))
	assert.True(t, errors.Is(err, nic.ErrFrameTooLarge))
	_, err = m.Transmit(nil)
	assert.True(t, errors.Is(err, nic.ErrShortFrame))

	execute(m, 0, StatusOK)
	b, err := m.Transmit(p)
	require.NoError(t, err)
	assert.Equal(t, m.Tx.Block(0), b, "slot 0 reused")
	assert.Equal(t, uint32(4), m.Tx.InFlight())
	assert.Equal(t, uint64(1), cs.Get(nic.TxPackets))
	assert.Equal(t, uint64(46), cs.Get(nic.TxBytes))
}

func TestTxUnderrun(t *testing.T) {
	m, cs := newTestBuffers(t, 4, 4)
	_, err := m.Transmit(make([]byte, 60))
	require.NoError(t, err)
	_, err = m.Transmit(make([]byte, 60))
	require.NoError(t, err)
	execute(m, 0, TxStatusU)
	execute(m, 1, 0)
	assert.Equal(t, 2, m.Reap())
	assert.Equal(t, uint64(1), cs.Get(nic.TxUnderruns))
	assert.Equal(t, uint64(1), cs.Get(nic.TxBufferErrors))
	assert.Equal(t, uint32(initialThreshold+thresholdStep), m.Tx.Threshold)

	b, err := m.Transmit(make([]byte, 60))
	require.NoError(t, err)
	assert.Equal(t, uint8(m.Tx.Threshold>>16), m.arena.Load8(b.off+TxThresholdOffset))

	m.Tx.Threshold = maxThreshold
	execute(m, 2, TxStatusU)
	m.Reap()
	assert.Equal(t, uint32(maxThreshold), m.Tx.Threshold)
}

func TestReset(t *testing.T) {
	m, cs := newTestBuffers(t, 4, 4)
	for i := 0; i < 3; i++ {
		_, err := m.Transmit(make([]byte, 60))
		require.NoError(t, err)
	}
	execute(m, 0, StatusOK)
	deliver(m, 0, make([]byte, 60), 60|RxEOF|RxF, StatusC|StatusOK)
	assert.Equal(t, 2, m.reset())
	assert.Equal(t, uint64(2), cs.Get(nic.TxDropped))
	assert.Equal(t, uint64(1), cs.Get(nic.TxPackets))
	assert.Zero(t, m.Tx.InFlight())
	assert.Zero(t, m.Tx.Current())
	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, dma.Software, m.Tx.Block(i).Owner())
		assert.Equal(t, dma.Hardware, m.Rx.Frame(i).Owner())
	}
}
