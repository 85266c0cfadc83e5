// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/platinasystems/log"
	"github.com/platinasystems/nicdma/nic"
)

const udpPort = 9

// core is what both drivers provide.
type core interface {
	Initialize() error
	Transmit(frame []byte) error
	Poll() bool
	Polled() bool
	Release() error
	Dump(w io.Writer)
	Address() net.HardwareAddr
}

// wire is the simulated cable: frames the chip sent, frames it receives.
type wire interface {
	Sent() [][]byte
	Inject(frame []byte) bool
}

// port is a core looped back onto itself through its simulator.
type port struct {
	name     string
	core     core
	counters *nic.Counters
	wire     wire

	// Sent frames the receiver has not yet taken.
	backlog [][]byte

	received uint64
	bad      uint64
}

func (p *port) OnReceive(frame []byte) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok || udp.DstPort != udpPort || len(udp.Payload) < 8 {
		atomic.AddUint64(&p.bad, 1)
		log.Printf("%s: unexpected frame: %v", p.name, pkt)
		return
	}
	atomic.AddUint64(&p.received, 1)
}

func (p *port) Received() uint64 { return atomic.LoadUint64(&p.received) }

// udpFrame is an ethernet broadcast carrying a UDP datagram whose payload
// starts with the sequence number.
func udpFrame(src net.HardwareAddr, seq uint64, payload int) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4bcast,
	}
	udp := &layers.UDP{SrcPort: udpPort, DstPort: udpPort}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	data := make([]byte, payload)
	binary.BigEndian.PutUint64(data, seq)
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// carry moves sent frames back to the receiver, keeping those it has no
// room for, and services the core.
func (p *port) carry() {
	p.backlog = append(p.backlog, p.wire.Sent()...)
	for len(p.backlog) > 0 && p.wire.Inject(p.backlog[0]) {
		p.backlog = p.backlog[1:]
	}
	if p.core.Polled() {
		for p.core.Poll() {
		}
	}
}

// run sends n frames and waits for them to come back.
func (p *port) run(ctx context.Context, n, payload int, timeout time.Duration) error {
	if err := p.core.Initialize(); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for seq := 0; seq < n; {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := udpFrame(p.core.Address(), uint64(seq), payload)
		if err != nil {
			return err
		}
		err = p.core.Transmit(f)
		switch {
		case err == nil:
			seq++
		case errors.Is(err, nic.ErrRingFull):
			if time.Now().After(deadline) {
				return fmt.Errorf("%s: transmit ring stuck: %w", p.name, err)
			}
		default:
			return err
		}
		p.carry()
	}
	for p.Received() < uint64(n) {
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: received %d of %d frames", p.name, p.Received(), n)
		}
		p.carry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	log.Printf("info", "%s: %d frames looped back, %d rejected", p.name, p.Received(), atomic.LoadUint64(&p.bad))
	return nil
}
