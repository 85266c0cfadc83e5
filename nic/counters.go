// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rcrowley/go-metrics"
)

type Counter int

const (
	RxPackets Counter = iota
	RxBytes
	TxPackets
	TxBytes
	Interrupts

	RxFramingErrors
	RxOverflowErrors
	RxCrcErrors
	RxBufferErrors
	RxChainedFrames
	RxMissed
	RxAlignmentErrors
	RxResourceErrors
	RxShortFrames
	RxOverrunErrors

	TxRingFull
	TxUnderruns
	TxLateCollisions
	TxLostCarrier
	TxRetryErrors
	TxBufferErrors
	TxExcessiveDeferrals
	TxDeferred
	TxSingleCollisions
	TxMultipleCollisions
	TxCollisions
	TxDropped

	MemoryErrors
	CollisionErrors
	Babble
	Jabber
	MissedFrameCounterOverflows
	RxCollisionCounterOverflows
	UserInterrupts
	SystemInterrupts
	SleepInterrupts
	ExcessiveDeferralInterrupts
	MagicPackets
	TxStarts
	RxRestarts
	nCounter
)

var counterNames = [...]string{
	RxPackets:                   "rx_packets",
	RxBytes:                     "rx_bytes",
	TxPackets:                   "tx_packets",
	TxBytes:                     "tx_bytes",
	Interrupts:                  "interrupts",
	RxFramingErrors:             "rx_framing_errors",
	RxOverflowErrors:            "rx_overflow_errors",
	RxCrcErrors:                 "rx_crc_errors",
	RxBufferErrors:              "rx_buffer_errors",
	RxChainedFrames:             "rx_chained_frames",
	RxMissed:                    "rx_missed",
	RxAlignmentErrors:           "rx_alignment_errors",
	RxResourceErrors:            "rx_resource_errors",
	RxShortFrames:               "rx_short_frames",
	RxOverrunErrors:             "rx_overrun_errors",
	TxRingFull:                  "tx_ring_full",
	TxUnderruns:                 "tx_underruns",
	TxLateCollisions:            "tx_late_collisions",
	TxLostCarrier:               "tx_lost_carrier",
	TxRetryErrors:               "tx_retry_errors",
	TxBufferErrors:              "tx_buffer_errors",
	TxExcessiveDeferrals:        "tx_excessive_deferrals",
	TxDeferred:                  "tx_deferred",
	TxSingleCollisions:          "tx_single_collisions",
	TxMultipleCollisions:        "tx_multiple_collisions",
	TxCollisions:                "tx_collisions",
	TxDropped:                   "tx_dropped",
	MemoryErrors:                "memory_errors",
	CollisionErrors:             "collision_errors",
	Babble:                      "babble",
	Jabber:                      "jabber",
	MissedFrameCounterOverflows: "missed_frame_counter_overflows",
	RxCollisionCounterOverflows: "rx_collision_counter_overflows",
	UserInterrupts:              "user_interrupts",
	SystemInterrupts:            "system_interrupts",
	SleepInterrupts:             "sleep_interrupts",
	ExcessiveDeferralInterrupts: "excessive_deferral_interrupts",
	MagicPackets:                "magic_packets",
	TxStarts:                    "tx_starts",
	RxRestarts:                  "rx_restarts",
}

func (c Counter) String() string {
	if c >= 0 && c < nCounter {
		return counterNames[c]
	}
	return fmt.Sprintf("counter %d", int(c))
}

// Counters are a driver's device counters, registered in a go-metrics
// registry as <prefix>.<name>.
type Counters struct {
	prefix   string
	registry metrics.Registry
	c        [nCounter]metrics.Counter
}

// NewCounters registers counters with r.  A nil registry keeps them
// private to the driver.
func NewCounters(prefix string, r metrics.Registry) *Counters {
	if r == nil {
		r = metrics.NewRegistry()
	}
	cs := &Counters{prefix: prefix, registry: r}
	for i := range cs.c {
		cs.c[i] = metrics.GetOrRegisterCounter(cs.Name(Counter(i)), r)
	}
	return cs
}

func (cs *Counters) Name(c Counter) string { return cs.prefix + "." + c.String() }

func (cs *Counters) Registry() metrics.Registry { return cs.registry }

func (cs *Counters) Add(c Counter, n uint) { cs.c[c].Inc(int64(n)) }
func (cs *Counters) Inc(c Counter)         { cs.c[c].Inc(1) }
func (cs *Counters) Get(c Counter) uint64  { return uint64(cs.c[c].Count()) }

// AddPacket counts one packet of n bytes on a packets/bytes pair.
func (cs *Counters) AddPacket(packets Counter, n uint) {
	cs.Inc(packets)
	cs.Add(packets+1, n)
}

// Clear zeroes all counters.
func (cs *Counters) Clear() {
	for _, c := range cs.c {
		c.Clear()
	}
}

// Unregister removes the counters from the registry.
func (cs *Counters) Unregister() {
	for i := range cs.c {
		cs.registry.Unregister(cs.Name(Counter(i)))
	}
}

// Foreach calls f for every counter; zero counters are skipped unless all is set.
func (cs *Counters) Foreach(all bool, f func(c Counter, v uint64)) {
	for i, x := range cs.c {
		if v := uint64(x.Count()); v != 0 || all {
			f(Counter(i), v)
		}
	}
}

func (cs *Counters) WriteTo(w io.Writer) (n int64, err error) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	cs.Foreach(false, func(c Counter, v uint64) {
		if err == nil {
			var m int
			m, err = fmt.Fprintf(tw, "%s\t%d\n", c, v)
			n += int64(m)
		}
	})
	if e := tw.Flush(); err == nil {
		err = e
	}
	return
}
