// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"fmt"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/nicdma/nic"
)

// Statistics dump block counters, in device order.
const (
	StatTxGood = iota
	StatTxMaxCollisions
	StatTxLateCollisions
	StatTxUnderruns
	StatTxLostCarrier
	StatTxDeferred
	StatTxSingleCollisions
	StatTxMultipleCollisions
	StatTxTotalCollisions
	StatRxGood
	StatRxCrcErrors
	StatRxAlignmentErrors
	StatRxResourceErrors
	StatRxOverrunErrors
	StatRxCollisionDetect
	StatRxShortFrames
)

// Dumped counters folded into the driver counters.  Good frames and
// underruns are counted from the rings.
var statsCounters = []struct {
	i int
	c nic.Counter
}{
	{StatTxMaxCollisions, nic.TxRetryErrors},
	{StatTxLateCollisions, nic.TxLateCollisions},
	{StatTxLostCarrier, nic.TxLostCarrier},
	{StatTxDeferred, nic.TxDeferred},
	{StatTxSingleCollisions, nic.TxSingleCollisions},
	{StatTxMultipleCollisions, nic.TxMultipleCollisions},
	{StatTxTotalCollisions, nic.TxCollisions},
	{StatRxCrcErrors, nic.RxCrcErrors},
	{StatRxAlignmentErrors, nic.RxAlignmentErrors},
	{StatRxResourceErrors, nic.RxResourceErrors},
	{StatRxOverrunErrors, nic.RxOverrunErrors},
	{StatRxCollisionDetect, nic.CollisionErrors},
	{StatRxShortFrames, nic.RxShortFrames},
}

// DumpStats has the command unit dump and reset its statistics counters
// and adds them to the driver counters.  The core lock is not held while
// the chip writes the dump.
func (c *Core) DumpStats() error {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	c.Lock()
	if s := c.State(); !s.CanTransmit() {
		c.Unlock()
		return fmt.Errorf("%s: %v: %w", c.Name, s, nic.ErrNotRunning)
	}
	c.bm.clearStatsDone()
	err := c.command(CUDumpStats)
	c.Unlock()
	if err != nil {
		return err
	}

	if !nic.WaitFor(c.cfg.QuiesceTimeout, func() bool { return c.bm.statsDone() == StatsDumpReset }) {
		return fmt.Errorf("%s: statistics dump: no completion within %v", c.Name, c.cfg.QuiesceTimeout)
	}

	c.Lock()
	defer c.Unlock()
	for _, x := range statsCounters {
		if v := c.bm.statsCounter(x.i); v != 0 {
			c.Counters.Add(x.c, uint(v))
		}
	}
	return nil
}

// pollStats dumps statistics until quit closes.
func (c *Core) pollStats(d time.Duration, quit <-chan struct{}) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			if err := c.DumpStats(); err != nil {
				log.Print(c.Name, ": ", err)
			}
		}
	}
}
