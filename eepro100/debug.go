// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"fmt"
	"io"

	"github.com/platinasystems/nicdma/nic"
)

var statNames = [8]string{"fcp", "", "swi", "mdi", "rnr", "cna", "fr", "cx"}

var cuNames = map[uint16]string{
	CUIdle:      "idle",
	CUSuspended: "suspended",
	CUActive:    "active",
}

var ruNames = map[uint16]string{
	RUIdle:        "idle",
	RUSuspended:   "suspended",
	RUNoResources: "no resources",
	RUReady:       "ready",
}

func scbStatusString(v uint16) (s string) {
	s = fmt.Sprintf("cu %s, ru %s", cuNames[v&CUStatusMask], ruNames[v&RUStatusMask])
	for i, n := range statNames {
		if n != "" && v&(1<<uint(8+i)) != 0 {
			s += " " + n
		}
	}
	return
}

// Dump prints the system control block, EEPROM, counters and buffers.
func (c *Core) Dump(w io.Writer) {
	c.Lock()
	defer c.Unlock()
	fmt.Fprintf(w, "%v: %s, address %v\n", c.Engine, c.Chip, c.address)
	if c.State() != nic.Released {
		st := c.status()
		fmt.Fprintf(w, "  scb status  0x%04x %s\n", st, scbStatusString(st))
		fmt.Fprintf(w, "  scb command 0x%04x\n", c.ports.Get16(SCBCmd))
	}
	addr, typ := c.eeprom.Phy()
	fmt.Fprintf(w, "  eeprom: %v, phy %d type %d\n", &c.eeprom, addr, typ)
	c.Counters.WriteTo(w)
	c.bm.Dump(w)
}
