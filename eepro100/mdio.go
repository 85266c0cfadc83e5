// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import (
	"fmt"
	"time"

	"github.com/platinasystems/nicdma/nic"
)

// An MDI frame takes 64 clocks at 2.5MHz.
const mdiTimeout = 2 * time.Millisecond

func (c *Core) mdio(cmd uint32) (uint16, error) {
	var v uint32
	c.ports.Set32(SCBCtrlMDI, cmd)
	if !nic.WaitFor(mdiTimeout, func() bool {
		v = c.ports.Get32(SCBCtrlMDI)
		return v&MDIReady != 0
	}) {
		return 0, fmt.Errorf("%s: mdi 0x%08x: not ready within %v", c.Name, cmd, mdiTimeout)
	}
	return uint16(v), nil
}

// MdioRead reads a PHY register; caller holds the lock.
func (c *Core) MdioRead(phy, reg uint) (uint16, error) {
	return c.mdio(MDIRead | uint32(reg&0x1f)<<16 | uint32(phy&0x1f)<<21)
}

func (c *Core) MdioWrite(phy, reg uint, v uint16) error {
	_, err := c.mdio(MDIWrite | uint32(reg&0x1f)<<16 | uint32(phy&0x1f)<<21 | uint32(v))
	return err
}

// setupPhy applies the DP83840 register 23 fixups.
func (c *Core) setupPhy() error {
	addr, typ := c.eeprom.Phy()
	if typ != PhyDP83840 && typ != PhyDP83840A {
		return nil
	}
	v, err := c.MdioRead(addr, 23)
	if err != nil {
		return err
	}
	return c.MdioWrite(addr, 23, v|0x0422)
}
