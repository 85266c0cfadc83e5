// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

import (
	"fmt"

	"github.com/platinasystems/nicdma/hw/pci"
)

// Chip is decoded from CSR88/CSR89.
type Chip struct {
	ID   uint32 // CSR89<<16 | CSR88
	Part uint16
	Name string
	// Chip supports full duplex through BCR9.
	FullDuplex bool
}

var chips = map[uint16]struct {
	name        string
	full_duplex bool
}{
	0x2420: {"PCnet-PCI 79C970", false},
	0x2430: {"PCnet-PCI 79C970", false},
	0x2621: {"PCnet-PCI II 79C970A", true},
	0x2623: {"PCnet-FAST 79C971", true},
	0x2624: {"PCnet-FAST+ 79C972", true},
	0x2625: {"PCnet-FAST III 79C973", true},
	0x2626: {"PCnet-Home 79C978", true},
	0x2627: {"PCnet-FAST III 79C975", true},
}

func chipFromID(id uint32) (c Chip) {
	c.ID = id
	c.Part = uint16(id >> 12)
	if x, ok := chips[c.Part]; ok {
		c.Name, c.FullDuplex = x.name, x.full_duplex
	} else {
		c.Name = fmt.Sprintf("unknown 0x%04x", c.Part)
	}
	return
}

func (c Chip) Known() bool { _, ok := chips[c.Part]; return ok }

func (c Chip) String() string { return fmt.Sprintf("%s (id 0x%08x)", c.Name, c.ID) }

// PCI ids claimed by the driver.
var DeviceIDs = []pci.VendorDeviceID{
	0x2000, // 79C970 PCnet family
	0x2001, // 79C978 HomePNA
}
