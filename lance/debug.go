// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

import (
	"fmt"
	"io"

	"github.com/platinasystems/nicdma/nic"
)

var dumpCSRs = []struct {
	n    uint32
	name string
}{
	{CSR0, "status"},
	{CSR1, "iadr[15:0]"},
	{CSR2, "iadr[31:16]"},
	{CSR3, "masks"},
	{CSR4, "features"},
	{CSR5, "extended"},
	{CSR15, "mode"},
	{CSR58, "software style"},
	{CSR88, "chip id lo"},
	{CSR89, "chip id hi"},
	{CSR112, "missed frames"},
	{CSR114, "rx collisions"},
}

var dumpBCRs = []struct {
	n    uint32
	name string
}{
	{BCR2, "misc"},
	{BCR9, "full duplex"},
	{BCR20, "software style"},
}

var csr0Names = [16]string{
	"init", "strt", "stop", "tdmd", "txon", "rxon", "iena", "intr",
	"idon", "tint", "rint", "merr", "miss", "cerr", "babl", "err",
}

func csr0String(v uint32) (s string) {
	for i, n := range csr0Names {
		if v&(1<<uint(i)) != 0 {
			if s != "" {
				s += " "
			}
			s += n
		}
	}
	return
}

// Dump prints registers, counters and the buffer manager.  Registers are
// read while the chip runs; reading has no side effects on these.
func (c *Core) Dump(w io.Writer) {
	c.Lock()
	defer c.Unlock()
	fmt.Fprintf(w, "%v: %v, %v access, address %v\n", c.Engine, c.Chip, c.io.Width(), c.address)
	if c.State() != nic.Released {
		for _, r := range dumpCSRs {
			v := c.io.CSR(r.n)
			fmt.Fprintf(w, "  csr%-3d %-15s 0x%04x", r.n, r.name, v)
			if r.n == CSR0 {
				fmt.Fprintf(w, " %s", csr0String(v))
			}
			fmt.Fprintln(w)
		}
		for _, r := range dumpBCRs {
			fmt.Fprintf(w, "  bcr%-3d %-15s 0x%04x\n", r.n, r.name, c.io.BCR(r.n))
		}
	}
	c.Counters.WriteTo(w)
	c.bm.Dump(w)
}
