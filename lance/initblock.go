// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/platinasystems/nicdma/dma"
)

const InitBlockBytes = 28

// InitBlock is the 32 bit initialization block the chip reads on INIT.
type InitBlock struct {
	Mode           uint16
	RxLog2, TxLog2 uint8
	Address        net.HardwareAddr
	LogicalFilter  [8]byte
	RxRing, TxRing uint32
}

// MarshalTo writes the block into b[:InitBlockBytes].
func (ib *InitBlock) MarshalTo(b []byte) error {
	if len(b) < InitBlockBytes {
		return fmt.Errorf("init block: short buffer %d", len(b))
	}
	if len(ib.Address) != 6 {
		return fmt.Errorf("init block: bad station address %v", ib.Address)
	}
	if ib.RxLog2 > dma.MaxRingLog2 || ib.TxLog2 > dma.MaxRingLog2 {
		return fmt.Errorf("init block: ring exponent rx %d tx %d out of range", ib.RxLog2, ib.TxLog2)
	}
	binary.LittleEndian.PutUint16(b[0:], ib.Mode)
	b[2] = ib.RxLog2 << 4
	b[3] = ib.TxLog2 << 4
	copy(b[4:10], ib.Address)
	b[10], b[11] = 0, 0
	copy(b[12:20], ib.LogicalFilter[:])
	binary.LittleEndian.PutUint32(b[20:], ib.RxRing)
	binary.LittleEndian.PutUint32(b[24:], ib.TxRing)
	return nil
}

// UnmarshalInitBlock decodes a block the way the chip reads it.
func UnmarshalInitBlock(b []byte) (ib InitBlock, err error) {
	if len(b) < InitBlockBytes {
		err = fmt.Errorf("init block: short buffer %d", len(b))
		return
	}
	ib.Mode = binary.LittleEndian.Uint16(b[0:])
	ib.RxLog2 = b[2] >> 4
	ib.TxLog2 = b[3] >> 4
	ib.Address = append(net.HardwareAddr(nil), b[4:10]...)
	copy(ib.LogicalFilter[:], b[12:20])
	ib.RxRing = binary.LittleEndian.Uint32(b[20:])
	ib.TxRing = binary.LittleEndian.Uint32(b[24:])
	if ib.RxLog2 > dma.MaxRingLog2 || ib.TxLog2 > dma.MaxRingLog2 {
		err = fmt.Errorf("init block: ring exponent rx %d tx %d out of range", ib.RxLog2, ib.TxLog2)
	}
	return
}

func (ib *InitBlock) RxLen() uint32 { return 1 << ib.RxLog2 }
func (ib *InitBlock) TxLen() uint32 { return 1 << ib.TxLog2 }

func (ib *InitBlock) String() string {
	return fmt.Sprintf("mode 0x%04x, station %v, filter %x, rx %d @ 0x%08x, tx %d @ 0x%08x",
		ib.Mode, ib.Address, ib.LogicalFilter, ib.RxLen(), ib.RxRing, ib.TxLen(), ib.TxRing)
}
