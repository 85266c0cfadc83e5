// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

// System control block, offsets from the i/o base.
const (
	SCBStatus  = 0x00 // u16: CU/RU status (low byte), STAT/ACK (high byte)
	SCBCmd     = 0x02 // u16: command (low byte), interrupt mask (high byte)
	SCBPointer = 0x04 // u32: general pointer for CU/RU commands
	SCBPort    = 0x08 // u32: PORT command and address
	SCBFlash   = 0x0c
	SCBEeprom  = 0x0e // u16: serial EEPROM control
	SCBCtrlMDI = 0x10 // u32: MDI control
	SCBEarlyRx = 0x14

	IOSize = 0x20
)

// SCB status low byte.
const (
	CUStatusMask uint16 = 0xc0
	CUIdle       uint16 = 0x00
	CUSuspended  uint16 = 0x40
	CUActive     uint16 = 0x80

	RUStatusMask  uint16 = 0x3c
	RUIdle        uint16 = 0x00
	RUSuspended   uint16 = 0x04
	RUNoResources uint16 = 0x08
	RUReady       uint16 = 0x10
)

// SCB STAT/ACK bits.  Writing a one acknowledges.
const (
	StatCX  uint16 = 0x8000 // command with I bit done
	StatFR  uint16 = 0x4000 // frame received
	StatCNA uint16 = 0x2000 // command unit left active state
	StatRNR uint16 = 0x1000 // receive unit not ready
	StatMDI uint16 = 0x0800
	StatSWI uint16 = 0x0400 // software interrupt
	StatFCP uint16 = 0x0100

	IntrAllNormal uint16 = 0xfc00
)

// SCB command word.
const (
	CUNop       uint16 = 0x0000
	CUStart     uint16 = 0x0010
	CUResume    uint16 = 0x0020
	CUStatsAddr uint16 = 0x0040
	CUShowStats uint16 = 0x0050
	CUCmdBase   uint16 = 0x0060
	CUDumpStats uint16 = 0x0070 // dump and reset
	CUMask      uint16 = 0x00f0

	RUNop      uint16 = 0x0000
	RUStart    uint16 = 0x0001
	RUResume   uint16 = 0x0002
	RUAbort    uint16 = 0x0004
	RUAddrLoad uint16 = 0x0006
	RUMask     uint16 = 0x0007

	SCBMaskAll     uint16 = 0x0100
	SCBTriggerIntr uint16 = 0x0200
)

// PORT commands, or'ed with a 16 byte aligned address.
const (
	PortReset          uint32 = 0
	PortSelfTest       uint32 = 1
	PortSelectiveReset uint32 = 2
	PortDump           uint32 = 3
	portCmdMask        uint32 = 0xf
)

// Self-test result word.
const (
	SelfTestGeneral   uint32 = 0x1000
	SelfTestSerial    uint32 = 0x0020
	SelfTestRegisters uint32 = 0x0008
	SelfTestROM       uint32 = 0x0004
	SelfTestFailed           = SelfTestGeneral | SelfTestSerial | SelfTestRegisters | SelfTestROM
)

// Serial EEPROM control bits.
const (
	EESK     uint16 = 0x01 // shift clock
	EECS     uint16 = 0x02 // chip select
	EEDI     uint16 = 0x04 // data to the EEPROM
	EEDO     uint16 = 0x08 // data from the EEPROM
	EEEnable uint16 = 0x4800 | EECS
	EEWrite0 uint16 = EEEnable
	EEWrite1 uint16 = EEEnable | EEDI

	// Start bit and read opcode.
	EEReadCmd = 6
)

// MDI control.
const (
	MDIWrite uint32 = 0x04000000
	MDIRead  uint32 = 0x08000000
	MDIReady uint32 = 0x10000000
)

// PHY types from EEPROM word 6 bits 13:8.
const (
	PhyDP83840  = 4
	PhyDP83840A = 10
)

// Action command header.
const (
	RecStatusOffset  = 0 // u16
	RecCommandOffset = 2 // u16
	RecLinkOffset    = 4 // u32 physical address of the next record
	RecHeaderBytes   = 16
)

// Status bits common to every record.
const (
	StatusC  uint16 = 0x8000 // complete
	StatusOK uint16 = 0x2000
)

// Command bits common to every record.
const (
	CmdEL uint16 = 0x8000 // end of list
	CmdS  uint16 = 0x4000 // suspend after
	CmdI  uint16 = 0x2000 // interrupt after

	CmdNop       uint16 = 0
	CmdIASetup   uint16 = 1
	CmdConfigure uint16 = 2
	CmdTx        uint16 = 4
	CmdTypeMask  uint16 = 7
)

// Transmit command block, simplified mode.
const (
	TxTbdOffset       = 8  // u32 TBD array address, 0xffffffff in simplified mode
	TxCountOffset     = 12 // u16 byte count | EOF
	TxThresholdOffset = 14 // u8
	TxTbdNumOffset    = 15 // u8

	TxStatusU uint16 = 0x1000 // underrun

	TxEOF       uint16 = 0x8000
	TxCountMask uint16 = 0x3fff

	NoTbd uint32 = 0xffffffff
)

// Receive frame descriptor, simplified mode.
const (
	RxRbdOffset   = 8  // u32 reserved, 0xffffffff
	RxCountOffset = 12 // u16 actual count | EOF | F
	RxSizeOffset  = 14 // u16 data area size

	RxCRC     uint16 = 0x0800
	RxAlign   uint16 = 0x0400
	RxNoRes   uint16 = 0x0200
	RxOverrun uint16 = 0x0100
	RxShort   uint16 = 0x0080
	RxErr     uint16 = 0x0010
	RxErrors         = RxCRC | RxAlign | RxNoRes | RxOverrun | RxShort | RxErr

	RxEOF       uint16 = 0x8000
	RxF         uint16 = 0x4000
	RxCountMask uint16 = 0x3fff
)

// Statistics dump block: 16 counters and a completion word.
const (
	StatsCounters    = 16
	StatsBytes       = 4*StatsCounters + 4
	StatsDoneOffset  = 4 * StatsCounters
	StatsDumpDone    = 0xa005
	StatsDumpReset   = 0xa007
	SelfTestBytes    = 8
	selfTestSigOff   = 0
	selfTestResOff   = 4
	initialThreshold = 0x01208000
	maxThreshold     = 0x01e00000
	thresholdStep    = 0x00040000
)
