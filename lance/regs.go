// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lance

// Port offsets from the i/o base.
const (
	APROM     = 0x00 // 16 byte station address PROM
	APROMSize = 0x10

	WordRDP   = 0x10
	WordRAP   = 0x12
	WordReset = 0x14
	WordBDP   = 0x16

	DwordRDP   = 0x10
	DwordRAP   = 0x14
	DwordReset = 0x18
	DwordBDP   = 0x1c

	IOSize = 0x20
)

// Control and status registers.
const (
	CSR0   = 0   // status
	CSR1   = 1   // init block address [15:0]
	CSR2   = 2   // init block address [31:16]
	CSR3   = 3   // interrupt masks and deferral control
	CSR4   = 4   // test and features control
	CSR5   = 5   // extended control and interrupt
	CSR15  = 15  // mode
	CSR58  = 58  // software style, alias of BCR20
	CSR88  = 88  // chip id [15:0]
	CSR89  = 89  // chip id [31:16]
	CSR112 = 112 // missed frame count
	CSR114 = 114 // receive collision count
)

// Bus configuration registers.
const (
	BCR2  = 2  // misc configuration
	BCR9  = 9  // full duplex control
	BCR20 = 20 // software style
)

// CSR0 bits.  IDON through BABL are write one to clear.
const (
	CSR0Init uint32 = 1 << iota
	CSR0Strt
	CSR0Stop
	CSR0Tdmd
	CSR0Txon
	CSR0Rxon
	CSR0Iena
	CSR0Intr
	CSR0Idon
	CSR0Tint
	CSR0Rint
	CSR0Merr
	CSR0Miss
	CSR0Cerr
	CSR0Babl
	CSR0Err

	CSR0Ack = CSR0Idon | CSR0Tint | CSR0Rint | CSR0Merr | CSR0Miss | CSR0Cerr | CSR0Babl
)

// CSR3 interrupt masks.
const (
	CSR3Idonm uint32 = 1 << 8
	CSR3Tintm uint32 = 1 << 9
	CSR3Rintm uint32 = 1 << 10
	CSR3Merrm uint32 = 1 << 11
	CSR3Missm uint32 = 1 << 12
	CSR3Bablm uint32 = 1 << 14
)

// CSR4 bits.  JAB, TXSTRT, RCVCCO, UINT and MFCO are write one to clear.
const (
	CSR4Jabm    uint32 = 1 << 0
	CSR4Jab     uint32 = 1 << 1
	CSR4Txstrtm uint32 = 1 << 2
	CSR4Txstrt  uint32 = 1 << 3
	CSR4Rcvccom uint32 = 1 << 4
	CSR4Rcvcco  uint32 = 1 << 5
	CSR4Uint    uint32 = 1 << 6
	CSR4Uintcmd uint32 = 1 << 7
	CSR4Mfcom   uint32 = 1 << 8
	CSR4Mfco    uint32 = 1 << 9
	CSR4Astrp   uint32 = 1 << 10
	CSR4ApadXmt uint32 = 1 << 11
	CSR4Dpoll   uint32 = 1 << 12
	CSR4Tmaplus uint32 = 1 << 13
	CSR4Dmaplus uint32 = 1 << 14

	CSR4Ack = CSR4Jab | CSR4Txstrt | CSR4Rcvcco | CSR4Uint | CSR4Mfco
)

// CSR5 bits.  MPINT, EXDINT, SLPINT and SINT are write one to clear.
const (
	CSR5Spnd    uint32 = 1 << 0
	CSR5Mpmode  uint32 = 1 << 1
	CSR5Mpen    uint32 = 1 << 2
	CSR5Mpinte  uint32 = 1 << 3
	CSR5Mpint   uint32 = 1 << 4
	CSR5Mpplba  uint32 = 1 << 5
	CSR5Exdinte uint32 = 1 << 6
	CSR5Exdint  uint32 = 1 << 7
	CSR5Slpinte uint32 = 1 << 8
	CSR5Slpint  uint32 = 1 << 9
	CSR5Sinte   uint32 = 1 << 10
	CSR5Sint    uint32 = 1 << 11
	CSR5Ltinten uint32 = 1 << 14
	CSR5Tokintd uint32 = 1 << 15

	CSR5Ack = CSR5Mpint | CSR5Exdint | CSR5Slpint | CSR5Sint
)

// Mode bits of CSR15 and the init block.
const (
	ModeDrx     uint16 = 1 << 0
	ModeDtx     uint16 = 1 << 1
	ModeLoop    uint16 = 1 << 2
	ModeDxmtfcs uint16 = 1 << 3
	ModeFcoll   uint16 = 1 << 4
	ModeDrty    uint16 = 1 << 5
	ModeIntl    uint16 = 1 << 6
	ModeDrcvpa  uint16 = 1 << 13
	ModeDrcvbc  uint16 = 1 << 14
	ModeProm    uint16 = 1 << 15
)

const (
	BCR2Asel          uint32 = 1 << 1
	BCR9Fden          uint32 = 1 << 0
	BCR20Ssize32      uint32 = 1 << 8
	SoftwareStyle2    uint32 = 2 // 32 bit PCnet-PCI descriptors
	softwareStyleMask        = 0xff
)
