// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eepro100

import "github.com/platinasystems/nicdma/hw/pci"

var chips = map[pci.VendorDeviceID]string{
	0x1029: "82559 InBusiness",
	0x1030: "82559 InBusiness 10/100",
	0x1031: "82801CAM PRO/100 VE",
	0x1032: "82801CAM PRO/100 VE",
	0x1033: "82801CAM PRO/100 VM",
	0x1034: "82801CAM PRO/100 VM",
	0x1035: "82801CAM PRO/100",
	0x1036: "82801CAM PRO/100",
	0x1037: "82801CAM PRO/100",
	0x1038: "82801CAM PRO/100 VM",
	0x1039: "82801DB PRO/100 VE",
	0x1209: "82559ER",
	0x1227: "82865 EtherExpress PRO/100A",
	0x1228: "82556 EtherExpress PRO/100 Smart",
	0x1229: "82557/8/9 EtherExpress PRO/100",
	0x2449: "82801BA PRO/100 VE",
	0x2459: "82801E PRO/100",
	0x245d: "82801E PRO/100",
	0x5200: "EtherExpress PRO/100 Intelligent",
	0x5201: "EtherExpress PRO/100 Intelligent",
}

// DeviceIDs lists every Intel device the driver claims.
var DeviceIDs = func() (ids []pci.VendorDeviceID) {
	for id := range chips {
		ids = append(ids, id)
	}
	return
}()

func chipName(id pci.VendorDeviceID) string {
	if s, ok := chips[id]; ok {
		return s
	}
	return "i82557 (" + id.String() + ")"
}
