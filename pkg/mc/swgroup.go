// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mc

import (
	"fmt"
)

// Swgroup identifies one group of memory clients. The names are the
// stable handle boards configure domains with, the numbers are only
// internal keys.
type Swgroup int

const (
	SwgroupPTC Swgroup = iota
	SwgroupDC
	SwgroupDCB
	SwgroupEPP
	SwgroupG2
	SwgroupAVPC
	SwgroupNV
	SwgroupHDA
	SwgroupHC
	SwgroupMSENC
	SwgroupPPCS
	SwgroupVDE
	SwgroupVI
	SwgroupISP
	SwgroupXUSBHost
	SwgroupXUSBDev
	SwgroupTSEC
	SwgroupMPCoreLP
	SwgroupMPCore
)

var swgroupNames = map[Swgroup]string{
	SwgroupPTC:      "ptc",
	SwgroupDC:       "dc",
	SwgroupDCB:      "dcb",
	SwgroupEPP:      "epp",
	SwgroupG2:       "g2",
	SwgroupAVPC:     "avpc",
	SwgroupNV:       "nv",
	SwgroupHDA:      "hda",
	SwgroupHC:       "hc",
	SwgroupMSENC:    "msenc",
	SwgroupPPCS:     "ppcs",
	SwgroupVDE:      "vde",
	SwgroupVI:       "vi",
	SwgroupISP:      "isp",
	SwgroupXUSBHost: "xusb_host",
	SwgroupXUSBDev:  "xusb_dev",
	SwgroupTSEC:     "tsec",
	SwgroupMPCoreLP: "mpcorelp",
	SwgroupMPCore:   "mpcore",
}

func (s Swgroup) String() string {
	if n, ok := swgroupNames[s]; ok {
		return n
	}
	return fmt.Sprintf("swgroup%d", int(s))
}

// HotReset describes the flush handshake registers of one client
// group: the request bit in the control register and the matching
// empty bit in the status register.
type HotReset struct {
	Group  Swgroup
	Ctrl   uint32
	Status uint32
	Bit    uint
}

// Tegra114HotResets is the bank 0 handshake layout. Tegra124 keeps
// the same control and status registers for these groups, so boards
// of both generations start from this table.
var Tegra114HotResets = []HotReset{
	{SwgroupAVPC, 0x200, 0x204, 1},
	{SwgroupDC, 0x200, 0x204, 2},
	{SwgroupDCB, 0x200, 0x204, 3},
	{SwgroupEPP, 0x200, 0x204, 4},
	{SwgroupG2, 0x200, 0x204, 5},
	{SwgroupHC, 0x200, 0x204, 6},
	{SwgroupHDA, 0x200, 0x204, 7},
	{SwgroupISP, 0x200, 0x204, 8},
	{SwgroupMPCore, 0x200, 0x204, 9},
	{SwgroupMPCoreLP, 0x200, 0x204, 10},
	{SwgroupMSENC, 0x200, 0x204, 11},
	{SwgroupNV, 0x200, 0x204, 12},
	{SwgroupPPCS, 0x200, 0x204, 14},
	{SwgroupVDE, 0x200, 0x204, 16},
	{SwgroupVI, 0x200, 0x204, 17},
}
