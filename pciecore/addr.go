// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"fmt"

	"github.com/platinasystems/rclink/elib/hw/pci"
)

const (
	socketStride = 0x400000000000

	mmioSize     = 0x3ffe0000000
	mmcfgOffset  = 0x3ffe0000000
	csrOffset    = 0x3fff0000000
	ctlCsrStride = 0x10000
	serdesOffset = 0x1000000
	tcuOffset    = 0x4000000
	mmio32Base   = 0x40000000
	mmio32Socket = 0x40000000
	mmio32Size   = 0x8000000
	ioSize       = 0x10000
	rcTypeBFirst = 4
)

// Window base of each root complex in socket 0.
var windowBase = [MaxRootComplexes]uint64{
	0x300000000000,
	0x340000000000,
	0x380000000000,
	0x3c0000000000,
	0x200000000000,
	0x240000000000,
	0x280000000000,
	0x2c0000000000,
}

// newRootComplex lays out the register windows of root complex id of
// socket s and its controllers. rcIndex is its position in Subsystem.RC.
func newRootComplex(s, id, rcIndex int) (rc RootComplex) {
	w := windowBase[id] + uint64(s)*socketStride
	rc.Socket = s
	rc.ID = id
	rc.Type = TypeA
	if id >= rcTypeBFirst {
		rc.Type = TypeB
	}
	rc.Segment = s*MaxRootComplexes + id
	rc.Mmio = Aperture{w, mmioSize}
	rc.MmcfgBase = w + mmcfgOffset
	rc.CsrBase = w + csrOffset
	rc.HbCsrBase = rc.CsrBase
	rc.SerdesBase = rc.CsrBase + serdesOffset
	rc.TcuBase = rc.CsrBase + tcuOffset
	rc.Mmio32 = Aperture{
		mmio32Base + uint64(s)*mmio32Socket + uint64(id)*mmio32Size,
		mmio32Size,
	}
	rc.IO = Aperture{uint64(rc.Segment) * ioSize, ioSize}
	for i := range rc.Ctl {
		c := &rc.Ctl[i]
		c.Index = i
		c.RC = rcIndex
		c.DevNum = uint8(i + 1)
		c.CsrBase = rc.CsrBase + uint64(i+1)*ctlCsrStride
		c.DbiBase = rc.MmcfgBase +
			pci.Address{Dev: c.DevNum}.MmcfgOffset(0)
		c.name = fmt.Sprintf("rc %d.%d pcie%d", s, id, i)
		rc.Gen3Preset[i] = PresetInvalid
		rc.Gen4Preset[i] = PresetInvalid
	}
	return
}
