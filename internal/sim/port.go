// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package sim

// Controller CSR offsets.
const (
	csrReset      = 0x00
	csrClock      = 0x04
	csrRamSdr     = 0x08
	csrMemRdy     = 0x10
	csrPipeStat   = 0x14
	csrLinkCtrl   = 0x18
	csrLinkStat   = 0x1c
	csrBlockEvent = 0x20

	ltssmDetect = 0x01
	ltssmL0     = 0x11
)

// Root port configuration offsets.
const (
	cfgID        = 0x00
	cfgClass     = 0x08
	cfgBus       = 0x18
	cfgCapPtr    = 0x34
	cfgPcieCap   = 0x40
	cfgLinkCap   = cfgPcieCap + 0x0c
	cfgLinkCtl   = cfgPcieCap + 0x10
	cfgSlotCap   = cfgPcieCap + 0x14
	cfgLinkCtl2  = cfgPcieCap + 0x30
	cfgExtCap    = 0x100
	cfgMiscCtl1  = 0x8bc
	extCapStride = 0x40
)

// Extended capability ids.
const (
	extAER     = 0x01
	extVendor  = 0x0b
	extSecPCIe = 0x19
	extDLF     = 0x25
	extPL16G   = 0x26

	rasDesVsecID = 2
)

// Endpoint is the device behind a root port.
type Endpoint struct {
	Width uint8
	Gen   uint8
	// No PCIe capability in the capability list.
	NoPCIeCap bool
	// Configuration reads return all ones even with the link up.
	Invisible bool
}

// Faults injected into a root port.
type Faults struct {
	MemNeverReady   bool
	PipeNeverStable bool
	NoLink          bool

	NoAER          bool
	NoSecPCIe      bool
	NoDLFeature    bool
	NoPL16G        bool
	NoRasDes       bool
	StickyScaledFC bool

	// Root port link status reads all ones once the link is up.
	LinkStatusAllOnes bool

	// The first BadTrainings trainings come up at half width.
	BadTrainings int
	// The first ErrorCounts trainings leave an LCRC error count.
	ErrorCounts int
}

type Port struct {
	CsrBase, DbiBase, MmcfgBase uint64

	// nil is an empty slot
	Endpoint *Endpoint
	Faults

	Trainings    int
	PerstAsserts int

	csr   map[uint64]uint32
	cfg   map[uint64]uint32
	perst bool
	up    bool

	dlf, ras uint64
	rasOn    bool
	counters map[uint32]uint32
}

// AddPort models a root port. Capability faults are fixed at this point;
// the others may be changed later.
func (p *Platform) AddPort(csrBase, dbiBase, mmcfgBase uint64, ep *Endpoint, f Faults) *Port {
	pt := &Port{
		CsrBase:   csrBase,
		DbiBase:   dbiBase,
		MmcfgBase: mmcfgBase,
		Endpoint:  ep,
		Faults:    f,
		csr:       make(map[uint64]uint32),
		cfg:       make(map[uint64]uint32),
		counters:  make(map[uint32]uint32),
	}
	pt.csr[csrReset] = 1
	pt.csr[csrRamSdr] = 1
	pt.cfg[cfgID] = 0xabcd16c3
	pt.cfg[cfgClass] = 0x06040001
	pt.cfg[cfgCapPtr] = cfgPcieCap
	pt.cfg[cfgPcieCap] = 0x00420010
	pt.cfg[cfgLinkCap] = 16<<4 | 4
	pt.cfg[cfgLinkCtl2] = 4
	pt.layoutExtCaps()
	p.ports = append(p.ports, pt)
	p.mmcfg[mmcfgBase] = true
	return pt
}

func (pt *Port) layoutExtCaps() {
	caps := []struct {
		id      uint32
		missing bool
	}{
		{extAER, pt.NoAER},
		{extSecPCIe, pt.NoSecPCIe},
		{extDLF, pt.NoDLFeature},
		{extPL16G, pt.NoPL16G},
		{extVendor, pt.NoRasDes},
	}
	var prev uint64
	o := uint64(cfgExtCap)
	for _, c := range caps {
		if c.missing {
			continue
		}
		pt.cfg[o] = c.id | 1<<16
		if prev != 0 {
			pt.cfg[prev] |= uint32(o) << 20
		}
		switch c.id {
		case extDLF:
			pt.dlf = o
			pt.cfg[o+4] = 0x80000001
		case extVendor:
			pt.ras = o
			pt.cfg[o+4] = rasDesVsecID | 4<<16 | 0x100<<20
		}
		prev = o
		o += extCapStride
	}
}

// SetPerst drives PERST#; high is released.
func (pt *Port) SetPerst(high bool) {
	pt.perst = high
	if high {
		pt.train()
	} else {
		pt.PerstAsserts++
		pt.down()
	}
}

func (pt *Port) Up() bool { return pt.up }

// Cfg reads root port configuration space without side effects.
func (pt *Port) Cfg(o uint64) uint32 { return pt.cfg[o] }

// Csr reads a controller register without side effects.
func (pt *Port) Csr(o uint64) uint32 { return pt.csr[o] }

func (pt *Port) train() {
	ep := pt.Endpoint
	if pt.up || ep == nil || pt.NoLink || !pt.perst ||
		pt.csr[csrLinkCtrl]&1 == 0 || pt.csr[csrReset]&1 != 0 {
		return
	}
	x := pt.cfg[cfgLinkCap]
	width := uint32(min8(uint8(x>>4&0x3f), ep.Width))
	gen := uint32(min8(min8(uint8(x&0xf), uint8(pt.cfg[cfgLinkCtl2]&0xf)),
		ep.Gen))
	if pt.Trainings < pt.BadTrainings && width > 1 {
		width /= 2
	}
	if pt.ErrorCounts > 0 {
		pt.counters[2<<8|1] = 5
		pt.ErrorCounts--
	}
	pt.Trainings++
	pt.up = true
	pt.cfg[cfgLinkCtl] = pt.cfg[cfgLinkCtl]&0xffff | width<<20 | gen<<16
}

func (pt *Port) down() {
	pt.up = false
	pt.cfg[cfgLinkCtl] &= 0xffff
}

func min8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

func (pt *Port) readCsr(o uint64) uint32 {
	switch o {
	case csrMemRdy:
		if pt.csr[csrRamSdr]&1 == 0 && !pt.MemNeverReady {
			return 1
		}
		return 0
	case csrPipeStat:
		if pt.csr[csrClock]&1 != 0 && pt.csr[csrReset]&1 == 0 &&
			!pt.PipeNeverStable {
			return 1
		}
		return 0
	case csrLinkStat:
		switch {
		case pt.up:
			return ltssmL0 | 3<<16
		case pt.csr[csrLinkCtrl]&1 != 0:
			return ltssmDetect
		}
		return 0
	case csrBlockEvent:
		if pt.up {
			return 1
		}
		return 0
	}
	return pt.csr[o]
}

func (pt *Port) writeCsr(o uint64, v uint32) {
	pt.csr[o] = v
	switch o {
	case csrReset:
		if v&1 != 0 {
			pt.down()
		}
	case csrLinkCtrl:
		if v&1 != 0 {
			pt.train()
		} else {
			pt.down()
		}
	}
}

func (pt *Port) readOnly(o uint64) bool {
	switch o {
	case cfgID, cfgClass, cfgLinkCap, cfgSlotCap:
		return pt.cfg[cfgMiscCtl1]&1 == 0
	}
	return false
}

func (pt *Port) readCfg(o uint64) uint32 {
	switch {
	case o == cfgLinkCtl && pt.up && pt.LinkStatusAllOnes:
		return allOnes
	case pt.ras != 0 && o == pt.ras+0xc:
		if !pt.rasOn {
			return 0
		}
		x := pt.cfg[pt.ras+8]
		return pt.counters[x>>24&0xf<<8|x>>16&0xff]
	}
	return pt.cfg[o]
}

func (pt *Port) writeCfg(o uint64, v uint32) {
	if pt.readOnly(o) {
		return
	}
	switch {
	case o == cfgLinkCtl:
		v = pt.cfg[o]&0xffff0000 | v&0xffff
	case pt.dlf != 0 && o == pt.dlf+4 && pt.StickyScaledFC:
		v |= 1
	case pt.ras != 0 && o == pt.ras+8:
		switch v >> 2 & 7 {
		case 7:
			pt.rasOn = true
		case 5:
			pt.rasOn = false
		}
		if v&3 == 3 {
			pt.counters = make(map[uint32]uint32)
		}
		v &^= 0x1f
	}
	pt.cfg[o] = v
}

// owns is true when this port forwards the given MMCFG offset: its
// secondary bus is the target bus and its link is up.
func (pt *Port) owns(o uint64) bool {
	bus := uint32(o / busSize)
	x := pt.cfg[cfgBus]
	return pt.up && x>>8&0xff == bus && bus <= x>>16&0xff
}

func (pt *Port) readEp(o uint64) uint32 {
	ep := pt.Endpoint
	if ep == nil || ep.Invisible {
		return allOnes
	}
	switch o {
	case 0x00:
		return 0xa808144d
	case 0x08:
		return 0x01080200
	case 0x34:
		if ep.NoPCIeCap {
			return 0
		}
		return 0x40
	case 0x40:
		if ep.NoPCIeCap {
			return 0
		}
		return 0x00020010
	case 0x4c:
		return uint32(ep.Width)<<4 | uint32(ep.Gen)
	}
	return 0
}
