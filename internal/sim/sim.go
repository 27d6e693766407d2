// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package sim is a register level model of PCIe root ports and their
// endpoints. A Platform is an hw.Bus; root ports are added at explicit
// CSR, DBI and MMCFG addresses.
package sim

import "time"

const (
	csrSize = 0x10000
	cfgSize = 0x1000
	busSize = 1 << 20
	allOnes = ^uint32(0)
)

// Clock is a virtual hw.Clock; Sleep only advances time.
type Clock struct {
	start, now time.Time
}

func NewClock() *Clock {
	t := time.Unix(0, 0)
	return &Clock{start: t, now: t}
}

func (c *Clock) Now() time.Time                  { return c.now }
func (c *Clock) Sleep(d time.Duration)           { c.now = c.now.Add(d) }
func (c *Clock) Elapsed() time.Duration          { return c.now.Sub(c.start) }
func (c *Clock) Since(t time.Time) time.Duration { return c.now.Sub(t) }

type Platform struct {
	Clock *Clock

	mem   map[uint64]uint32
	ro    map[uint64]bool
	mmcfg map[uint64]bool
	ports []*Port
}

func New() *Platform {
	return &Platform{
		Clock: NewClock(),
		mem:   make(map[uint64]uint32),
		ro:    make(map[uint64]bool),
		mmcfg: make(map[uint64]bool),
	}
}

// Set presets a plain memory word.
func (p *Platform) Set(addr uint64, v uint32) { p.mem[addr] = v }

// Lock makes a plain memory word ignore writes.
func (p *Platform) Lock(addr uint64) { p.ro[addr] = true }

func (p *Platform) Ports() []*Port { return p.ports }

func (p *Platform) Read32(addr uint64) uint32 {
	for _, pt := range p.ports {
		switch {
		case in(addr, pt.CsrBase, csrSize):
			return pt.readCsr(addr - pt.CsrBase)
		case in(addr, pt.DbiBase, cfgSize):
			return pt.readCfg(addr - pt.DbiBase)
		}
	}
	if base, found := p.behindBridge(addr); found {
		o := addr - base
		if o%busSize >= cfgSize {
			// only device 0 function 0 behind a root port
			return allOnes
		}
		for _, pt := range p.ports {
			if pt.MmcfgBase == base && pt.owns(o) {
				return pt.readEp(o % busSize)
			}
		}
		return allOnes
	}
	return p.mem[addr]
}

func (p *Platform) Write32(addr uint64, v uint32) {
	for _, pt := range p.ports {
		switch {
		case in(addr, pt.CsrBase, csrSize):
			pt.writeCsr(addr-pt.CsrBase, v)
			return
		case in(addr, pt.DbiBase, cfgSize):
			pt.writeCfg(addr-pt.DbiBase, v)
			return
		}
	}
	if _, found := p.behindBridge(addr); found {
		return
	}
	if !p.ro[addr] {
		p.mem[addr] = v
	}
}

// behindBridge finds the MMCFG window of an address on a bus other than 0.
func (p *Platform) behindBridge(addr uint64) (base uint64, found bool) {
	for base = range p.mmcfg {
		if in(addr, base+busSize, 255*busSize) {
			return base, true
		}
	}
	return 0, false
}

func in(addr, base, size uint64) bool {
	return addr >= base && addr < base+size
}
