// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package board

import (
	"fmt"
	"sync"

	"github.com/platinasystems/gpio"
	"github.com/platinasystems/i2c"
	"github.com/platinasystems/rclink/internal/sim"
	"github.com/platinasystems/rclink/pciecore"
)

// DefaultPerstPinFormat names the active low PERST# pin of socket, root
// complex and controller.
const DefaultPerstPinFormat = "PCIE_S%d_RC%d_C%d_PERST_L"

// GpioPerst drives PERST# through pins of the gpio pin map.
type GpioPerst struct {
	// Defaults to DefaultPerstPinFormat.
	PinFormat string
}

func (g *GpioPerst) pinName(socket, rc, ctl int) string {
	format := g.PinFormat
	if format == "" {
		format = DefaultPerstPinFormat
	}
	return fmt.Sprintf(format, socket, rc, ctl)
}

func (g *GpioPerst) SetPerst(socket, rc, ctl int, high bool) error {
	name := g.pinName(socket, rc, ctl)
	pin, found := gpio.Pins[name]
	if !found {
		return fmt.Errorf("%s: not found", name)
	}
	if err := pin.SetValue(high); err != nil {
		return fmt.Errorf("%s: %v", name, err)
	}
	return nil
}

// CPLD PERST# registers: one per root complex, a bit per controller,
// set is released.
const cpldPerstBase = 0x20

// CpldPerst drives PERST# through registers of a board CPLD on i2c.
type CpldPerst struct {
	Bus  int
	Addr int

	mu sync.Mutex
	do func(rw i2c.RW, reg uint8, data *i2c.SMBusData) error
}

func (c *CpldPerst) i2cDo(rw i2c.RW, reg uint8, data *i2c.SMBusData) (err error) {
	if c.do != nil {
		return c.do(rw, reg, data)
	}
	var bus i2c.Bus
	if err = bus.Open(c.Bus); err != nil {
		return
	}
	defer bus.Close()
	if err = bus.ForceSlaveAddress(c.Addr); err != nil {
		return
	}
	return bus.Do(rw, reg, i2c.ByteData, data)
}

func cpldPerstReg(socket, rc int) uint8 {
	return uint8(cpldPerstBase + socket*pciecore.MaxRootComplexes + rc)
}

func (c *CpldPerst) SetPerst(socket, rc, ctl int, high bool) error {
	var data i2c.SMBusData
	reg := cpldPerstReg(socket, rc)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.i2cDo(i2c.Read, reg, &data); err != nil {
		return fmt.Errorf("cpld 0x%x.%x: %v", c.Addr, reg, err)
	}
	if high {
		data[0] |= 1 << uint(ctl)
	} else {
		data[0] &^= 1 << uint(ctl)
	}
	if err := c.i2cDo(i2c.Write, reg, &data); err != nil {
		return fmt.Errorf("cpld 0x%x.%x: %v", c.Addr, reg, err)
	}
	return nil
}

// SimPerst drives the PERST# of simulated root ports.
type SimPerst struct {
	ports map[[3]int]*sim.Port
}

// Populate adds a simulated root port with endpoint ep behind every
// active controller of s, which must be initialized with plat as its bus.
func (sp *SimPerst) Populate(plat *sim.Platform, s *pciecore.Subsystem, ep sim.Endpoint) {
	if sp.ports == nil {
		sp.ports = make(map[[3]int]*sim.Port)
	}
	for i := range s.RC {
		rc := &s.RC[i]
		if !rc.Active {
			continue
		}
		for _, c := range rc.Controllers() {
			if !c.Active {
				continue
			}
			e := ep
			sp.ports[[3]int{rc.Socket, rc.ID, c.Index}] =
				plat.AddPort(c.CsrBase, c.DbiBase, rc.MmcfgBase, &e,
					sim.Faults{})
		}
	}
}

func (sp *SimPerst) Port(socket, rc, ctl int) *sim.Port {
	return sp.ports[[3]int{socket, rc, ctl}]
}

func (sp *SimPerst) SetPerst(socket, rc, ctl int, high bool) error {
	pt := sp.Port(socket, rc, ctl)
	if pt == nil {
		return fmt.Errorf("%v pcie%d: no port", Key{socket, rc}, ctl)
	}
	pt.SetPerst(high)
	return nil
}
