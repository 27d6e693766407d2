// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/elib/hw/pci"
)

// SetupRootBridge fully initializes root complex i. On error the root
// complex is deactivated and left out of Finalize.
func (s *Subsystem) SetupRootBridge(i int) error {
	rc, err := s.rootComplex(i)
	if err != nil {
		return err
	}
	if !rc.Active {
		return fmt.Errorf("%v: %w", rc, ErrInactive)
	}
	if err = s.SetupRootComplex(i, false, 0); err != nil {
		log.Print("err", err)
		if derr := s.deactivate(i); derr != nil {
			log.Print("err", derr)
		}
		return err
	}
	for idx := 0; idx < rc.Type.Controllers(); idx++ {
		c := &rc.Ctl[idx]
		if c.Active {
			c.LinkUp = false
			c.CurWidth, c.CurGen = 0, 0
			s.setState(rc, c, WaitingLinkUp)
		}
	}
	return nil
}

// SetupRootBridges sets up every active root complex and returns the
// number that succeeded.
func (s *Subsystem) SetupRootBridges() (n int) {
	for i := range s.RC {
		if s.RC[i].Active && s.SetupRootBridge(i) == nil {
			n++
		}
	}
	return
}

func (s *Subsystem) Apertures(i int) (a Apertures, err error) {
	rc, err := s.rootComplex(i)
	if err != nil {
		return
	}
	if !rc.Active {
		err = fmt.Errorf("%v: %w", rc, ErrInactive)
		return
	}
	a = Apertures{
		IO:       rc.IO,
		Mmio32:   rc.Mmio32,
		Mmio64:   rc.Mmio,
		BusStart: 0,
		BusEnd:   0xff,
	}
	return
}

// configAddr translates a host bridge relative address. On bus 0 only the
// root ports of active controllers exist; behind them, only device 0.
func (s *Subsystem) configAddr(i int, a pci.Address, reg uint16) (addr uint64, visible bool, err error) {
	rc, err := s.rootComplex(i)
	if err != nil {
		return
	}
	if !rc.Active {
		err = fmt.Errorf("%v: %w", rc, ErrInactive)
		return
	}
	if reg&3 != 0 || reg > 0xffc || a.Dev > 31 || a.Fn > 7 {
		err = fmt.Errorf("%v %v reg 0x%x: %w", rc, a, reg, ErrRange)
		return
	}
	if a.Bus == 0 {
		idx := int(a.Dev) - 1
		visible = a.Fn == 0 && idx >= 0 && idx < rc.Type.Controllers() &&
			rc.Ctl[idx].Active
	} else {
		visible = a.Dev == 0
	}
	addr = rc.MmcfgBase + a.MmcfgOffset(reg)
	return
}

func (s *Subsystem) ConfigRead32(i int, a pci.Address, reg uint16) (uint32, error) {
	addr, visible, err := s.configAddr(i, a, reg)
	if err != nil || !visible {
		return pci.NotPresent, err
	}
	return s.Bus.Read32(addr), nil
}

func (s *Subsystem) ConfigWrite32(i int, a pci.Address, reg uint16, v uint32) error {
	addr, visible, err := s.configAddr(i, a, reg)
	if err == nil && visible {
		s.Bus.Write32(addr, v)
	}
	return err
}
