// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/elib/hw/pci"
)

// rasDes is the RAS-DES event counter block of a root port.
type rasDes struct {
	cfg pci.Config
	o   pci.Offset
}

func findRasDes(cfg pci.Config) (r rasDes, found bool) {
	r.cfg = cfg
	r.o, found = pci.FindVsec(cfg, rasDesVsecID)
	return
}

func (r rasDes) ctrl() uint64 { return uint64(r.o + rasDesEventCtrl) }
func (r rasDes) data() uint64 { return uint64(r.o + rasDesEventData) }

func (r rasDes) enableAll() {
	x := r.cfg.Read32(r.ctrl())
	x = rasDesClear.Set(x, 0)
	x = rasDesEnable.Set(x, rasDesAllOn)
	r.cfg.Write32(r.ctrl(), x)
}

func (r rasDes) clearAll() {
	x := r.cfg.Read32(r.ctrl())
	x = rasDesEnable.Set(x, 0)
	x = rasDesClear.Set(x, rasDesClearAll)
	r.cfg.Write32(r.ctrl(), x)
}

// sample reads every event of the groups that aren't per lane and returns
// the number of events with a non-zero count.
func (r rasDes) sample(c *Controller, groups []RasDesGroup) (n int) {
	for _, g := range groups {
		if g.PerLane {
			continue
		}
		for e := uint8(0); e < g.Events; e++ {
			x := r.cfg.Read32(r.ctrl())
			x = rasDesClear.Set(x, 0)
			x = rasDesEnable.Set(x, 0)
			x = rasDesLaneSelect.Set(x, 0)
			x = rasDesGroupSel.Set(x, uint32(g.ID))
			x = rasDesEventSel.Set(x, uint32(e))
			r.cfg.Write32(r.ctrl(), x)
			if v := r.cfg.Read32(r.data()); v != 0 {
				log.Printf("warn", "%v: ras-des group %d event %d: %d",
					c, g.ID, e, v)
				n++
			}
		}
	}
	return
}
