// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/elib/hw"
	"github.com/platinasystems/rclink/elib/hw/pci"
	"github.com/platinasystems/rclink/elib/hw/pcie"
)

const (
	MaxResets        = 3
	LinkUpPollCycles = 5

	linkUpPollTimeout  = 20 * time.Millisecond
	linkUpPollInterval = time.Millisecond
	linkUpPollGap      = 100 * time.Millisecond
	epVisibleTimeout   = 20 * time.Millisecond
	epVisibleInterval  = time.Millisecond
	linkCheckSettle    = 100 * time.Millisecond
)

// The bus behind a root port while its endpoint is probed.
const epBus = 1

func (s *Subsystem) linkUp(c *Controller) bool {
	csr := s.csr(c)
	x := LINKSTAT.Get(csr)
	return x != 0 &&
		blockeventLinkUp.IsSet(BLOCKEVENTSTAT.Get(csr)) &&
		linkstatLtssm.Get(x) == ltssmL0
}

// UpdateLink sweeps every active controller waiting for link up. Those
// that are up are validated, and recovered if validation fails; the rest
// are listed for re-init. It returns the number still waiting.
func (s *Subsystem) UpdateLink() (pending int) {
	for i := range s.RC {
		rc := &s.RC[i]
		if rc.failed == nil {
			rc.failed = make([]int, 0, MaxControllers)
		}
		rc.failed = rc.failed[:0]
		if !rc.Active {
			continue
		}
		for idx := 0; idx < rc.Type.Controllers(); idx++ {
			c := &rc.Ctl[idx]
			if !c.Active || c.State != WaitingLinkUp {
				continue
			}
			if !s.linkUp(c) {
				rc.failed = append(rc.failed, idx)
				pending++
				continue
			}
			c.LinkUp = true
			s.setState(rc, c, Validating)
			if r := s.LinkCheck(i, idx); r == LinkCheckOK {
				s.setState(rc, c, Healthy)
				log.Printf("note", "%v: link up x%d %v", c,
					c.CurWidth, c.CurGen)
			} else {
				log.Printf("warn", "%v: link check %v", c, r)
				s.recover(i, rc, c)
			}
		}
	}
	return
}

// LinkCheck validates the trained link of controller idx of root complex
// i against its endpoint and the RAS-DES error counters.
func (s *Subsystem) LinkCheck(i, idx int) LinkCheckResult {
	rc, c, err := s.controller(i, idx)
	if err != nil || !c.Active {
		return LinkCheckWrongParameter
	}
	dbi := s.dbi(c)
	pc, found := pcie.Find(dbi)
	if !found {
		log.Printf("err", "%v: no pcie capability", c)
		c.LinkUp = false
		return LinkCheckWrongParameter
	}
	ras, found := findRasDes(dbi)
	if !found {
		log.Printf("err", "%v: no ras-des capability", c)
		c.LinkUp = false
		return LinkCheckWrongParameter
	}
	ras.enableAll()

	c.EpMaxWidth, c.EpMaxGen = s.endpointCaps(rc, c)
	wantWidth, wantGen := c.MaxWidth, c.MaxGen
	if c.EpMaxWidth < wantWidth {
		wantWidth = c.EpMaxWidth
	}
	if c.EpMaxGen < wantGen {
		wantGen = c.EpMaxGen
	}

	s.Clock.Sleep(linkCheckSettle)
	nerr := ras.sample(c, s.Variant.RasDesGroups)
	ras.clearAll()

	x := pc.Read32(pcie.LinkControl)
	if x == pci.NotPresent {
		s.Fatal("%v: link status reads all ones", c)
		c.LinkUp = false
		return LinkCheckFailed
	}
	st := pcie.DecodeLinkStatus(x)
	switch {
	case c.EpMaxWidth == 0 || c.EpMaxGen == 0:
		log.Printf("warn", "%v: no endpoint capabilities", c)
	case st.Width != wantWidth || Gen(st.Speed) != wantGen:
		log.Printf("warn", "%v: trained %v, want x%d %v", c, st,
			wantWidth, wantGen)
	case nerr != 0:
		log.Printf("warn", "%v: %d error counters", c, nerr)
	case !s.linkUp(c):
		log.Printf("warn", "%v: link dropped", c)
	default:
		if o, found := pci.FindExtCap(dbi, pci.AdvancedErrorReporting); found {
			cfgAndNot(dbi, o+pcie.AerUncorrectableMask,
				pcie.AerCompletionTimeout)
		}
		cfgUpdate(dbi, AMBA_LINK_TIMEOUT, ambaLinkTimeoutPeriod,
			uint32(s.Variant.LinkTimeoutOperating))
		c.CurWidth = st.Width
		c.CurGen = Gen(st.Speed)
		return LinkCheckOK
	}
	c.LinkUp = false
	return LinkCheckFailed
}

// endpointCaps reads the link capabilities of the endpoint behind c. The
// root port bus numbers are restored on return.
func (s *Subsystem) endpointCaps(rc *RootComplex, c *Controller) (width uint8, gen Gen) {
	dbi := s.dbi(c)
	saved := dbi.Read32(uint64(pci.BusNumbers))
	defer dbi.Write32(uint64(pci.BusNumbers), saved)

	x := pci.PrimaryBus.Set(saved, 0)
	x = pci.SecondaryBus.Set(x, epBus)
	x = pci.SubordinateBus.Set(x, epBus)
	dbi.Write32(uint64(pci.BusNumbers), x)

	ep := pci.Block{
		Bus:  s.Bus,
		Base: rc.MmcfgBase + pci.Address{Bus: epBus}.MmcfgOffset(0),
	}
	if err := hw.PollUntil(s.Clock, epVisibleTimeout, epVisibleInterval,
		func() bool {
			return ep.Read32(uint64(pci.VendorDeviceID)) != pci.NotPresent
		}); err != nil {
		log.Printf("warn", "%v: endpoint not visible", c)
		return
	}
	pc, found := pcie.Find(ep)
	if !found {
		log.Printf("warn", "%v: endpoint has no pcie capability", c)
		return
	}
	x = pc.Read32(pcie.LinkCapabilities)
	width = uint8(pcie.LinkCapWidth.Get(x))
	gen = Gen(pcie.LinkCapSpeed.Get(x))
	return
}

// recover soft resets c until it validates or MaxResets is spent; a
// controller that runs out is Failed for good.
func (s *Subsystem) recover(i int, rc *RootComplex, c *Controller) {
	for c.Resets < MaxResets {
		c.Resets++
		c.LinkUp = false
		s.setState(rc, c, Recovering)
		log.Printf("warn", "%v: soft reset %d of %d", c, c.Resets,
			MaxResets)
		if err := s.SetupRootComplex(i, true, c.Index); err != nil {
			log.Print("err", err)
			continue
		}
		s.setState(rc, c, WaitingLinkUp)
		if !s.waitLinkUp(c) {
			continue
		}
		c.LinkUp = true
		s.setState(rc, c, Validating)
		if s.LinkCheck(i, c.Index) == LinkCheckOK {
			s.setState(rc, c, Healthy)
			log.Printf("note", "%v: link up x%d %v after %d resets", c,
				c.CurWidth, c.CurGen, c.Resets)
			return
		}
	}
	c.LinkUp = false
	s.setState(rc, c, Failed)
	log.Printf("err", "%v: failed after %d resets", c, c.Resets)
}

func (s *Subsystem) waitLinkUp(c *Controller) bool {
	for cycle := 0; cycle < LinkUpPollCycles; cycle++ {
		if cycle > 0 {
			s.Clock.Sleep(linkUpPollGap)
		}
		if hw.PollUntil(s.Clock, linkUpPollTimeout, linkUpPollInterval,
			func() bool { return s.linkUp(c) }) == nil {
			return true
		}
	}
	return false
}
