// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"fmt"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/elib/hw"
	"github.com/platinasystems/rclink/elib/hw/pci"
	"github.com/platinasystems/rclink/elib/hw/pcie"
)

const (
	resetSettle       = 50 * time.Millisecond
	resetRelease      = time.Microsecond
	memReadyTimeout   = 10 * time.Microsecond
	memReadyInterval  = time.Microsecond
	pipeClockTimeout  = 20 * time.Millisecond
	pipeClockInterval = 100 * time.Microsecond
)

func (s *Subsystem) csr(c *Controller) hw.Block {
	return hw.Block{Bus: s.Bus, Base: c.CsrBase}
}

func (s *Subsystem) dbi(c *Controller) pci.Config {
	return pci.Block{Bus: s.Bus, Base: c.DbiBase}
}

func cfgOr(c pci.Config, o pci.Offset, f hw.Field) {
	c.Write32(uint64(o), c.Read32(uint64(o))|f.Mask())
}

func cfgAndNot(c pci.Config, o pci.Offset, f hw.Field) {
	c.Write32(uint64(o), c.Read32(uint64(o))&^f.Mask())
}

func cfgUpdate(c pci.Config, o pci.Offset, f hw.Field, v uint32) {
	c.Write32(uint64(o), f.Set(c.Read32(uint64(o)), v))
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// SetupRootComplex configures every active controller of root complex i
// in ascending order, after programming its host bridge. With reinit,
// only controller reinitIndex is configured.
func (s *Subsystem) SetupRootComplex(i int, reinit bool, reinitIndex int) error {
	rc, err := s.rootComplex(i)
	if err != nil {
		return err
	}
	if !rc.Active {
		return fmt.Errorf("%v: %w", rc, ErrInactive)
	}
	if reinit {
		_, c, err := s.controller(i, reinitIndex)
		if err != nil {
			return err
		}
		if !c.Active {
			return fmt.Errorf("%v: %w", c, ErrInactive)
		}
		if err = s.setupController(rc, c); err != nil {
			return fmt.Errorf("%v: %w", c, err)
		}
		return nil
	}
	if err = s.setupHostBridge(i, rc); err != nil {
		return fmt.Errorf("%v: %w", rc, err)
	}
	for idx := 0; idx < rc.Type.Controllers(); idx++ {
		c := &rc.Ctl[idx]
		if !c.Active {
			continue
		}
		if err = s.setupController(rc, c); err != nil {
			return fmt.Errorf("%v: %w", c, err)
		}
		log.Printf("info", "%v: configured x%d %v", c, c.MaxWidth,
			c.MaxGen)
	}
	return nil
}

// setupHostBridge programs the device map. If the hardware doesn't take
// it, the root complex falls back to the map the hardware reports.
func (s *Subsystem) setupHostBridge(i int, rc *RootComplex) error {
	hb := hw.Block{Bus: s.Bus, Base: rc.HbCsrBase}
	want := hbDevMapLow.Set(HBPDMR.Get(hb), uint32(rc.DevMapLow-1))
	if rc.Type == TypeB {
		want = hbDevMapHigh.Set(want, uint32(rc.DevMapHigh-1))
	}
	HBPDMR.Set(hb, want)
	got := HBPDMR.Get(hb)
	if got == want {
		return nil
	}
	lo := DevMap(hbDevMapLow.Get(got) + 1)
	hi := DevMapAuto
	if rc.Type == TypeB {
		hi = DevMap(hbDevMapHigh.Get(got) + 1)
	}
	if !lo.valid() || (rc.Type == TypeB && !hi.valid()) {
		return fmt.Errorf("%w: device map reads 0x%x", ErrDevice, got)
	}
	log.Printf("warn", "%v: device map %v/%v not taken, using %v/%v",
		rc, rc.DevMapLow, rc.DevMapHigh, lo, hi)
	rc.DevMapLow, rc.DevMapHigh = lo, hi
	resolveLanes(s.Variant, rc, &s.boards[i])
	return nil
}

func (s *Subsystem) setupController(rc *RootComplex, c *Controller) error {
	csr := s.csr(c)
	dbi := s.dbi(c)

	if !resetDwcpcie.IsSet(RESET.Get(csr)) {
		RESET.Or(csr, resetDwcpcie.Mask())
		s.Clock.Sleep(resetSettle)
	}

	RAMSDR.AndNot(csr, ramsdrSd.Mask())
	if err := hw.PollUntil(s.Clock, memReadyTimeout, memReadyInterval,
		func() bool {
			return memrdyReady.IsSet(MEMRDY.Get(csr))
		}); err != nil {
		return fmt.Errorf("%w: memory ready: %v", ErrDevice, err)
	}

	LINKCTRL.AndNot(csr, linkctrlLtssm.Mask())

	CLOCK.Or(csr, clockAxipipe.Mask())
	RESET.AndNot(csr, resetDwcpcie.Mask())
	s.Clock.Sleep(resetRelease)

	if err := hw.PollUntil(s.Clock, pipeClockTimeout, pipeClockInterval,
		func() bool {
			return pipestatStable.IsSet(PIPESTAT.Get(csr))
		}); err != nil {
		return fmt.Errorf("%w: pipe clock: %v", ErrDevice, err)
	}

	if err := s.Board.Perst(rc.Socket, rc.ID, c.Index, false); err != nil {
		return fmt.Errorf("%w: perst: %v", ErrDevice, err)
	}

	cfgOr(dbi, MISC_CONTROL_1, dbiRoWrEn)
	err := s.programPort(rc, c, csr, dbi)
	cfgAndNot(dbi, MISC_CONTROL_1, dbiRoWrEn)
	return err
}

// programPort runs with read-only configuration writes unlocked.
func (s *Subsystem) programPort(rc *RootComplex, c *Controller, csr hw.Block, dbi pci.Config) error {
	pc, found := pcie.Find(dbi)
	if !found {
		return fmt.Errorf("pcie: %w", ErrCapNotFound)
	}

	pc.Update(pcie.SlotCapabilities, pcie.SlotCapHotPlug, b2u(c.HotPlug))
	pc.SetSlotPowerLimit(slotPowerWatts)

	if needsRASMitigation(rc, c.Index) {
		if err := rasMitigation(csr, dbi); err != nil {
			return err
		}
	}

	DTIRPID.Set(csr, uint32(c.DevNum)<<3)
	wl, found := widthLog2[c.MaxWidth]
	if !found {
		return fmt.Errorf("width %d: %w", c.MaxWidth, ErrRange)
	}
	x := pc.Read32(pcie.LinkCapabilities)
	x = pcie.LinkCapWidth.Set(x, linkCapWidth[wl])
	x = pcie.LinkCapSpeed.Set(x, uint32(c.MaxGen))
	x = pcie.LinkCapAspm.Set(x, aspmL0sL1)
	pc.Write32(pcie.LinkCapabilities, x)
	pc.Update(pcie.LinkControl2, pcie.LinkCtl2TargetSpeed, uint32(c.MaxGen))
	cfgUpdate(dbi, PORT_LINK_CTRL, linkCapable, portLinkCapable[wl])
	cfgUpdate(dbi, GEN2_CTRL, gen2NumLanes, uint32(c.MaxWidth))

	cfgUpdate(dbi, FILTER_MASK_2, fltMaskVenMsgDrop, 0)
	cfgOr(dbi, AMBA_ORDERING_CTRL, ambaZeroLenReadFw)
	x = dbi.Read32(uint64(ORDER_RULE_CTRL))
	x = orderNpPassP.Set(x, 1)
	x = orderCplPassP.Set(x, 0)
	dbi.Write32(uint64(ORDER_RULE_CTRL), x)
	x = dbi.Read32(uint64(AMBA_ERROR_RESPONSE_DEFAULT))
	x = ambaErrGlobal.Set(x, ambaErrSlverr)
	x = ambaErrCrs.Set(x, ambaCrsOkayAllOnes)
	dbi.Write32(uint64(AMBA_ERROR_RESPONSE_DEFAULT), x)
	cfgUpdate(dbi, AMBA_LINK_TIMEOUT, ambaLinkTimeoutPeriod,
		uint32(s.Variant.LinkTimeoutBringUp))
	IRQSEL.Update(csr, irqselIntpin, irqselINTA)

	if c.MaxGen > Gen1 {
		s.presetGen3(rc, c, dbi)
	}
	if c.MaxGen > Gen3 {
		s.presetGen4(rc, c, dbi)
	}

	if o, found := pci.FindExtCap(dbi, pci.AdvancedErrorReporting); found {
		r := uint64(o + pcie.AerUncorrectableMask)
		dbi.Write32(r, dbi.Read32(r)|pcie.AerCompletionTimeout.Mask()|
			pcie.AerSurpriseDown.Mask())
	} else {
		log.Printf("warn", "%v: no aer capability", c)
	}

	dbi.Write32(uint64(pci.ClassRevision),
		classBridgePCI<<8|uint32(s.Variant.Revision))
	dbi.Write32(uint64(pci.VendorDeviceID),
		uint32(s.Variant.deviceID(rc.Type, c.Index))<<16|
			uint32(s.Variant.VendorID))

	// The upper half is RW1C status.
	x = pc.Read32(pcie.LinkControl) & 0xffff
	pc.Write32(pcie.LinkControl, x|pcie.LinkCtlCommonClock.Mask())

	if err := s.Board.Perst(rc.Socket, rc.ID, c.Index, true); err != nil {
		return fmt.Errorf("%w: perst: %v", ErrDevice, err)
	}
	LINKCTRL.Or(csr, linkctrlLtssm.Mask())
	if err := s.Board.PerstDone(rc.Socket, rc.ID, c.Index); err != nil {
		return fmt.Errorf("%w: perst: %v", ErrDevice, err)
	}
	return nil
}

func rasMitigation(csr hw.Block, dbi pci.Config) error {
	x := RAMRM.Get(csr)
	x = ramrmRm.Set(x, ramReducedRM)
	x = ramrmRme.Set(x, 1)
	RAMRM.Set(csr, x)

	o, found := pci.FindExtCap(dbi, pci.DataLinkFeature)
	if !found {
		return fmt.Errorf("data link feature: %w", ErrCapNotFound)
	}
	cfgAndNot(dbi, o+dlFeatureCaps, dlScaledFlowControl)
	if dlScaledFlowControl.IsSet(dbi.Read32(uint64(o + dlFeatureCaps))) {
		return fmt.Errorf("%w: scaled flow control won't clear", ErrDevice)
	}

	x = dbi.Read32(uint64(VC0_P_RX_Q_CTRL))
	x = vc0PostedHeaderCredits.Set(x, 1)
	x = vc0PostedDataCredits.Set(x, 1)
	dbi.Write32(uint64(VC0_P_RX_Q_CTRL), x)
	return nil
}
