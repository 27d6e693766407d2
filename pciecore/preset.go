// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/elib/hw/pci"
)

// Largest TX preset number defined for 8 and 16 GT/s.
const maxPreset = 10

// ConfigurePresetGen3 selects 8 GT/s equalization and programs the lane
// pair presets of controller idx of root complex i. A missing Secondary
// PCIe capability leaves silicon defaults in place.
func (s *Subsystem) ConfigurePresetGen3(i, idx int) error {
	rc, c, err := s.controller(i, idx)
	if err != nil {
		return err
	}
	return s.presetGen3(rc, c, s.dbi(c))
}

// ConfigurePresetGen4 is the 16 GT/s counterpart using the Physical Layer
// 16 GT/s capability.
func (s *Subsystem) ConfigurePresetGen4(i, idx int) error {
	rc, c, err := s.controller(i, idx)
	if err != nil {
		return err
	}
	return s.presetGen4(rc, c, s.dbi(c))
}

func (s *Subsystem) presetGen3(rc *RootComplex, c *Controller, dbi pci.Config) error {
	usp := uint32(gen3UspPresetDflt)
	if p := rc.Gen3Preset[c.Index]; p <= maxPreset {
		usp = uint32(p)
	}

	x := dbi.Read32(uint64(GEN3_RELATED))
	x = gen3RateShadowSel.Set(x, 0)
	x = gen3EqPhase23Bypass.Set(x, 0)
	x = gen3EqDisable.Set(x, 0)
	dbi.Write32(uint64(GEN3_RELATED), x)
	x = dbi.Read32(uint64(GEN3_EQ_CONTROL))
	x = gen3EqFbMode.Set(x, 0)
	x = gen3EqPsetReqVec.Set(x, 1<<usp)
	dbi.Write32(uint64(GEN3_EQ_CONTROL), x)

	o, found := pci.FindExtCap(dbi, pci.SecondaryPCIe)
	if !found {
		log.Printf("warn", "%v: no secondary pcie capability, gen3 presets not set", c)
		return fmt.Errorf("%v: secondary pcie: %w", c, ErrCapNotFound)
	}
	lane := laneEqDspPreset.Value(gen3DspPreset) | laneEqUspPreset.Value(usp)
	n := int(c.MaxWidth) / 2
	if n < 1 {
		n = 1
	}
	for r := 0; r < n; r++ {
		dbi.Write32(uint64(o+secPCIeLaneEq)+uint64(4*r), lane|lane<<16)
	}
	return nil
}

func (s *Subsystem) presetGen4(rc *RootComplex, c *Controller, dbi pci.Config) error {
	v := uint32(gen4PresetDflt)
	if p := rc.Gen4Preset[c.Index]; p != PresetInvalid {
		v = uint32(p)
	}

	x := dbi.Read32(uint64(GEN3_RELATED))
	x = gen3RateShadowSel.Set(x, 1)
	x = gen3EqPhase23Bypass.Set(x, 1)
	x = gen3EqDisable.Set(x, 0)
	dbi.Write32(uint64(GEN3_RELATED), x)
	x = dbi.Read32(uint64(GEN3_EQ_CONTROL))
	x = gen3EqFbMode.Set(x, 0)
	x = gen3EqPsetReqVec.Set(x, 1<<(v&0xf))
	dbi.Write32(uint64(GEN3_EQ_CONTROL), x)

	o, found := pci.FindExtCap(dbi, pci.PhysicalLayer16G)
	if !found {
		log.Printf("warn", "%v: no 16GT/s capability, gen4 presets not set", c)
		return fmt.Errorf("%v: pl16g: %w", c, ErrCapNotFound)
	}
	n := int(c.MaxWidth) / 4
	if n < 1 {
		n = 1
	}
	for r := 0; r < n; r++ {
		dbi.Write32(uint64(o+pl16gLaneEq)+uint64(4*r), v*0x01010101)
	}
	return nil
}
