// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import "github.com/platinasystems/log"

// Controller widths of each device map; type A uses all 16 lanes, each
// half of type B uses 8.
var (
	typeAWidths = [...][4]uint8{
		DevMap1Controller:  {16, 0, 0, 0},
		DevMap2Controllers: {8, 0, 8, 0},
		DevMap3Controllers: {8, 0, 4, 4},
		DevMap4Controllers: {4, 4, 4, 4},
	}
	typeBHalfWidths = [...][4]uint8{
		DevMap1Controller:  {8, 0, 0, 0},
		DevMap2Controllers: {4, 0, 4, 0},
		DevMap3Controllers: {4, 0, 2, 2},
		DevMap4Controllers: {2, 2, 2, 2},
	}
)

func (m DevMap) valid() bool {
	return m >= DevMap1Controller && m <= DevMap4Controllers
}

// defaultDevMap is the smallest map covering the active controllers of
// one half.
func defaultDevMap(ctl []BoardController) DevMap {
	switch {
	case ctl[1].Active:
		return DevMap4Controllers
	case ctl[3].Active:
		return DevMap3Controllers
	case ctl[2].Active:
		return DevMap2Controllers
	}
	return DevMap1Controller
}

// legalWidth rounds w down to a width a controller can train at.
func legalWidth(w uint8) uint8 {
	for _, x := range []uint8{16, 8, 4, 2, 1} {
		if w >= x {
			return x
		}
	}
	return 0
}

func mapWidths(t Type, lo, hi DevMap) (w [MaxControllers]uint8) {
	if t == TypeA {
		copy(w[:4], typeAWidths[lo][:])
		return
	}
	copy(w[:4], typeBHalfWidths[lo][:])
	copy(w[4:], typeBHalfWidths[hi][:])
	return
}

// resolveDevMap chooses the device maps of rc from board parameters,
// replacing auto and invalid requests with the default map.
func resolveDevMap(rc *RootComplex, b *BoardRootComplex) {
	rc.DefaultDevMapLow = defaultDevMap(b.Ctl[:4])
	rc.DefaultDevMapHigh = DevMapAuto
	if rc.Type == TypeB {
		rc.DefaultDevMapHigh = defaultDevMap(b.Ctl[4:])
	}
	pick := func(want, dflt DevMap) DevMap {
		if want == DevMapAuto {
			return dflt
		}
		if !want.valid() {
			log.Printf("warn", "%v: invalid device map %d, using %v",
				rc, want, dflt)
			return dflt
		}
		return want
	}
	rc.DevMapLow = pick(b.DevMapLow, rc.DefaultDevMapLow)
	rc.DevMapHigh = DevMapAuto
	if rc.Type == TypeB {
		rc.DevMapHigh = pick(b.DevMapHigh, rc.DefaultDevMapHigh)
	}
}

// resolveLanes sets Active, MaxWidth and MaxGen of every controller of rc
// from its device maps, board parameters, variant and errata.
func resolveLanes(v *Variant, rc *RootComplex, b *BoardRootComplex) {
	widths := mapWidths(rc.Type, rc.DevMapLow, rc.DevMapHigh)
	for i := range rc.Ctl {
		c := &rc.Ctl[i]
		bc := &b.Ctl[i]
		c.Active = false
		c.MaxWidth = 0
		c.MaxGen = 0
		c.HotPlug = false
		if !rc.Active || i >= rc.Type.Controllers() || !bc.Active {
			continue
		}
		if widths[i] == 0 {
			log.Printf("warn", "%v: not covered by %v/%v, disabled",
				c, rc.DevMapLow, rc.DevMapHigh)
			continue
		}
		w := widths[i]
		if bc.Width != 0 && bc.Width < w {
			w = legalWidth(bc.Width)
		}
		if w == 0 {
			continue
		}
		g := v.MaxGen
		if bc.Gen != 0 && bc.Gen < g {
			g = bc.Gen
		}
		if rc.Errata&ErrataSpeed1 != 0 {
			g = Gen1
		}
		c.Active = true
		c.MaxWidth = w
		c.MaxGen = g
		c.HotPlug = bc.HotPlug
		rc.Gen3Preset[i] = bc.Gen3Preset
		rc.Gen4Preset[i] = bc.Gen4Preset
	}
}

// needsRASMitigation is true for every controller except the x16 root port
// of a type A root complex.
func needsRASMitigation(rc *RootComplex, idx int) bool {
	if rc.Errata&ErrataRASMitigation == 0 {
		return false
	}
	return !(rc.Type == TypeA && idx == 0 && rc.Ctl[idx].MaxWidth == 16)
}
