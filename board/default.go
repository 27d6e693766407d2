// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package board

import "github.com/platinasystems/rclink/pciecore"

type ctl struct {
	idx     int
	width   uint8
	gen     pciecore.Gen
	hotPlug bool
}

func params(lo, hi pciecore.DevMap, ctls ...ctl) pciecore.BoardRootComplex {
	b := pciecore.NewBoardRootComplex()
	b.Active = true
	b.DevMapLow = lo
	b.DevMapHigh = hi
	for _, c := range ctls {
		bc := &b.Ctl[c.idx]
		bc.Active = true
		bc.Width = c.width
		bc.Gen = c.gen
		bc.HotPlug = c.hotPlug
	}
	return b
}

// Default is the two socket reference board.
func Default() Params {
	const (
		auto = pciecore.DevMapAuto
		gen3 = pciecore.Gen3
		gen4 = pciecore.Gen4
	)
	p := Params{
		// riser slots
		{0, 0}: params(pciecore.DevMap1Controller, auto,
			ctl{idx: 0, width: 16, gen: gen4}),
		{0, 1}: params(pciecore.DevMap2Controllers, auto,
			ctl{idx: 0, width: 8, gen: gen4},
			ctl{idx: 2, width: 8, gen: gen4}),
		// NVMe bays
		{0, 2}: params(pciecore.DevMap4Controllers, auto,
			ctl{idx: 0, width: 4, gen: gen4, hotPlug: true},
			ctl{idx: 1, width: 4, gen: gen4, hotPlug: true},
			ctl{idx: 2, width: 4, gen: gen4, hotPlug: true},
			ctl{idx: 3, width: 4, gen: gen4, hotPlug: true}),
		// OCP mezzanine and BMC
		{0, 4}: params(pciecore.DevMap1Controller, pciecore.DevMap3Controllers,
			ctl{idx: 0, width: 8, gen: gen4},
			ctl{idx: 4, width: 4, gen: gen3},
			ctl{idx: 6, width: 1, gen: pciecore.Gen2}),
		{0, 5}: params(auto, auto,
			ctl{idx: 0, gen: gen3},
			ctl{idx: 4, gen: gen3}),

		{1, 0}: params(pciecore.DevMap1Controller, auto,
			ctl{idx: 0, width: 16, gen: gen4}),
		{1, 1}: params(pciecore.DevMap1Controller, auto,
			ctl{idx: 0, width: 16, gen: gen4}),
		{1, 4}: params(pciecore.DevMap2Controllers, pciecore.DevMap2Controllers,
			ctl{idx: 0, width: 4, gen: gen4},
			ctl{idx: 2, width: 4, gen: gen4},
			ctl{idx: 4, width: 4, gen: gen4},
			ctl{idx: 6, width: 4, gen: gen4}),
	}
	// the riser retimer wants preset 5 at 8GT/s
	b := p[Key{0, 0}]
	b.Ctl[0].Gen3Preset = 5
	p[Key{0, 0}] = b
	return p
}
