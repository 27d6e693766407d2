// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

// BoardController is what a board supplies for one controller slot.
type BoardController struct {
	Active bool
	// Lane width wired on the board; 0 uses the device map width.
	Width uint8
	// 0 uses the variant maximum.
	Gen        Gen
	Gen3Preset uint8
	Gen4Preset uint8
	HotPlug    bool
}

// BoardRootComplex is what a board supplies for one root complex.
type BoardRootComplex struct {
	Active     bool
	DevMapLow  DevMap
	DevMapHigh DevMap
	Errata     Errata
	Ctl        [MaxControllers]BoardController
}

// NewBoardRootComplex returns an inactive root complex with no preset
// overrides.
func NewBoardRootComplex() (b BoardRootComplex) {
	for i := range b.Ctl {
		b.Ctl[i].Gen3Preset = PresetInvalid
		b.Ctl[i].Gen4Preset = PresetInvalid
	}
	return
}

// Board is the board parameter provider.
type Board interface {
	RootComplex(socket, id int) BoardRootComplex
	// Perst drives PERST# of a controller; high is released. The
	// provider holds an asserted PERST# for at least 100ms before a
	// following release.
	Perst(socket, id, ctl int, high bool) error
	// PerstDone completes the release started by Perst(..., true).
	PerstDone(socket, id, ctl int) error
}
