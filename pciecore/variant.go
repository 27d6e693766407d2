// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"fmt"
	"sort"
)

// RasDesGroup is one RAS-DES event counter group.
type RasDesGroup struct {
	ID      uint8
	Events  uint8
	PerLane bool
}

// Variant describes the differences between silicon generations. One
// engine drives every variant.
type Variant struct {
	Name     string
	Revision uint8
	VendorID uint16
	// Root port device id is the base for the root complex type plus the
	// controller index.
	DeviceID [2]uint16
	MaxGen   Gen
	// Errata returns the errata that apply to a root complex.
	Errata       func(v *Variant, rc *RootComplex) Errata
	RasDesGroups []RasDesGroup
	// AMBA link timeout periods before and after the link is validated.
	LinkTimeoutBringUp   uint8
	LinkTimeoutOperating uint8
}

const (
	RevA0 = 0
	RevA1 = 1
)

var dwcRasDesGroups = []RasDesGroup{
	{ID: 0, Events: 8, PerLane: true},
	{ID: 1, Events: 11, PerLane: false},
	{ID: 2, Events: 8, PerLane: false},
	{ID: 3, Events: 6, PerLane: false},
}

var VariantAltra = &Variant{
	Name:     "altra",
	Revision: RevA0,
	VendorID: 0x1def,
	DeviceID: [2]uint16{TypeA: 0xe100, TypeB: 0xe110},
	MaxGen:   Gen4,
	Errata: func(v *Variant, rc *RootComplex) (e Errata) {
		e = ErrataRASMitigation
		if rc.Type == TypeB && v.Revision == RevA0 {
			e |= ErrataSpeed1
		}
		return
	},
	RasDesGroups:         dwcRasDesGroups,
	LinkTimeoutBringUp:   1,
	LinkTimeoutOperating: linkTimeoutOperating,
}

var VariantAltraMax = &Variant{
	Name:     "altramax",
	Revision: RevA1,
	VendorID: 0x1def,
	DeviceID: [2]uint16{TypeA: 0xe200, TypeB: 0xe210},
	MaxGen:   Gen4,
	Errata:   func(*Variant, *RootComplex) Errata { return 0 },
	RasDesGroups: append(append([]RasDesGroup{}, dwcRasDesGroups...),
		RasDesGroup{ID: 4, Events: 4, PerLane: true},
		RasDesGroup{ID: 5, Events: 2, PerLane: false}),
	LinkTimeoutBringUp:   1,
	LinkTimeoutOperating: linkTimeoutOperating,
}

var variants = map[string]*Variant{
	VariantAltra.Name:    VariantAltra,
	VariantAltraMax.Name: VariantAltraMax,
}

func VariantByName(name string) (*Variant, error) {
	if v, found := variants[name]; found {
		return v, nil
	}
	return nil, fmt.Errorf("%s: unknown variant; want one of %v",
		name, VariantNames())
}

func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *Variant) String() string { return v.Name }

func (v *Variant) deviceID(t Type, idx int) uint16 {
	return v.DeviceID[t] + uint16(idx)
}
