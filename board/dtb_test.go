// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package board

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/platinasystems/rclink/pciecore"
)

type dtbProp struct {
	name  string
	value []byte
}

type dtbNode struct {
	name     string
	props    []dtbProp
	children []dtbNode
}

func cells(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint32(b[4*i:], x)
	}
	return b
}

func pad(b *bytes.Buffer) {
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
}

// encodeDTB flattens a version 17 device tree.
func encodeDTB(root dtbNode) []byte {
	var st, strs bytes.Buffer
	offsets := make(map[string]uint32)
	cell := func(v uint32) { binary.Write(&st, binary.BigEndian, v) }
	var node func(n dtbNode)
	node = func(n dtbNode) {
		cell(1)
		st.WriteString(n.name)
		st.WriteByte(0)
		pad(&st)
		for _, p := range n.props {
			o, found := offsets[p.name]
			if !found {
				o = uint32(strs.Len())
				offsets[p.name] = o
				strs.WriteString(p.name)
				strs.WriteByte(0)
			}
			cell(3)
			cell(uint32(len(p.value)))
			cell(o)
			st.Write(p.value)
			pad(&st)
		}
		for _, c := range n.children {
			node(c)
		}
		cell(2)
	}
	node(root)
	cell(9)

	const hdr, rsv = 40, 16
	h := []uint32{
		0xd00dfeed,
		uint32(hdr + rsv + st.Len() + strs.Len()),
		hdr + rsv,
		uint32(hdr + rsv + st.Len()),
		hdr,
		17,
		16,
		0,
		uint32(strs.Len()),
		uint32(st.Len()),
	}
	var b bytes.Buffer
	b.Write(cells(h...))
	b.Write(make([]byte, rsv))
	b.Write(st.Bytes())
	b.Write(strs.Bytes())
	return b.Bytes()
}

func rcNode(name string, props ...dtbProp) dtbNode {
	return dtbNode{
		name:  name,
		props: append([]dtbProp{{RootComplexProperty, nil}}, props...),
	}
}

func u32(name string, v ...uint32) dtbProp { return dtbProp{name, cells(v...)} }

func TestLoadDTB(t *testing.T) {
	root := dtbNode{
		props: []dtbProp{{"model", []byte("ref\x00")}},
		children: []dtbNode{
			{name: "soc", children: []dtbNode{
				rcNode("pcie@0",
					u32("socket", 0), u32("rc", 0),
					u32("active", 0x1),
					u32("dev-map-low", 1),
					u32("lane-width", 16),
					u32("max-gen", 3),
					u32("gen3-preset", 6)),
				rcNode("pcie@5",
					u32("socket", 1), u32("rc", 5),
					u32("active", 0x51),
					u32("dev-map-low", 0), u32("dev-map-high", 3),
					u32("errata", uint32(pciecore.ErrataSpeed1)),
					u32("lane-width", 8, 0, 0, 0, 4, 0, 2),
					u32("gen4-preset", 0xff, 0, 0, 0, 0x57),
					u32("hot-plug", 0, 0, 0, 0, 1)),
				rcNode("pcie@6",
					u32("socket", 1), u32("rc", 6)),
			}},
			{name: "gpio@1", props: []dtbProp{{"gpio-controller", nil}}},
		},
	}
	p, err := LoadDTB(encodeDTB(root))
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 3 {
		t.Fatal("wrong:", len(p))
	}
	a := p[Key{0, 0}]
	if !a.Active || a.DevMapLow != pciecore.DevMap1Controller ||
		!a.Ctl[0].Active || a.Ctl[1].Active ||
		a.Ctl[0].Width != 16 || a.Ctl[0].Gen != pciecore.Gen3 ||
		a.Ctl[0].Gen3Preset != 6 ||
		a.Ctl[0].Gen4Preset != pciecore.PresetInvalid {
		t.Errorf("wrong: %+v", a)
	}
	b := p[Key{1, 5}]
	if !b.Active || b.DevMapLow != pciecore.DevMapAuto ||
		b.DevMapHigh != pciecore.DevMap3Controllers ||
		b.Errata != pciecore.ErrataSpeed1 {
		t.Errorf("wrong: %+v", b)
	}
	for i, want := range []bool{true, false, false, false, true, false, true, false} {
		if b.Ctl[i].Active != want {
			t.Error("wrong: pcie", i, b.Ctl[i].Active)
		}
	}
	if b.Ctl[4].Width != 4 || !b.Ctl[4].HotPlug || b.Ctl[4].Gen4Preset != 0x57 ||
		b.Ctl[0].Gen4Preset != pciecore.PresetInvalid || b.Ctl[6].Width != 2 {
		t.Errorf("wrong: %+v", b.Ctl)
	}
	if c := p[Key{1, 6}]; c.Active {
		t.Errorf("wrong: %+v", c)
	}
}

func TestLoadDTBErrors(t *testing.T) {
	for _, x := range []struct {
		name string
		rc   dtbNode
	}{
		{"no socket", rcNode("pcie@0", u32("rc", 0))},
		{"socket range", rcNode("pcie@0", u32("socket", 2), u32("rc", 0))},
		{"rc range", rcNode("pcie@0", u32("socket", 0), u32("rc", 8))},
		{"two cells", rcNode("pcie@0", u32("socket", 0, 1), u32("rc", 0))},
		{"long array", rcNode("pcie@0", u32("socket", 0), u32("rc", 0),
			u32("max-gen", 1, 2, 3, 4, 1, 2, 3, 4, 1))},
		{"short cell", rcNode("pcie@0", u32("socket", 0), u32("rc", 0),
			dtbProp{"lane-width", []byte{0, 4}})},
	} {
		b := encodeDTB(dtbNode{children: []dtbNode{x.rc}})
		if _, err := LoadDTB(b); !errors.Is(err, ErrDTB) {
			t.Error("wrong:", x.name, err)
		}
	}
	dup := encodeDTB(dtbNode{children: []dtbNode{
		rcNode("a", u32("socket", 0), u32("rc", 1)),
		rcNode("b", u32("socket", 0), u32("rc", 1)),
	}})
	if _, err := LoadDTB(dup); !errors.Is(err, ErrDTB) {
		t.Error("wrong: duplicate", err)
	}
	if _, err := LoadDTB([]byte("not a device tree, not at all......")); !errors.Is(err, ErrDTB) {
		t.Error("wrong:", err)
	}
	b := encodeDTB(dtbNode{children: []dtbNode{
		rcNode("a", u32("socket", 0), u32("rc", 1)),
	}})
	if _, err := LoadDTB(b[:60]); !errors.Is(err, ErrDTB) {
		t.Error("wrong: truncated", err)
	}
}
