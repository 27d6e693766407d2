// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package board

import (
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/rclink/pciecore"
)

// Nodes with this property describe one root complex.
const RootComplexProperty = "platina,pcie-rc"

const fdtMagic = 0xd00dfeed

var ErrDTB = errors.New("malformed device tree")

// LoadDTBFile reads the root complex parameters of a device tree file.
func LoadDTBFile(name string) (Params, error) {
	b, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, err
	}
	p, err := LoadDTB(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

// LoadDTB reads the root complex parameters of a device tree blob. Each
// root complex node has the u32 properties socket, rc, active (a mask of
// active controllers), dev-map-low, dev-map-high and errata, and the u32
// arrays lane-width, max-gen, gen3-preset, gen4-preset and hot-plug
// indexed by controller.
func LoadDTB(b []byte) (p Params, err error) {
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	if len(b) < 40 || t.PropUint32(b) != fdtMagic {
		return nil, fmt.Errorf("%w: bad header", ErrDTB)
	}
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: %v", ErrDTB, r)
		}
	}()
	if err = t.Parse(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDTB, err)
	}
	p = make(Params)
	t.EachProperty(RootComplexProperty, "",
		func(n *fdt.Node, name, value string) {
			if err == nil {
				err = p.add(props{t, n})
			}
		})
	if err != nil {
		return nil, err
	}
	return p, nil
}

type props struct {
	t *fdt.Tree
	n *fdt.Node
}

func (x props) u32(name string) (v uint32, found bool, err error) {
	b, found := x.n.Properties[name]
	if !found {
		return
	}
	if len(b) != 4 {
		err = fmt.Errorf("%w: %s %s: want one cell", ErrDTB, x.n.Name,
			name)
		return
	}
	v = x.t.PropUint32(b)
	return
}

func (x props) u32s(name string) ([]uint32, error) {
	b := x.n.Properties[name]
	if len(b)%4 != 0 || len(b) > 4*pciecore.MaxControllers {
		return nil, fmt.Errorf("%w: %s %s: bad length %d", ErrDTB,
			x.n.Name, name, len(b))
	}
	return x.t.PropUint32Slice(b), nil
}

func (p Params) add(x props) error {
	var k Key
	for _, f := range []struct {
		name string
		v    *int
		max  int
	}{
		{"socket", &k.Socket, pciecore.MaxSockets},
		{"rc", &k.RC, pciecore.MaxRootComplexes},
	} {
		v, found, err := x.u32(f.name)
		if err != nil {
			return err
		}
		if !found || int(v) >= f.max {
			return fmt.Errorf("%w: %s: %s missing or out of range",
				ErrDTB, x.n.Name, f.name)
		}
		*f.v = int(v)
	}
	if _, dup := p[k]; dup {
		return fmt.Errorf("%w: %v described twice", ErrDTB, k)
	}

	b := pciecore.NewBoardRootComplex()
	mask, _, err := x.u32("active")
	if err != nil {
		return err
	}
	b.Active = mask != 0
	for i := range b.Ctl {
		b.Ctl[i].Active = mask&(1<<uint(i)) != 0
	}
	for _, f := range []struct {
		name string
		set  func(uint32)
	}{
		{"dev-map-low", func(v uint32) { b.DevMapLow = pciecore.DevMap(v) }},
		{"dev-map-high", func(v uint32) { b.DevMapHigh = pciecore.DevMap(v) }},
		{"errata", func(v uint32) { b.Errata = pciecore.Errata(v) }},
	} {
		v, found, err := x.u32(f.name)
		if err != nil {
			return err
		}
		if found {
			f.set(v)
		}
	}
	for _, f := range []struct {
		name string
		set  func(c *pciecore.BoardController, v uint32)
	}{
		{"lane-width", func(c *pciecore.BoardController, v uint32) {
			c.Width = uint8(v)
		}},
		{"max-gen", func(c *pciecore.BoardController, v uint32) {
			c.Gen = pciecore.Gen(v)
		}},
		{"gen3-preset", func(c *pciecore.BoardController, v uint32) {
			c.Gen3Preset = uint8(v)
		}},
		{"gen4-preset", func(c *pciecore.BoardController, v uint32) {
			c.Gen4Preset = uint8(v)
		}},
		{"hot-plug", func(c *pciecore.BoardController, v uint32) {
			c.HotPlug = v != 0
		}},
	} {
		vs, err := x.u32s(f.name)
		if err != nil {
			return err
		}
		for i, v := range vs {
			f.set(&b.Ctl[i], v)
		}
	}
	p[k] = b
	return nil
}
