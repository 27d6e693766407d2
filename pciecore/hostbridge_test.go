// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"errors"
	"testing"

	"github.com/platinasystems/rclink/elib/hw/pci"
)

func TestApertures(t *testing.T) {
	f := newFixture(t, VariantAltraMax, x16(Gen3), nil)
	a, err := f.Apertures(0)
	if err != nil {
		t.Fatal(err)
	}
	want := Apertures{
		IO:     Aperture{0, 0x10000},
		Mmio32: Aperture{0x40000000, 0x8000000},
		Mmio64: Aperture{0x300000000000, 0x3ffe0000000},
		BusEnd: 0xff,
	}
	if a != want {
		t.Errorf("wrong: %+v", a)
	}
	if _, err = f.Apertures(1); !errors.Is(err, ErrInactive) {
		t.Error("wrong:", err)
	}
	if _, err = f.Apertures(8); !errors.Is(err, ErrRange) {
		t.Error("wrong:", err)
	}
}

func TestConfigAccess(t *testing.T) {
	f := newFixture(t, VariantAltraMax, x16(Gen3), nil)
	setupLinks(t, f)
	for _, x := range []struct {
		a    pci.Address
		reg  uint16
		want uint32
	}{
		{pci.Address{Bus: 0, Dev: 1}, 0, 0xe2001def},
		{pci.Address{Bus: 0, Dev: 1}, 8, 0x06040001},
		{pci.Address{Bus: 0, Dev: 0}, 0, pci.NotPresent},
		{pci.Address{Bus: 0, Dev: 2}, 0, pci.NotPresent},
		{pci.Address{Bus: 0, Dev: 1, Fn: 1}, 0, pci.NotPresent},
		{pci.Address{Bus: 1, Dev: 1}, 0, pci.NotPresent},
	} {
		got, err := f.ConfigRead32(0, x.a, x.reg)
		if err != nil || got != x.want {
			t.Errorf("wrong: %v 0x%x: 0x%x %v", x.a, x.reg, got, err)
		}
	}

	rp := pci.Address{Dev: 1}
	if err := f.ConfigWrite32(0, rp, 0x18, 0x00010100); err != nil {
		t.Fatal(err)
	}
	got, err := f.ConfigRead32(0, pci.Address{Bus: 1}, 0)
	if err != nil || got != 0xa808144d {
		t.Errorf("wrong: endpoint 0x%x %v", got, err)
	}

	for _, reg := range []uint16{2, 0x1000} {
		if _, err = f.ConfigRead32(0, rp, reg); !errors.Is(err, ErrRange) {
			t.Error("wrong:", reg, err)
		}
	}
	if _, err = f.ConfigRead32(0, pci.Address{Dev: 32}, 0); !errors.Is(err, ErrRange) {
		t.Error("wrong:", err)
	}
	if err = f.ConfigWrite32(1, rp, 0, 0); !errors.Is(err, ErrInactive) {
		t.Error("wrong:", err)
	}
	// hidden writes are dropped
	if err = f.ConfigWrite32(0, pci.Address{Dev: 3}, 0x18, 1); err != nil {
		t.Error("unexpected:", err)
	}
}

func TestFinalize(t *testing.T) {
	f := newFixture(t, VariantAltraMax, map[int]BoardRootComplex{
		0: boardRC(DevMap1Controller, Gen3, 0),
		5: boardRC(DevMap1Controller, Gen3, 0),
	}, nil)
	segs := f.Finalize()
	if len(segs) != 2 || segs[0].RC != 0 || segs[1].RC != 5 ||
		segs[1].Segment != 5 || segs[1].BusEnd != 0xff {
		t.Errorf("wrong: %+v", segs)
	}
	if err := f.deactivate(0); !errors.Is(err, ErrFinalized) {
		t.Error("wrong:", err)
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, VariantAltraMax, x16(Gen3), nil)
	setupLinks(t, f)
	f.Run()
	links := f.Snapshot()
	// four type A and four type B root complexes
	if len(links) != 4*4+4*8 {
		t.Fatal("wrong:", len(links))
	}
	l := links[0]
	if l.State != Healthy || !l.Active || !l.LinkUp ||
		l.CurWidth != 16 || l.CurGen != Gen3 {
		t.Errorf("wrong: %+v", l)
	}
	if links[1].Active || links[1].State != Inactive {
		t.Errorf("wrong: %+v", links[1])
	}
	f.RC[0].Ctl[0].Resets = 2
	if links[0].Resets != 0 {
		t.Error("wrong: snapshot aliases state")
	}
}
