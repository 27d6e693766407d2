// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pcie

import "testing"

type config map[uint64]uint32

func (c config) Read32(o uint64) uint32     { return c[o] }
func (c config) Write32(o uint64, v uint32) { c[o] = v }

func TestCapability(t *testing.T) {
	c := config{
		0x34: 0x40,
		0x40: 0x00420010, // root port, version 2
		0x50: 0x10830000, // x8 gen3
	}
	pc, found := Find(c)
	if !found {
		t.Fatal("pcie capability not found")
	}
	if pc.Type() != Type_root_port {
		t.Error("wrong:", pc.Type())
	}
	s := pc.LinkStatus()
	if s.Width != 8 || s.Speed != Gen3 {
		t.Error("wrong:", s)
	}
	if s.String() != "x8 8GT/s" {
		t.Error("wrong:", s.String())
	}
	pc.SetSlotPowerLimit(25)
	x := c[0x54]
	if SlotCapPowerValue.Get(x) != 25 || SlotCapPowerScale.Get(x) != 0 {
		t.Errorf("wrong: slot cap 0x%x", x)
	}
}
