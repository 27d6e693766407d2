// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pcie decodes the PCI Express capability structure.
package pcie

import (
	"fmt"

	"github.com/platinasystems/rclink/elib/hw"
	"github.com/platinasystems/rclink/elib/hw/pci"
)

const (
	Type_express_endpoint = iota
	Type_legacy_endpoint
	_
	_
	Type_root_port
	Type_upstream_port
	Type_downstream_port
	Type_pcie_to_pci_bridge
	Type_pci_to_pcie_bridge
	Type_root_complex_integrated_endpoint
	Type_root_complex_event_collector
)

var typeNames = [...]string{
	Type_express_endpoint:                 "express endpoint",
	Type_legacy_endpoint:                  "legacy endpoint",
	Type_root_port:                        "root port",
	Type_upstream_port:                    "upstream port",
	Type_downstream_port:                  "downstream port",
	Type_pcie_to_pci_bridge:               "pcie to pci bridge",
	Type_pci_to_pcie_bridge:               "pci to pcie bridge",
	Type_root_complex_integrated_endpoint: "root complex integrated endpoint",
	Type_root_complex_event_collector:     "root complex event collector",
}

type Type uint8

func (t Type) String() string {
	if int(t) < len(typeNames) && len(typeNames[t]) > 0 {
		return typeNames[t]
	}
	return fmt.Sprintf("type %d", t)
}

// Register offsets relative to the PCIe capability header.
const (
	Flags              pci.Offset = 0x00 // [31:16]
	DeviceCapabilities pci.Offset = 0x04
	DeviceControl      pci.Offset = 0x08
	LinkCapabilities   pci.Offset = 0x0c
	LinkControl        pci.Offset = 0x10 // [15:0] control, [31:16] status
	SlotCapabilities   pci.Offset = 0x14
	SlotControl        pci.Offset = 0x18
	DeviceControl2     pci.Offset = 0x28
	LinkCapabilities2  pci.Offset = 0x2c
	LinkControl2       pci.Offset = 0x30
)

var (
	FlagsVersion = hw.Bits(19, 16)
	FlagsType    = hw.Bits(23, 20)
)

// Link speeds as encoded in link capabilities, status and control 2.
type Speed uint8

const (
	Gen1 Speed = iota + 1
	Gen2
	Gen3
	Gen4
	Gen5
)

var speedNames = [...]string{
	Gen1: "2.5GT/s",
	Gen2: "5GT/s",
	Gen3: "8GT/s",
	Gen4: "16GT/s",
	Gen5: "32GT/s",
}

func (s Speed) String() string {
	if int(s) < len(speedNames) && len(speedNames[s]) > 0 {
		return speedNames[s]
	}
	return fmt.Sprintf("speed %d", s)
}

// Link capabilities:
//   [3:0] max link speed
//   [9:4] max link width
//   [11:10] ASPM support
var (
	LinkCapSpeed = hw.Bits(3, 0)
	LinkCapWidth = hw.Bits(9, 4)
	LinkCapAspm  = hw.Bits(11, 10)
)

// Link control and status share a dword.
//   [6] common clock configuration
//   [19:16] current link speed
//   [25:20] negotiated link width
//   [27] link training
var (
	LinkCtlCommonClock = hw.Bit(6)
	LinkStaSpeed       = hw.Bits(19, 16)
	LinkStaWidth       = hw.Bits(25, 20)
	LinkStaTraining    = hw.Bit(27)
)

// Slot capabilities:
//   [6] hot plug capable
//   [14:7] slot power limit value
//   [16:15] slot power limit scale
var (
	SlotCapHotPlug    = hw.Bit(6)
	SlotCapPowerValue = hw.Bits(14, 7)
	SlotCapPowerScale = hw.Bits(16, 15)
)

// Link control 2 [3:0] target link speed.
var LinkCtl2TargetSpeed = hw.Bits(3, 0)

// AER uncorrectable error mask, relative to the AER capability.
const AerUncorrectableMask pci.Offset = 0x08

var (
	AerSurpriseDown      = hw.Bit(5)
	AerCompletionTimeout = hw.Bit(14)
)

// LinkStatus is the decoded status half of the link control dword.
type LinkStatus struct {
	Speed Speed
	Width uint8
}

func DecodeLinkStatus(x uint32) LinkStatus {
	return LinkStatus{
		Speed: Speed(LinkStaSpeed.Get(x)),
		Width: uint8(LinkStaWidth.Get(x)),
	}
}

func (s LinkStatus) String() string {
	return fmt.Sprintf("x%d %v", s.Width, s.Speed)
}

// Capability is a function's PCIe capability structure.
type Capability struct {
	Config pci.Config
	Offset pci.Offset
}

func Find(c pci.Config) (pc Capability, found bool) {
	var o pci.Offset
	if o, found = pci.FindCap(c, pci.PCIE); found {
		pc = Capability{c, o}
	}
	return
}

func (c Capability) Read32(r pci.Offset) uint32 {
	return c.Config.Read32(uint64(c.Offset + r))
}

func (c Capability) Write32(r pci.Offset, v uint32) {
	c.Config.Write32(uint64(c.Offset+r), v)
}

func (c Capability) Update(r pci.Offset, f hw.Field, v uint32) {
	c.Write32(r, f.Set(c.Read32(r), v))
}

func (c Capability) Type() Type { return Type(FlagsType.Get(c.Read32(Flags))) }

func (c Capability) LinkStatus() LinkStatus {
	return DecodeLinkStatus(c.Read32(LinkControl))
}

// SetSlotPowerLimit programs the slot power limit in whole watts
// (scale 1.0x). Values above 0xef watts are clamped.
func (c Capability) SetSlotPowerLimit(watts uint32) {
	if watts > 0xef {
		watts = 0xef
	}
	x := c.Read32(SlotCapabilities)
	x = SlotCapPowerValue.Set(x, watts)
	x = SlotCapPowerScale.Set(x, 0)
	c.Write32(SlotCapabilities, x)
}
