// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pci provides configuration space access and capability list
// walking for devices reached through memory mapped configuration (ECAM).
package pci

import (
	"fmt"

	"github.com/platinasystems/rclink/elib/hw"
)

// Config is a device's configuration space.
type Config interface {
	Read32(offset uint64) uint32
	Write32(offset uint64, v uint32)
}

// Block adapts a register window (e.g. an ECAM function slot) to Config.
type Block hw.Block

func (b Block) Read32(o uint64) uint32     { return hw.Block(b).Read32(o) }
func (b Block) Write32(o uint64, v uint32) { hw.Block(b).Write32(o, v) }

func Read16(c Config, o uint64) uint16 {
	return uint16(c.Read32(o&^3) >> (8 * (o & 2)))
}

func Read8(c Config, o uint64) uint8 {
	return uint8(c.Read32(o&^3) >> (8 * (o & 3)))
}

// Offset of a register in configuration space.
type Offset uint64

const (
	VendorDeviceID   Offset = 0x00
	StatusCommand    Offset = 0x04
	ClassRevision    Offset = 0x08
	BusNumbers       Offset = 0x18 // type 1 header: [7:0] primary [15:8] secondary [23:16] subordinate
	CapabilityList   Offset = 0x34
	ExtCapabilityTop Offset = 0x100
	ConfigSize       Offset = 0x1000
)

// All ones is what a read of an absent function returns.
const NotPresent = ^uint32(0)

// Header type 1 bus number fields.
var (
	PrimaryBus     = hw.Bits(7, 0)
	SecondaryBus   = hw.Bits(15, 8)
	SubordinateBus = hw.Bits(23, 16)
)

type Capability uint8

const (
	PowerManagement Capability = iota + 1
	AGP
	VitalProductData
	SlotIdentification
	MSI
	CompactPCIHotSwap
	PCIX
	HyperTransport
	VendorSpecific
	DebugPort
	CompactPciCentralControl
	PCIHotPlugController
	SSVID
	AGP3
	SecureDevice
	PCIE
	MSIX
)

type ExtCapability uint16

const (
	AdvancedErrorReporting ExtCapability = 0x01
	VirtualChannel         ExtCapability = 0x02
	DeviceSerialNumber     ExtCapability = 0x03
	ExtVendorSpecific      ExtCapability = 0x0b
	AccessControlServices  ExtCapability = 0x0d
	SecondaryPCIe          ExtCapability = 0x19
	DataLinkFeature        ExtCapability = 0x25
	PhysicalLayer16G       ExtCapability = 0x26
	LaneMargining          ExtCapability = 0x27
)

// Address of a function on a segment.
type Address struct {
	Bus, Dev, Fn uint8
}

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x.%x", a.Bus, a.Dev, a.Fn)
}

// MmcfgOffset is the ECAM byte offset of register reg of this function.
func (a Address) MmcfgOffset(reg uint16) uint64 {
	return uint64(a.Bus)<<20 | uint64(a.Dev&0x1f)<<15 |
		uint64(a.Fn&7)<<12 | uint64(reg&0xfff)
}
