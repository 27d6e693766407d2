// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pci

// Common header for capabilities: [7:0] id, [15:8] next pointer.
type CapabilityHeader struct {
	Capability
	Next Offset
}

// Common header for extended capabilities: [15:0] id, [19:16] version,
// [31:20] next pointer.
type ExtCapabilityHeader struct {
	ExtCapability
	Version uint8
	Next    Offset
}

// ForeachCap calls f with each legacy capability until f is done, the list
// ends, or the list loops back on itself.
func ForeachCap(c Config, f func(h CapabilityHeader, o Offset) (done bool)) {
	var been [0x100]bool
	o := Offset(Read8(c, uint64(CapabilityList))) &^ 3
	for o >= 0x40 && o < 0x100 && !been[o] {
		been[o] = true
		x := Read16(c, uint64(o))
		h := CapabilityHeader{
			Capability: Capability(x),
			Next:       Offset(x>>8) &^ 3,
		}
		if f(h, o) {
			return
		}
		o = h.Next
	}
}

func FindCap(c Config, id Capability) (offset Offset, found bool) {
	ForeachCap(c, func(h CapabilityHeader, o Offset) bool {
		if h.Capability == id {
			offset, found = o, true
		}
		return found
	})
	return
}

// ForeachExtCap calls f with each extended capability starting at 0x100.
func ForeachExtCap(c Config, f func(h ExtCapabilityHeader, o Offset) (done bool)) {
	been := make(map[Offset]bool)
	for o := ExtCapabilityTop; o >= ExtCapabilityTop && o < ConfigSize && !been[o]; {
		been[o] = true
		x := c.Read32(uint64(o))
		if x == 0 || x == NotPresent {
			return
		}
		h := ExtCapabilityHeader{
			ExtCapability: ExtCapability(x),
			Version:       uint8(x>>16) & 0xf,
			Next:          Offset(x>>20) &^ 3,
		}
		if f(h, o) {
			return
		}
		o = h.Next
	}
}

func FindExtCap(c Config, id ExtCapability) (offset Offset, found bool) {
	ForeachExtCap(c, func(h ExtCapabilityHeader, o Offset) bool {
		if h.ExtCapability == id {
			offset, found = o, true
		}
		return found
	})
	return
}

// FindVsec finds the vendor specific extended capability with the given
// VSEC id ([15:0] of the register following the header).
func FindVsec(c Config, vsec uint16) (offset Offset, found bool) {
	ForeachExtCap(c, func(h ExtCapabilityHeader, o Offset) bool {
		if h.ExtCapability == ExtVendorSpecific &&
			uint16(c.Read32(uint64(o)+4)) == vsec {
			offset, found = o, true
		}
		return found
	})
	return
}
