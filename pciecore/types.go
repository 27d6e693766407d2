// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import "fmt"

const (
	MaxControllers      = 8
	MaxRootComplexes    = 8 // per socket
	MaxSockets          = 2
	PresetInvalid uint8 = 0xff
)

// Type of root complex.
type Type uint8

const (
	TypeA Type = iota // 16 lanes, up to 4 controllers
	TypeB             // 2 x 8 lanes, up to 8 controllers
)

func (t Type) String() string {
	if t == TypeB {
		return "B"
	}
	return "A"
}

func (t Type) Controllers() int {
	if t == TypeB {
		return 8
	}
	return 4
}

// Gen is a PCIe generation; its value matches the link speed encoding.
type Gen uint8

const (
	Gen1 Gen = iota + 1
	Gen2
	Gen3
	Gen4
)

func (g Gen) String() string { return fmt.Sprintf("gen%d", g) }

// DevMap selects the bifurcation of a root complex (or of one half of a
// type B root complex).
type DevMap uint8

const (
	DevMapAuto DevMap = iota
	DevMap1Controller
	DevMap2Controllers
	DevMap3Controllers
	DevMap4Controllers
)

func (m DevMap) String() string {
	if m == DevMapAuto {
		return "auto"
	}
	return fmt.Sprintf("map%d", m)
}

type Errata uint32

const (
	// Force every active controller to Gen1.
	ErrataSpeed1 Errata = 1 << iota
	// Reduce SRAM read margin, disable scaled flow control and shrink
	// posted credits on controllers narrower than x16.
	ErrataRASMitigation
)

type State uint8

const (
	Inactive State = iota
	WaitingLinkUp
	Validating
	Healthy
	Recovering
	Failed
)

var stateNames = [...]string{
	Inactive:      "inactive",
	WaitingLinkUp: "waiting-link-up",
	Validating:    "validating",
	Healthy:       "healthy",
	Recovering:    "recovering",
	Failed:        "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

type LinkCheckResult uint8

const (
	LinkCheckOK LinkCheckResult = iota
	LinkCheckFailed
	LinkCheckWrongParameter
)

func (r LinkCheckResult) String() string {
	switch r {
	case LinkCheckOK:
		return "ok"
	case LinkCheckFailed:
		return "failed"
	}
	return "wrong parameter"
}

// Controller is one PCIe root port of a root complex.
type Controller struct {
	Index   int
	RC      int // index of the owning root complex in Subsystem.RC
	DevNum  uint8
	CsrBase uint64
	DbiBase uint64

	Active   bool
	LinkUp   bool
	HotPlug  bool
	MaxWidth uint8
	CurWidth uint8
	MaxGen   Gen
	CurGen   Gen

	EpMaxWidth uint8
	EpMaxGen   Gen

	State  State
	Resets int

	name string
}

func (c *Controller) String() string { return c.name }

// RootComplex is a group of controllers sharing a host bridge and its
// configuration and memory windows.
type RootComplex struct {
	Socket  int
	ID      int
	Type    Type
	Segment int

	CsrBase    uint64
	HbCsrBase  uint64
	SerdesBase uint64
	MmcfgBase  uint64
	TcuBase    uint64
	Mmio       Aperture
	Mmio32     Aperture
	IO         Aperture

	Active            bool
	DevMapLow         DevMap
	DevMapHigh        DevMap
	DefaultDevMapLow  DevMap
	DefaultDevMapHigh DevMap

	Gen3Preset [MaxControllers]uint8
	Gen4Preset [MaxControllers]uint8
	Errata     Errata

	Ctl [MaxControllers]Controller

	// controllers that missed link up in the latest sweep
	failed []int
}

func (rc *RootComplex) String() string { return fmt.Sprintf("rc %d.%d", rc.Socket, rc.ID) }

// Controllers returns the populated controller slots.
func (rc *RootComplex) Controllers() []Controller { return rc.Ctl[:rc.Type.Controllers()] }

type Aperture struct {
	Base, Size uint64
}

func (a Aperture) String() string {
	if a.Size == 0 {
		return "none"
	}
	return fmt.Sprintf("[0x%x-0x%x]", a.Base, a.Base+a.Size-1)
}

// Apertures describe a root complex to host bridge resource allocation.
type Apertures struct {
	IO, Mmio32, Mmio64 Aperture
	BusStart, BusEnd   uint8
}

// Segment is one finalized root complex for MCFG and IORT generation.
type Segment struct {
	RC        int
	Socket    int
	ID        int
	Segment   int
	MmcfgBase uint64
	TcuBase   uint64
	BusStart  uint8
	BusEnd    uint8
}

// Link is a snapshot of one controller.
type Link struct {
	Socket   int
	RC       int
	Ctl      int
	Segment  int
	State    State
	Active   bool
	LinkUp   bool
	MaxWidth uint8
	CurWidth uint8
	MaxGen   Gen
	CurGen   Gen
	Resets   int
}

func (l Link) String() string {
	return fmt.Sprintf("rc %d.%d pcie%d: %v x%d %v (max x%d %v)",
		l.Socket, l.RC, l.Ctl, l.State, l.CurWidth, l.CurGen,
		l.MaxWidth, l.MaxGen)
}
