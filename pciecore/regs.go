// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"github.com/platinasystems/rclink/elib/hw"
	"github.com/platinasystems/rclink/elib/hw/pci"
)

// Host bridge device map, relative to HbCsrBase: [2:0] low half, [6:4]
// high half (type B only). Encoded as DevMap - 1.
const HBPDMR hw.Reg = 0x10

var (
	hbDevMapLow  = hw.Bits(2, 0)
	hbDevMapHigh = hw.Bits(6, 4)
)

// Controller CSR registers, relative to Controller.CsrBase.
const (
	RESET          hw.Reg = 0x00
	CLOCK          hw.Reg = 0x04
	RAMSDR         hw.Reg = 0x08
	RAMRM          hw.Reg = 0x0c
	MEMRDY         hw.Reg = 0x10
	PIPESTAT       hw.Reg = 0x14
	LINKCTRL       hw.Reg = 0x18
	LINKSTAT       hw.Reg = 0x1c
	BLOCKEVENTSTAT hw.Reg = 0x20
	IRQSEL         hw.Reg = 0x24
	DTIRPID        hw.Reg = 0x28
)

var (
	resetDwcpcie     = hw.Bit(0)
	clockAxipipe     = hw.Bit(0)
	ramsdrSd         = hw.Bit(0)
	ramrmRm          = hw.Bits(3, 0)
	ramrmRme         = hw.Bit(4)
	memrdyReady      = hw.Bit(0)
	pipestatStable   = hw.Bit(0)
	linkctrlLtssm    = hw.Bit(0)
	linkstatLtssm    = hw.Bits(5, 0)
	linkstatSmlhUp   = hw.Bit(16)
	linkstatRdlhUp   = hw.Bit(17)
	blockeventLinkUp = hw.Bit(0)
	irqselIntpin     = hw.Bits(2, 0)
)

const (
	ltssmL0        = 0x11
	ramReducedRM   = 0x2
	irqselINTA     = 1
	slotPowerWatts = 25
	classBridgePCI = 0x060400
	aspmL0sL1      = 3
)

// Port logic registers in the root port's own configuration space.
const (
	PORT_LINK_CTRL              pci.Offset = 0x710
	FILTER_MASK_2               pci.Offset = 0x720
	VC0_P_RX_Q_CTRL             pci.Offset = 0x748
	GEN2_CTRL                   pci.Offset = 0x80c
	GEN3_RELATED                pci.Offset = 0x890
	GEN3_EQ_CONTROL             pci.Offset = 0x8a8
	ORDER_RULE_CTRL             pci.Offset = 0x8b4
	MISC_CONTROL_1              pci.Offset = 0x8bc
	AMBA_ERROR_RESPONSE_DEFAULT pci.Offset = 0x8d0
	AMBA_LINK_TIMEOUT           pci.Offset = 0x8d4
	AMBA_ORDERING_CTRL          pci.Offset = 0x8d8
)

var (
	linkCapable            = hw.Bits(21, 16)
	fltMaskVenMsgDrop      = hw.Bits(1, 0)
	vc0PostedDataCredits   = hw.Bits(11, 0)
	vc0PostedHeaderCredits = hw.Bits(19, 12)
	gen2NumLanes           = hw.Bits(12, 8)
	gen3EqPhase23Bypass    = hw.Bit(9)
	gen3EqDisable          = hw.Bit(16)
	gen3RateShadowSel      = hw.Bits(25, 24)
	gen3EqFbMode           = hw.Bits(3, 0)
	gen3EqPsetReqVec       = hw.Bits(23, 8)
	orderNpPassP           = hw.Bits(7, 0)
	orderCplPassP          = hw.Bits(15, 8)
	dbiRoWrEn              = hw.Bit(0)
	ambaErrGlobal          = hw.Bit(0)
	ambaErrCrs             = hw.Bits(4, 3)
	ambaLinkTimeoutPeriod  = hw.Bits(7, 0)
	ambaZeroLenReadFw      = hw.Bit(7)
)

const (
	ambaErrSlverr        = 1
	ambaCrsOkayAllOnes   = 2
	linkTimeoutOperating = 32
)

// Secondary PCIe capability: lane equalization control, 16 bits per lane.
const secPCIeLaneEq pci.Offset = 0x0c

var (
	laneEqDspPreset = hw.Bits(3, 0)
	laneEqUspPreset = hw.Bits(11, 8)
)

const (
	gen3DspPreset     = 7
	gen3UspPresetDflt = 4
)

// Physical layer 16 GT/s capability: lane equalization control, 8 bits per lane.
const pl16gLaneEq pci.Offset = 0x20

const gen4PresetDflt = 0x57

// Data link feature capability.
const dlFeatureCaps pci.Offset = 0x04

var dlScaledFlowControl = hw.Bit(0)

// RAS-DES vendor specific capability.
const rasDesVsecID = 2

const (
	rasDesEventCtrl pci.Offset = 0x08
	rasDesEventData pci.Offset = 0x0c
)

var (
	rasDesClear      = hw.Bits(1, 0)
	rasDesEnable     = hw.Bits(4, 2)
	rasDesLaneSelect = hw.Bits(11, 8)
	rasDesEventSel   = hw.Bits(23, 16)
	rasDesGroupSel   = hw.Bits(27, 24)
)

const (
	rasDesClearAll = 3
	rasDesAllOn    = 7
)

// Fixed link capability encodings indexed by log2(width).
var (
	widthLog2 = map[uint8]int{1: 0, 2: 1, 4: 2, 8: 3, 16: 4}

	linkCapWidth    = [...]uint32{0x1, 0x2, 0x4, 0x8, 0x10}
	portLinkCapable = [...]uint32{0x1, 0x3, 0x7, 0xf, 0x1f}
)
