// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package fdtgpio

import (
	"testing"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/gpio"
)

func TestGather(t *testing.T) {
	gpio.Aliases = make(gpio.GpioAliasMap)
	gpio.Pins = make(gpio.PinMap)
	GatherAliases(&fdt.Node{
		Name: "aliases",
		Properties: map[string][]byte{
			"gpio0":  []byte("/soc/gpio@e0a00000\x00"),
			"serial": []byte("/soc/uart@0\x00"),
		},
	})
	if len(gpio.Aliases) != 1 || gpio.Aliases["gpio0"] != "gpio@e0a00000" {
		t.Fatal("wrong:", gpio.Aliases)
	}
	pin := func(mode string) map[string][]byte {
		return map[string][]byte{"gpio-pin-desc": nil, mode: nil}
	}
	n := &fdt.Node{
		Name: "gpio@e0a00000",
		Children: map[string]*fdt.Node{
			"a": {Name: "PCIE_S0_RC1_C0_PERST_L@3", Properties: pin("output-high")},
			"b": {Name: "PRESENT_L@9", Properties: pin("input")},
			"c": {Name: "NOINDEX", Properties: pin("input")},
			"d": {Name: "NODESC@4", Properties: map[string][]byte{"input": nil}},
		},
	}
	GatherPins(n, "gpio-controller", "")
	GatherPins(&fdt.Node{Name: "gpio@0"}, "gpio-controller", "")
	if len(gpio.Pins) != 2 {
		t.Fatal("wrong:", gpio.Pins)
	}
	want := gpio.GpioPinMode["output-high"] | gpio.GpioBankToBase["gpio0"] |
		gpio.Pin(3)
	if got := gpio.Pins["PCIE_S0_RC1_C0_PERST_L"]; got != want {
		t.Error("wrong:", got, want)
	}
}

func TestLoadBad(t *testing.T) {
	if err := Load([]byte("junk")); err == nil {
		t.Error("wrong: no error")
	}
}
