// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package fdtgpio fills the gpio pin map from the gpio controllers of a
// device tree.
package fdtgpio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/gpio"
)

// Load replaces gpio.Aliases and gpio.Pins with those described by the
// device tree blob b.
func Load(b []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gpio dtb: %v", r)
		}
	}()
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	if err = t.Parse(b); err != nil {
		return fmt.Errorf("gpio dtb: %v", err)
	}
	gpio.Aliases = make(gpio.GpioAliasMap)
	gpio.Pins = make(gpio.PinMap)
	t.MatchNode("aliases", GatherAliases)
	t.EachProperty("gpio-controller", "", GatherPins)
	return nil
}

// GatherAliases maps each gpio alias to its controller node name.
func GatherAliases(n *fdt.Node) {
	for p, pn := range n.Properties {
		if strings.Contains(p, "gpio") {
			val := strings.Split(string(pn), "\x00")
			v := strings.Split(val[0], "/")
			gpio.Aliases[p] = v[len(v)-1]
		}
	}
}

// GatherPins adds a pin for every child of controller n that has a
// direction; children are named NAME@INDEX.
func GatherPins(n *fdt.Node, name string, value string) {
	for bank, al := range gpio.Aliases {
		if al != n.Name {
			continue
		}
		for _, c := range n.Children {
			if _, found := c.Properties["gpio-pin-desc"]; !found {
				continue
			}
			pn := strings.SplitN(c.Name, "@", 2)
			if len(pn) != 2 {
				continue
			}
			i, err := strconv.Atoi(pn[1])
			if err != nil {
				continue
			}
			for _, mode := range []string{"output-high", "output-low", "input"} {
				if _, found := c.Properties[mode]; found {
					gpio.Pins[pn[0]] = gpio.GpioPinMode[mode] |
						gpio.GpioBankToBase[bank] |
						gpio.Pin(i)
					break
				}
			}
		}
	}
}
