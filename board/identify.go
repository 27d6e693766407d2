// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package board

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/platinasystems/eeprom"
)

// Identify reads the product name from the board eeprom.
func Identify(bus, addr int) (string, error) {
	d := eeprom.Device{
		BusIndex:   bus,
		BusAddress: addr,
	}
	if err := d.GetInfo(); err != nil {
		return "", fmt.Errorf("eeprom %d.0x%x: %v", bus, addr, err)
	}
	name := productName(d.Fields.ProductName)
	if name == "" {
		return "", fmt.Errorf("eeprom %d.0x%x: no product name", bus, addr)
	}
	return name, nil
}

// productName lower cases s and folds anything other than letters and
// digits into single dashes.
func productName(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}

// DTBFile is the board device tree of the named product in dir.
func DTBFile(dir, product string) string {
	return filepath.Join(dir, product+".dtb")
}
