// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// This is the PCIe root complex link engine run as a daemon w/in another
// distro.
package main

import (
	"github.com/platinasystems/rclink"
	"github.com/platinasystems/rclink/cmd/linkstatus"
	"github.com/platinasystems/rclink/cmd/rclinkd"
)

func Goes() *rclink.Goes {
	return rclink.New("rclink",
		&rclinkd.Command{},
		linkstatus.Command{},
	)
}

func main() {
	Goes().Main()
}
