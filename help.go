// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package rclink

import (
	"fmt"
	"strings"

	"github.com/platinasystems/rclink/cmd"
)

type helper interface {
	Help(...string) string
}

// Help of the named command, or of the dispatcher followed by its
// commands and their kinds.
func (g *Goes) Help(args ...string) string {
	if len(args) > 0 {
		v, found := g.ByName[args[0]]
		if !found {
			return fmt.Sprint(args[0], ": not found")
		}
		if method, found := v.(helper); found {
			return method.Help(args[1:]...)
		}
		return Usage(v)
	}
	var b strings.Builder
	b.WriteString(Usage(g))
	b.WriteString("\n\nCOMMANDS")
	for _, name := range g.Names() {
		fmt.Fprintf(&b, "\n\t%-16s%v", name, cmd.WhatKind(g.ByName[name]))
	}
	return b.String()
}

func (g *Goes) help(args ...string) error {
	fmt.Fprintln(g.stdout(), g.Help(args...))
	return nil
}
