// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package hw

import "fmt"

type Write struct {
	Addr uint64
	Data uint32
}

func (w Write) String() string { return fmt.Sprintf("0x%012x <- 0x%08x", w.Addr, w.Data) }

// Trace is a Bus that records every write before passing it through.
type Trace struct {
	Bus
	writes []Write
}

func NewTrace(b Bus) *Trace { return &Trace{Bus: b} }

func (t *Trace) Write32(addr uint64, v uint32) {
	t.writes = append(t.writes, Write{addr, v})
	t.Bus.Write32(addr, v)
}

func (t *Trace) Writes() []Write { return t.writes }

func (t *Trace) Reset() { t.writes = t.writes[:0] }
