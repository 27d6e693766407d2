// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"fmt"
	"testing"

	"github.com/platinasystems/rclink/elib/hw"
	"github.com/platinasystems/rclink/internal/sim"
)

type slot [3]int

type testBoard struct {
	rcs   map[int]BoardRootComplex // by root complex id, socket 0
	ports map[slot]*sim.Port
	// A port's link fault clears on its healAt'th PERST release.
	healAt   map[slot]int
	releases map[slot]int
}

func (b *testBoard) RootComplex(socket, id int) BoardRootComplex {
	if r, found := b.rcs[id]; found && socket == 0 {
		return r
	}
	return NewBoardRootComplex()
}

func (b *testBoard) Perst(socket, id, ctl int, high bool) error {
	s := slot{socket, id, ctl}
	pt := b.ports[s]
	if pt == nil {
		return nil
	}
	if high {
		b.releases[s]++
		if n := b.healAt[s]; n > 0 && b.releases[s] >= n {
			pt.NoLink = false
		}
	}
	pt.SetPerst(high)
	return nil
}

func (b *testBoard) PerstDone(socket, id, ctl int) error { return nil }

type portSetup func(rc *RootComplex, c *Controller) (*sim.Endpoint, sim.Faults)

type fixture struct {
	*Subsystem
	plat   *sim.Platform
	trace  *hw.Trace
	board  *testBoard
	fatal  []string
	states []Link
}

func newFixture(t *testing.T, v *Variant, rcs map[int]BoardRootComplex, setup portSetup) *fixture {
	f := &fixture{
		plat:  sim.New(),
		board: &testBoard{
			rcs:      rcs,
			ports:    make(map[slot]*sim.Port),
			healAt:   make(map[slot]int),
			releases: make(map[slot]int),
		},
	}
	f.trace = hw.NewTrace(f.plat)
	f.Subsystem = &Subsystem{
		Variant: v,
		Bus:     f.trace,
		Clock:   f.plat.Clock,
		Board:   f.board,
		Sockets: 1,
		Fatal: func(format string, args ...interface{}) {
			f.fatal = append(f.fatal, fmt.Sprintf(format, args...))
		},
		OnState: func(l Link) { f.states = append(f.states, l) },
	}
	if err := f.Init(); err != nil {
		t.Fatal(err)
	}
	for i := range f.RC {
		rc := &f.RC[i]
		if !rc.Active {
			continue
		}
		for idx := 0; idx < rc.Type.Controllers(); idx++ {
			c := &rc.Ctl[idx]
			ep, faults := &sim.Endpoint{Width: 16, Gen: 4}, sim.Faults{}
			if setup != nil {
				ep, faults = setup(rc, c)
			}
			f.board.ports[slot{rc.Socket, rc.ID, idx}] =
				f.plat.AddPort(c.CsrBase, c.DbiBase, rc.MmcfgBase,
					ep, faults)
		}
	}
	return f
}

func (f *fixture) port(id, ctl int) *sim.Port { return f.board.ports[slot{0, id, ctl}] }

// boardRC is an active root complex with the given controllers at gen.
func boardRC(m DevMap, gen Gen, ctls ...int) BoardRootComplex {
	b := NewBoardRootComplex()
	b.Active = true
	b.DevMapLow = m
	b.DevMapHigh = m
	for _, i := range ctls {
		b.Ctl[i].Active = true
		b.Ctl[i].Gen = gen
	}
	return b
}

func endpoint(width, gen uint8) portSetup {
	return func(*RootComplex, *Controller) (*sim.Endpoint, sim.Faults) {
		return &sim.Endpoint{Width: width, Gen: gen}, sim.Faults{}
	}
}

func faulty(ctl int, f sim.Faults) portSetup {
	return func(rc *RootComplex, c *Controller) (*sim.Endpoint, sim.Faults) {
		ep := &sim.Endpoint{Width: 16, Gen: 4}
		if c.Index == ctl {
			return ep, f
		}
		return ep, sim.Faults{}
	}
}
