// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package board provides the root complex parameters and PERST# control
// of a platform to pciecore.
package board

import (
	"fmt"
	"sync"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/elib/hw"
	"github.com/platinasystems/rclink/pciecore"
)

// PerstHold is the minimum time PERST# stays asserted.
const PerstHold = 100 * time.Millisecond

type Key struct {
	Socket, RC int
}

func (k Key) String() string { return fmt.Sprintf("rc %d.%d", k.Socket, k.RC) }

type Params map[Key]pciecore.BoardRootComplex

// A PerstDriver drives the PERST# line of one controller; high is
// released.
type PerstDriver interface {
	SetPerst(socket, rc, ctl int, high bool) error
}

// Board is a pciecore.Board over a parameter table and a PERST# driver.
type Board struct {
	Params Params
	Driver PerstDriver
	// Defaults to hw.RealClock.
	Clock hw.Clock

	mu       sync.Mutex
	asserted map[[3]int]time.Time
}

func New(p Params, d PerstDriver, c hw.Clock) *Board {
	return &Board{Params: p, Driver: d, Clock: c}
}

func (b *Board) clock() hw.Clock {
	if b.Clock == nil {
		return hw.RealClock
	}
	return b.Clock
}

func (b *Board) RootComplex(socket, id int) pciecore.BoardRootComplex {
	if p, found := b.Params[Key{socket, id}]; found {
		return p
	}
	return pciecore.NewBoardRootComplex()
}

// Perst asserts or releases PERST#. A release waits out whatever is left
// of PerstHold since the last assert.
func (b *Board) Perst(socket, id, ctl int, high bool) error {
	if b.Driver == nil {
		return fmt.Errorf("%v pcie%d: no perst driver", Key{socket, id}, ctl)
	}
	k := [3]int{socket, id, ctl}
	c := b.clock()
	b.mu.Lock()
	if b.asserted == nil {
		b.asserted = make(map[[3]int]time.Time)
	}
	t, found := b.asserted[k]
	if !high {
		b.asserted[k] = c.Now()
	} else {
		delete(b.asserted, k)
	}
	b.mu.Unlock()
	if high && found {
		if d := PerstHold - c.Now().Sub(t); d > 0 {
			c.Sleep(d)
		}
	}
	if err := b.Driver.SetPerst(socket, id, ctl, high); err != nil {
		return err
	}
	s := "asserted"
	if high {
		s = "released"
	}
	log.Printf("debug", "%v pcie%d: perst %s", Key{socket, id}, ctl, s)
	return nil
}

// PerstDone is passed on to drivers with a second release phase.
func (b *Board) PerstDone(socket, id, ctl int) error {
	if d, ok := b.Driver.(interface {
		PerstDone(socket, rc, ctl int) error
	}); ok {
		return d.PerstDone(socket, id, ctl)
	}
	return nil
}
