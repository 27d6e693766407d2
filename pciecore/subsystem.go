// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pciecore brings up, trains, validates and recovers the PCIe
// links of every root complex of a multi-socket SoC.
//
// A Subsystem is driven by a single goroutine: Init, SetupRootBridges,
// Run and Finalize in that order. Readers on other goroutines should
// only use copies returned by Snapshot.
package pciecore

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/elib/hw"
)

type Subsystem struct {
	Variant *Variant
	Bus     hw.Bus
	Clock   hw.Clock
	Board   Board
	Sockets int

	// Fatal is called when a root port stops responding to
	// configuration reads. The default logs and never returns so that
	// the platform watchdog resets the system.
	Fatal func(format string, args ...interface{})

	// OnState observes every controller state transition.
	OnState func(Link)

	RC []RootComplex

	boards    []BoardRootComplex
	finalized bool
}

// halt waits for the watchdog.
var halt = func() {
	for {
		time.Sleep(time.Hour)
	}
}

func defaultFatal(format string, args ...interface{}) {
	log.Print("emerg", fmt.Sprintf(format, args...))
	halt()
}

// Init builds the root complex list from the static address table and
// board parameters.
func (s *Subsystem) Init() error {
	if s.Bus == nil || s.Board == nil {
		return errors.New("pciecore: missing bus or board")
	}
	if s.Sockets < 1 || s.Sockets > MaxSockets {
		return fmt.Errorf("sockets %d: %w", s.Sockets, ErrRange)
	}
	if s.Variant == nil {
		s.Variant = VariantAltra
	}
	if s.Clock == nil {
		s.Clock = hw.RealClock
	}
	if s.Fatal == nil {
		s.Fatal = defaultFatal
	}
	s.RC = make([]RootComplex, 0, s.Sockets*MaxRootComplexes)
	s.boards = make([]BoardRootComplex, 0, cap(s.RC))
	s.finalized = false
	for socket := 0; socket < s.Sockets; socket++ {
		for id := 0; id < MaxRootComplexes; id++ {
			rc := newRootComplex(socket, id, len(s.RC))
			b := s.Board.RootComplex(socket, id)
			rc.Active = b.Active
			rc.Errata = b.Errata | s.Variant.Errata(s.Variant, &rc)
			resolveDevMap(&rc, &b)
			resolveLanes(s.Variant, &rc, &b)
			s.RC = append(s.RC, rc)
			s.boards = append(s.boards, b)
			if rc.Active {
				log.Printf("info", "%v: type %v map %v/%v errata 0x%x",
					&s.RC[len(s.RC)-1], rc.Type, rc.DevMapLow,
					rc.DevMapHigh, rc.Errata)
			}
		}
	}
	return nil
}

func (s *Subsystem) rootComplex(i int) (*RootComplex, error) {
	if i < 0 || i >= len(s.RC) {
		return nil, fmt.Errorf("root complex %d: %w", i, ErrRange)
	}
	return &s.RC[i], nil
}

func (s *Subsystem) controller(i, idx int) (*RootComplex, *Controller, error) {
	rc, err := s.rootComplex(i)
	if err != nil {
		return nil, nil, err
	}
	if idx < 0 || idx >= rc.Type.Controllers() {
		return nil, nil, fmt.Errorf("%v controller %d: %w", rc, idx,
			ErrRange)
	}
	return rc, &rc.Ctl[idx], nil
}

func (s *Subsystem) setState(rc *RootComplex, c *Controller, st State) {
	if c.State == st {
		return
	}
	log.Printf("debug", "%v: %v -> %v", c, c.State, st)
	c.State = st
	if s.OnState != nil {
		s.OnState(link(rc, c))
	}
}

// deactivate removes a root complex and all of its controllers.
func (s *Subsystem) deactivate(i int) error {
	rc, err := s.rootComplex(i)
	if err != nil {
		return err
	}
	if s.finalized {
		return fmt.Errorf("%v: %w", rc, ErrFinalized)
	}
	rc.Active = false
	for idx := range rc.Ctl {
		c := &rc.Ctl[idx]
		c.Active = false
		c.LinkUp = false
		s.setState(rc, c, Inactive)
	}
	return nil
}

// Finalize freezes the set of active root complexes and returns them in
// ascending order for MCFG and IORT generation.
func (s *Subsystem) Finalize() []Segment {
	s.finalized = true
	var segs []Segment
	for i := range s.RC {
		rc := &s.RC[i]
		if !rc.Active {
			continue
		}
		segs = append(segs, Segment{
			RC:        i,
			Socket:    rc.Socket,
			ID:        rc.ID,
			Segment:   rc.Segment,
			MmcfgBase: rc.MmcfgBase,
			TcuBase:   rc.TcuBase,
			BusStart:  0,
			BusEnd:    0xff,
		})
	}
	return segs
}

func link(rc *RootComplex, c *Controller) Link {
	return Link{
		Socket:   rc.Socket,
		RC:       rc.ID,
		Ctl:      c.Index,
		Segment:  rc.Segment,
		State:    c.State,
		Active:   c.Active,
		LinkUp:   c.LinkUp,
		MaxWidth: c.MaxWidth,
		CurWidth: c.CurWidth,
		MaxGen:   c.MaxGen,
		CurGen:   c.CurGen,
		Resets:   c.Resets,
	}
}

// Snapshot copies the state of every populated controller slot.
func (s *Subsystem) Snapshot() []Link {
	var links []Link
	for i := range s.RC {
		rc := &s.RC[i]
		for idx := 0; idx < rc.Type.Controllers(); idx++ {
			links = append(links, link(rc, &rc.Ctl[idx]))
		}
	}
	return links
}
