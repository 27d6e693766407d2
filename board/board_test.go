// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package board

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/platinasystems/i2c"
	"github.com/platinasystems/rclink/elib/hw"
	"github.com/platinasystems/rclink/internal/sim"
	"github.com/platinasystems/rclink/pciecore"
)

type perstEvent struct {
	at   time.Duration
	ctl  int
	high bool
}

type recorder struct {
	clock  *sim.Clock
	events []perstEvent
	done   int
	err    error
}

func (r *recorder) SetPerst(socket, rc, ctl int, high bool) error {
	r.events = append(r.events, perstEvent{r.clock.Elapsed(), ctl, high})
	return r.err
}

type doneRecorder struct{ recorder }

func (r *doneRecorder) PerstDone(socket, rc, ctl int) error {
	r.done++
	return nil
}

func TestPerstHold(t *testing.T) {
	c := sim.NewClock()
	r := &recorder{clock: c}
	b := New(nil, r, c)
	if err := b.Perst(0, 0, 1, false); err != nil {
		t.Fatal(err)
	}
	c.Sleep(30 * time.Millisecond)
	if err := b.Perst(0, 0, 1, true); err != nil {
		t.Fatal(err)
	}
	// a release long after the assert doesn't wait
	b.Perst(0, 0, 2, false)
	c.Sleep(time.Second)
	b.Perst(0, 0, 2, true)
	// nor does one without an assert
	b.Perst(0, 0, 3, true)
	want := []perstEvent{
		{0, 1, false},
		{PerstHold, 1, true},
		{PerstHold, 2, false},
		{PerstHold + time.Second, 2, true},
		{PerstHold + time.Second, 3, true},
	}
	if !reflect.DeepEqual(r.events, want) {
		t.Error("wrong:", r.events)
	}
}

func TestPerstErrors(t *testing.T) {
	b := New(nil, nil, nil)
	if err := b.Perst(0, 0, 0, false); err == nil {
		t.Error("wrong: no driver")
	}
	r := &recorder{clock: sim.NewClock(), err: errors.New("stuck")}
	b = New(nil, r, r.clock)
	if err := b.Perst(0, 0, 0, false); err != r.err {
		t.Error("wrong:", err)
	}
	if err := b.PerstDone(0, 0, 0); err != nil {
		t.Error("unexpected:", err)
	}
	d := &doneRecorder{recorder{clock: r.clock}}
	b = New(nil, d, d.clock)
	b.PerstDone(0, 0, 0)
	if d.done != 1 {
		t.Error("wrong: done", d.done)
	}
}

func TestRootComplex(t *testing.T) {
	b := New(Default(), nil, nil)
	if p := b.RootComplex(0, 0); !p.Active || !p.Ctl[0].Active ||
		p.Ctl[0].Gen3Preset != 5 {
		t.Errorf("wrong: %+v", p)
	}
	p := b.RootComplex(0, 3)
	if p.Active || p.Ctl[0].Gen3Preset != pciecore.PresetInvalid {
		t.Errorf("wrong: %+v", p)
	}
}

// The reference board resolves without uncovered controllers.
func TestDefault(t *testing.T) {
	plat := sim.New()
	s := &pciecore.Subsystem{
		Variant: pciecore.VariantAltraMax,
		Bus:     plat,
		Clock:   plat.Clock,
		Board:   New(Default(), &SimPerst{}, plat.Clock),
		Sockets: 2,
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	for k, p := range Default() {
		rc := &s.RC[k.Socket*pciecore.MaxRootComplexes+k.RC]
		for i, bc := range p.Ctl {
			if bc.Active != rc.Ctl[i].Active {
				t.Errorf("wrong: %v pcie%d", k, i)
			}
		}
	}
	if c := &s.RC[4].Ctl[6]; c.MaxWidth != 1 || c.MaxGen != pciecore.Gen2 {
		t.Error("wrong:", c.MaxWidth, c.MaxGen)
	}
}

func TestSimulatedBoard(t *testing.T) {
	plat := sim.New()
	sp := &SimPerst{}
	s := &pciecore.Subsystem{
		Variant: pciecore.VariantAltraMax,
		Bus:     plat,
		Clock:   plat.Clock,
		Board:   New(Default(), sp, plat.Clock),
		Sockets: 2,
		Fatal:   func(string, ...interface{}) { t.Error("fatal") },
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	sp.Populate(plat, s, sim.Endpoint{Width: 16, Gen: 4})
	if n := s.SetupRootBridges(); n != len(Default()) {
		t.Fatal("wrong: root bridges", n)
	}
	n := 0
	for _, c := range Default() {
		for _, bc := range c.Ctl {
			if bc.Active {
				n++
			}
		}
	}
	if healthy := s.Run(); healthy != n {
		t.Error("wrong: healthy", healthy, "of", n)
	}
	if err := sp.SetPerst(0, 3, 0, true); err == nil {
		t.Error("wrong: perst on missing port")
	}
}

func TestGpioPerst(t *testing.T) {
	g := &GpioPerst{}
	if got := g.pinName(1, 4, 6); got != "PCIE_S1_RC4_C6_PERST_L" {
		t.Error("wrong:", got)
	}
	g.PinFormat = "P%d%d%d"
	if err := g.SetPerst(0, 1, 2, true); err == nil ||
		err.Error() != "P012: not found" {
		t.Error("wrong:", err)
	}
}

func TestCpldPerst(t *testing.T) {
	regs := map[uint8]uint8{0x2c: 0x0f}
	c := &CpldPerst{Bus: 1, Addr: 0x31}
	c.do = func(rw i2c.RW, reg uint8, data *i2c.SMBusData) error {
		if rw == i2c.Read {
			data[0] = regs[reg]
		} else {
			regs[reg] = data[0]
		}
		return nil
	}
	c.SetPerst(1, 4, 2, false)
	c.SetPerst(1, 4, 6, true)
	c.SetPerst(0, 0, 0, true)
	want := map[uint8]uint8{0x2c: 0x4b, 0x20: 0x01}
	if !reflect.DeepEqual(regs, want) {
		t.Errorf("wrong: %x", regs)
	}
	c.do = func(i2c.RW, uint8, *i2c.SMBusData) error {
		return hw.ErrTimeout
	}
	if err := c.SetPerst(0, 0, 0, false); err == nil {
		t.Error("wrong: no error")
	}
}

func TestProductName(t *testing.T) {
	for _, x := range []struct{ in, want string }{
		{"Mt. Collins  2U", "mt-collins-2u"},
		{"  ref_board ", "ref-board"},
		{"--", ""},
	} {
		if got := productName(x.in); got != x.want {
			t.Error("wrong:", x.in, got)
		}
	}
	if got := DTBFile("/boot", "ref-board"); got != "/boot/ref-board.dtb" {
		t.Error("wrong:", got)
	}
}
