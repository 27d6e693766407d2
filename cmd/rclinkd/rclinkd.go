// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package rclinkd brings up the PCIe root complexes and serves their link
// status.
package rclinkd

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/rpc"
	"strconv"
	"sync"
	"time"

	"github.com/platinasystems/atsock"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/rclink/board"
	"github.com/platinasystems/rclink/cmd"
	"github.com/platinasystems/rclink/elib/hw"
	"github.com/platinasystems/rclink/internal/fdtgpio"
	"github.com/platinasystems/rclink/internal/sim"
	"github.com/platinasystems/rclink/lang"
	"github.com/platinasystems/rclink/pciecore"
	"github.com/platinasystems/rclink/status"
)

const (
	Name = "rclinkd"

	DtbDir = "/boot"

	republishInterval = 30 * time.Second
)

type Command struct {
	Info
	// Init runs once before Main for machine specific setup.
	Init func()
	init sync.Once

	stopOnce  sync.Once
	closeOnce sync.Once
	stop      chan struct{}
}

type Info struct {
	mutex sync.Mutex
	reply StatusReply
}

type StatusArgs struct{}

type StatusReply struct {
	Variant  string
	Done     bool
	Healthy  int
	Links    []pciecore.Link
	Segments []pciecore.Segment
}

// Status is the "Info.Status" rpc.
func (i *Info) Status(args StatusArgs, reply *StatusReply) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	*reply = i.reply
	reply.Links = append([]pciecore.Link(nil), i.reply.Links...)
	reply.Segments = append([]pciecore.Segment(nil), i.reply.Segments...)
	return nil
}

func (i *Info) observe(l pciecore.Link) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	for k, x := range i.reply.Links {
		if x.Socket == l.Socket && x.RC == l.RC && x.Ctl == l.Ctl {
			i.reply.Links[k] = l
			return
		}
	}
	i.reply.Links = append(i.reply.Links, l)
}

func (*Command) String() string { return Name }

func (*Command) Usage() string {
	return Name + " [-sim] [-v] [-dtb FILE | -eeprom-bus N -eeprom-addr N]" +
		" [-variant NAME] [-sockets N] [-redis ADDR] [-hash NAME]" +
		" [-perst gpio|cpld|sim] [-gpio-dtb FILE]" +
		" [-cpld-bus N] [-cpld-addr N]"
}

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "PCIe root complex link training daemon",
	}
}

func (*Command) Kind() cmd.Kind { return cmd.Daemon }

type config struct {
	sim      bool
	verbose  bool
	dtb      string
	gpioDtb  string
	variant  *pciecore.Variant
	sockets  int
	redis    string
	hash     string
	perst    string
	cpldBus  int
	cpldAddr int
	eeBus    int
	eeAddr   int
}

func parseConfig(args []string) (*config, error) {
	flag, args := flags.New(args, "-sim", "-v")
	parm, args := parms.New(args, "-dtb", "-gpio-dtb", "-variant",
		"-sockets", "-redis", "-hash", "-perst", "-cpld-bus",
		"-cpld-addr", "-eeprom-bus", "-eeprom-addr")
	if len(args) > 0 {
		return nil, fmt.Errorf("%v: unexpected", args)
	}
	cfg := &config{
		sim:     flag.ByName["-sim"],
		verbose: flag.ByName["-v"],
		dtb:     parm.ByName["-dtb"],
		gpioDtb: parm.ByName["-gpio-dtb"],
		redis:   parm.ByName["-redis"],
		hash:    parm.ByName["-hash"],
		perst:   parm.ByName["-perst"],
		eeBus:   -1,
	}
	var err error
	name := parm.ByName["-variant"]
	if len(name) == 0 {
		name = pciecore.VariantAltra.Name
	}
	if cfg.variant, err = pciecore.VariantByName(name); err != nil {
		return nil, err
	}
	for _, x := range []struct {
		name string
		v    *int
		dflt int
	}{
		{"-sockets", &cfg.sockets, 1},
		{"-cpld-bus", &cfg.cpldBus, 0},
		{"-cpld-addr", &cfg.cpldAddr, 0},
		{"-eeprom-bus", &cfg.eeBus, -1},
		{"-eeprom-addr", &cfg.eeAddr, 0x51},
	} {
		s := parm.ByName[x.name]
		if len(s) == 0 {
			*x.v = x.dflt
			continue
		}
		n, err := strconv.ParseInt(s, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", x.name, err)
		}
		*x.v = int(n)
	}
	if len(cfg.perst) == 0 {
		cfg.perst = "gpio"
		if cfg.sim {
			cfg.perst = "sim"
		}
	}
	switch cfg.perst {
	case "gpio", "cpld":
		if cfg.sim {
			return nil, fmt.Errorf("-perst %s: not with -sim", cfg.perst)
		}
	case "sim":
		if !cfg.sim {
			return nil, fmt.Errorf("-perst sim: needs -sim")
		}
	default:
		return nil, fmt.Errorf("-perst %s: unknown", cfg.perst)
	}
	return cfg, nil
}

func (cfg *config) params() (board.Params, error) {
	switch {
	case len(cfg.dtb) > 0:
		return board.LoadDTBFile(cfg.dtb)
	case cfg.eeBus >= 0:
		product, err := board.Identify(cfg.eeBus, cfg.eeAddr)
		if err != nil {
			return nil, err
		}
		return board.LoadDTBFile(board.DTBFile(DtbDir, product))
	}
	return board.Default(), nil
}

// engine is an initialized subsystem with the resources it holds.
type engine struct {
	*pciecore.Subsystem
	pub    *status.Publisher
	closer io.Closer
}

func (e *engine) Close() (err error) {
	if e.pub != nil {
		err = e.pub.Close()
	}
	if e.closer != nil {
		if xerr := e.closer.Close(); err == nil {
			err = xerr
		}
	}
	return
}

func newEngine(cfg *config, observe func(pciecore.Link)) (*engine, error) {
	p, err := cfg.params()
	if err != nil {
		return nil, err
	}
	e := &engine{
		Subsystem: &pciecore.Subsystem{
			Variant: cfg.variant,
			Sockets: cfg.sockets,
		},
	}
	var (
		plat   *sim.Platform
		sp     *board.SimPerst
		driver board.PerstDriver
	)
	if cfg.sim {
		plat = sim.New()
		sp = &board.SimPerst{}
		e.Bus, e.Clock, driver = plat, plat.Clock, sp
	} else {
		m, err := hw.OpenDevmem("")
		if err != nil {
			return nil, err
		}
		e.Bus, e.Clock, e.closer = m, hw.RealClock, m
		switch cfg.perst {
		case "gpio":
			if len(cfg.gpioDtb) > 0 {
				b, err := ioutil.ReadFile(cfg.gpioDtb)
				if err == nil {
					err = fdtgpio.Load(b)
				}
				if err != nil {
					e.Close()
					return nil, err
				}
			}
			driver = &board.GpioPerst{}
		case "cpld":
			driver = &board.CpldPerst{Bus: cfg.cpldBus, Addr: cfg.cpldAddr}
		}
	}
	e.Board = board.New(p, driver, e.Clock)
	if len(cfg.redis) > 0 {
		e.pub = status.NewPublisher(cfg.redis, cfg.hash)
	}
	e.OnState = func(l pciecore.Link) {
		if e.pub != nil {
			e.pub.Observe(l)
		}
		if observe != nil {
			observe(l)
		}
	}
	if err = e.Init(); err != nil {
		e.Close()
		return nil, err
	}
	if cfg.sim {
		sp.Populate(plat, e.Subsystem, sim.Endpoint{Width: 16, Gen: 4})
	}
	return e, nil
}

// bringUp runs the subsystem to completion.
func (c *Command) bringUp(e *engine) {
	n := e.SetupRootBridges()
	log.Printf("info", "%d root complexes set up", n)
	healthy := e.Run()
	segs := e.Finalize()
	log.Printf("note", "%d links healthy, %d segments", healthy, len(segs))
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.reply.Done = true
	c.reply.Healthy = healthy
	c.reply.Segments = segs
}

func (c *Command) stopch() chan struct{} {
	c.stopOnce.Do(func() { c.stop = make(chan struct{}) })
	return c.stop
}

func (c *Command) Main(args ...string) error {
	if c.Init != nil {
		c.init.Do(c.Init)
	}
	stop := c.stopch()
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}
	e, err := newEngine(cfg, c.observe)
	if err != nil {
		return err
	}
	defer e.Close()

	c.mutex.Lock()
	c.reply = StatusReply{
		Variant: cfg.variant.Name,
		Links:   e.Snapshot(),
	}
	c.mutex.Unlock()

	srvr, err := atsock.NewRpcServer(Name)
	if err != nil {
		return err
	}
	defer srvr.Close()
	rpc.Register(&c.Info)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.bringUp(e)
	}()
	t := time.NewTicker(republishInterval)
	defer t.Stop()
	return c.serve(e, stop, done, t.C, cfg.verbose)
}

// serve republishes link status until stop. A bring-up in progress can't
// be cancelled so serve waits for done before returning.
func (c *Command) serve(e *engine, stop, done <-chan struct{},
	tick <-chan time.Time, verbose bool) error {
	for {
		select {
		case <-stop:
			if done != nil {
				log.Print("info", "waiting for bring-up to finish")
				<-done
			}
			return nil
		case <-done:
			done = nil
		case <-tick:
			if e.pub == nil {
				continue
			}
			var reply StatusReply
			c.Status(StatusArgs{}, &reply)
			if err := e.pub.Publish(reply.Links...); err != nil &&
				err != status.ErrBackoff && verbose {
				log.Print("warn", err)
			}
		}
	}
}

func (c *Command) Close() error {
	stop := c.stopch()
	c.closeOnce.Do(func() { close(stop) })
	return nil
}
