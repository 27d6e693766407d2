// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package rclinkd

import (
	"testing"
	"time"

	"github.com/platinasystems/rclink/pciecore"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.sim || cfg.perst != "gpio" || cfg.sockets != 1 ||
		cfg.variant != pciecore.VariantAltra || cfg.eeBus != -1 ||
		cfg.eeAddr != 0x51 {
		t.Errorf("wrong: %+v", cfg)
	}
	cfg, err = parseConfig([]string{"-sim", "-sockets", "2",
		"-variant", pciecore.VariantAltraMax.Name, "-cpld-addr", "0x31"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.sim || cfg.perst != "sim" || cfg.sockets != 2 ||
		cfg.variant != pciecore.VariantAltraMax || cfg.cpldAddr != 0x31 {
		t.Errorf("wrong: %+v", cfg)
	}
	for _, args := range [][]string{
		{"extra"},
		{"-variant", "nosuch"},
		{"-sockets", "two"},
		{"-perst", "sim"},
		{"-sim", "-perst", "cpld"},
		{"-perst", "carrier-pigeon"},
	} {
		if _, err := parseConfig(args); err == nil {
			t.Error("wrong: no error for", args)
		}
	}
}

func TestSimBringUp(t *testing.T) {
	cfg, err := parseConfig([]string{"-sim", "-sockets", "2",
		"-variant", pciecore.VariantAltraMax.Name})
	if err != nil {
		t.Fatal(err)
	}
	c := &Command{}
	e, err := newEngine(cfg, c.observe)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	e.Fatal = func(string, ...interface{}) { t.Error("fatal") }
	c.reply = StatusReply{Variant: cfg.variant.Name, Links: e.Snapshot()}
	c.bringUp(e)

	var reply StatusReply
	if err := c.Status(StatusArgs{}, &reply); err != nil {
		t.Fatal(err)
	}
	if !reply.Done || reply.Variant != pciecore.VariantAltraMax.Name {
		t.Errorf("wrong: %+v", reply)
	}
	active := 0
	for _, l := range reply.Links {
		if !l.Active {
			continue
		}
		active++
		if l.State != pciecore.Healthy || !l.LinkUp {
			t.Error("wrong:", l)
		}
	}
	if active == 0 || reply.Healthy != active {
		t.Error("wrong: healthy", reply.Healthy, "of", active)
	}
	if len(reply.Segments) == 0 {
		t.Error("wrong: no segments")
	}
	reply.Links[0].Resets = 99
	var again StatusReply
	c.Status(StatusArgs{}, &again)
	if again.Links[0].Resets == 99 {
		t.Error("wrong: status shares links")
	}
}

func TestCloseWaitsForBringUp(t *testing.T) {
	c := &Command{}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	c.Close()
	done := make(chan struct{})
	ret := make(chan error, 1)
	go func() {
		ret <- c.serve(&engine{}, c.stopch(), done, nil, false)
	}()
	select {
	case <-ret:
		t.Fatal("wrong: returned during bring-up")
	case <-time.After(20 * time.Millisecond):
	}
	close(done)
	select {
	case err := <-ret:
		if err != nil {
			t.Error(err)
		}
	case <-time.After(time.Second):
		t.Error("wrong: still serving")
	}
}
