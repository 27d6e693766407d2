// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package status

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/platinasystems/rclink/pciecore"
)

type fakeConn struct {
	sent    []string
	pending int
	hash    map[string]string
	failAt  int // fail the nth Send when non-zero
	closed  bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) Err() error { return nil }

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	return nil, errors.New("unexpected Do")
}

func (c *fakeConn) Send(cmd string, args ...interface{}) error {
	c.sent = append(c.sent, cmd)
	if c.failAt != 0 && len(c.sent) == c.failAt {
		return errors.New("broken pipe")
	}
	if cmd == "HSET" && len(args) == 3 {
		c.hash[fmt.Sprint(args[1])] = fmt.Sprint(args[2])
	}
	c.pending++
	return nil
}

func (c *fakeConn) Flush() error { return nil }

func (c *fakeConn) Receive() (interface{}, error) {
	if c.pending == 0 {
		return nil, errors.New("nothing pending")
	}
	c.pending--
	return int64(1), nil
}

type fixture struct {
	p     *Publisher
	conns []*fakeConn
	dials int
	fail  bool
	now   time.Time
}

func newFixture() *fixture {
	f := &fixture{now: time.Unix(1000, 0)}
	f.p = NewPublisher("", "")
	f.p.now = func() time.Time { return f.now }
	f.p.Dial = func() (redis.Conn, error) {
		f.dials++
		if f.fail {
			return nil, errors.New("connection refused")
		}
		c := &fakeConn{hash: make(map[string]string)}
		f.conns = append(f.conns, c)
		return c, nil
	}
	return f
}

func testLink(st pciecore.State) pciecore.Link {
	return pciecore.Link{
		Socket: 1, RC: 4, Ctl: 2, State: st, Active: true,
		MaxWidth: 8, MaxGen: pciecore.Gen4,
	}
}

func TestLinkID(t *testing.T) {
	a := LinkID(0, 1, 2)
	if a != LinkID(0, 1, 2) || a == LinkID(0, 1, 3) || len(a) != 36 {
		t.Error("wrong:", a)
	}
}

func TestPublishOnChange(t *testing.T) {
	f := newFixture()
	l := testLink(pciecore.WaitingLinkUp)
	if err := f.p.Publish(l); err != nil {
		t.Fatal(err)
	}
	c := f.conns[0]
	if len(c.sent) != 6 {
		t.Fatal("wrong:", c.sent)
	}
	want := map[string]string{
		"pcie.s1.rc4.c2.id":     LinkID(1, 4, 2),
		"pcie.s1.rc4.c2.state":  "waiting-link-up",
		"pcie.s1.rc4.c2.up":     "false",
		"pcie.s1.rc4.c2.max":    "x8 gen4",
		"pcie.s1.rc4.c2.cur":    "x0 gen0",
		"pcie.s1.rc4.c2.resets": "0",
	}
	if !reflect.DeepEqual(c.hash, want) {
		t.Error("wrong:", c.hash)
	}
	if err := f.p.Publish(l); err != nil || len(c.sent) != 6 {
		t.Error("wrong: republished", c.sent, err)
	}
	l.State = pciecore.Healthy
	l.LinkUp = true
	l.CurWidth, l.CurGen = 8, pciecore.Gen4
	f.p.Publish(l)
	if len(c.sent) != 9 || c.hash["pcie.s1.rc4.c2.cur"] != "x8 gen4" {
		t.Error("wrong:", c.sent, c.hash)
	}
	f.p.Close()
	if !c.closed {
		t.Error("wrong: not closed")
	}
}

func TestPublishBackoff(t *testing.T) {
	f := newFixture()
	f.fail = true
	l := testLink(pciecore.Validating)
	if err := f.p.Publish(l); err == nil {
		t.Fatal("wrong: no error")
	}
	if err := f.p.Publish(l); err != ErrBackoff || f.dials != 1 {
		t.Error("wrong:", err, f.dials)
	}
	f.now = f.now.Add(time.Second)
	f.fail = false
	if err := f.p.Publish(l); err != nil || f.dials != 2 {
		t.Fatal("wrong:", err, f.dials)
	}
	if len(f.conns[0].hash) != 6 {
		t.Error("wrong:", f.conns[0].hash)
	}
}

// A broken connection is dropped and the unpublished fields are sent
// again once reconnected.
func TestPublishReconnect(t *testing.T) {
	f := newFixture()
	l := testLink(pciecore.Validating)
	f.p.Publish(l)
	l.State = pciecore.Recovering
	l.Resets = 1
	f.conns[0].failAt = 7
	if err := f.p.Publish(l); err == nil {
		t.Fatal("wrong: no error")
	}
	if !f.conns[0].closed {
		t.Error("wrong: not closed")
	}
	f.now = f.now.Add(time.Minute)
	if err := f.p.Publish(l); err != nil {
		t.Fatal(err)
	}
	h := f.conns[1].hash
	if len(h) != 2 || h["pcie.s1.rc4.c2.state"] != "recovering" ||
		h["pcie.s1.rc4.c2.resets"] != "1" {
		t.Error("wrong:", h)
	}
}
