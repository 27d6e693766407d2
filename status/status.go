// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package status publishes PCIe link state to a redis hash.
package status

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/pciecore"
	uuid "github.com/satori/go.uuid"
)

const (
	DefaultAddr = "127.0.0.1:6379"
	DefaultHash = "platina"

	dialTimeout = 500 * time.Millisecond
)

var ErrBackoff = errors.New("redis: waiting to reconnect")

// LinkID is a stable identifier of a controller slot.
func LinkID(socket, rc, ctl int) string {
	name := fmt.Sprintf("pcie://%d/%d/%d", socket, rc, ctl)
	return uuid.NewV5(uuid.NamespaceURL, name).String()
}

func prefix(l pciecore.Link) string {
	return fmt.Sprintf("pcie.s%d.rc%d.c%d.", l.Socket, l.RC, l.Ctl)
}

// Fields are the hash fields and values of one link.
func Fields(l pciecore.Link) map[string]string {
	p := prefix(l)
	return map[string]string{
		p + "id":     LinkID(l.Socket, l.RC, l.Ctl),
		p + "state":  l.State.String(),
		p + "up":     strconv.FormatBool(l.LinkUp),
		p + "max":    fmt.Sprintf("x%d %v", l.MaxWidth, l.MaxGen),
		p + "cur":    fmt.Sprintf("x%d %v", l.CurWidth, l.CurGen),
		p + "resets": strconv.Itoa(l.Resets),
	}
}

// Publisher sets the hash fields of links whose values changed since
// they were last published. Failed connections are retried no sooner
// than the backoff allows; changes made meanwhile are published after
// reconnecting.
type Publisher struct {
	Addr string
	Hash string
	// Dial defaults to a tcp connection to Addr.
	Dial func() (redis.Conn, error)

	mu    sync.Mutex
	conn  redis.Conn
	last  map[string]string
	b     backoff.Backoff
	retry time.Time
	now   func() time.Time
}

func NewPublisher(addr, hash string) *Publisher {
	if addr == "" {
		addr = DefaultAddr
	}
	if hash == "" {
		hash = DefaultHash
	}
	return &Publisher{Addr: addr, Hash: hash}
}

func (p *Publisher) init() {
	if p.last != nil {
		return
	}
	p.last = make(map[string]string)
	p.b = backoff.Backoff{
		Min:    1 * time.Second,
		Max:    60 * time.Second,
		Factor: 2,
		Jitter: false,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.Dial == nil {
		p.Dial = func() (redis.Conn, error) {
			return redis.Dial("tcp", p.Addr,
				redis.DialConnectTimeout(dialTimeout))
		}
	}
}

func (p *Publisher) connect() error {
	if p.conn != nil {
		return nil
	}
	if p.now().Before(p.retry) {
		return ErrBackoff
	}
	conn, err := p.Dial()
	if err != nil {
		p.retry = p.now().Add(p.b.Duration())
		return err
	}
	p.b.Reset()
	p.conn = conn
	return nil
}

func (p *Publisher) drop() {
	p.conn.Close()
	p.conn = nil
	p.retry = p.now().Add(p.b.Duration())
}

// Publish the changed fields of links.
func (p *Publisher) Publish(links ...pciecore.Link) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	changed := make(map[string]string)
	for _, l := range links {
		for k, v := range Fields(l) {
			if old, found := p.last[k]; !found || old != v {
				changed[k] = v
			}
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if err := p.connect(); err != nil {
		return err
	}
	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.conn.Send("HSET", p.Hash, k, changed[k]); err != nil {
			p.drop()
			return err
		}
	}
	if err := p.conn.Flush(); err != nil {
		p.drop()
		return err
	}
	for _, k := range keys {
		if _, err := p.conn.Receive(); err != nil {
			p.drop()
			return err
		}
		p.last[k] = changed[k]
	}
	return nil
}

// Observe is a pciecore.Subsystem OnState hook; failures are logged.
func (p *Publisher) Observe(l pciecore.Link) {
	if err := p.Publish(l); err != nil && err != ErrBackoff {
		log.Print("warn", "status: ", err)
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
