// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package hw

import (
	"errors"
	"time"
)

var ErrTimeout = errors.New("timeout")

// A Clock provides the delay primitive used by bounded polls.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

var RealClock Clock = realClock{}

// PollUntil calls done every interval until it returns true or more than
// timeout has elapsed. done is always sampled once more after the
// deadline so a slow sleeper can't miss a condition that became true.
func PollUntil(c Clock, timeout, interval time.Duration, done func() bool) error {
	start := c.Now()
	for {
		if done() {
			return nil
		}
		if c.Now().Sub(start) > timeout {
			if done() {
				return nil
			}
			return ErrTimeout
		}
		c.Sleep(interval)
	}
}
