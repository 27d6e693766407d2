// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"time"

	"github.com/platinasystems/log"
)

const (
	MaxReinit = 3
	PollTick  = time.Second
)

// Run polls for link up once per PollTick for at most MaxReinit rounds,
// re-initializing the controllers that missed a round. Controllers that
// aren't healthy after the last round are Failed. It returns the number
// of healthy controllers.
func (s *Subsystem) Run() (healthy int) {
	for round := 1; round <= MaxReinit; round++ {
		s.Clock.Sleep(PollTick)
		pending := s.UpdateLink()
		log.Printf("info", "round %d: %d pending", round, pending)
		if pending == 0 || round == MaxReinit {
			break
		}
		for i := range s.RC {
			rc := &s.RC[i]
			for _, idx := range rc.failed {
				log.Printf("warn", "%v: no link, reinit", &rc.Ctl[idx])
				if err := s.SetupRootComplex(i, true, idx); err != nil {
					log.Print("err", err)
				}
			}
		}
	}
	for i := range s.RC {
		rc := &s.RC[i]
		for idx := 0; idx < rc.Type.Controllers(); idx++ {
			c := &rc.Ctl[idx]
			switch {
			case !c.Active:
			case c.State == Healthy:
				healthy++
			case c.State != Failed:
				log.Printf("err", "%v: no link", c)
				c.LinkUp = false
				s.setState(rc, c, Failed)
			}
		}
	}
	return
}
