// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pciecore

import (
	"errors"

	"github.com/platinasystems/rclink/elib/hw"
)

var (
	ErrTimeout     = hw.ErrTimeout
	ErrDevice      = errors.New("device error")
	ErrCapNotFound = errors.New("capability not found")
	ErrInactive    = errors.New("root complex inactive")
	ErrFinalized   = errors.New("root complex list finalized")
	ErrRange       = errors.New("out of range")
)
