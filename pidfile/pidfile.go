// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pidfile records daemon pids in /run/rclink/pids
package pidfile

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var Dir = "/run/rclink/pids"

// New records the pid of this process in Dir/NAME and returns the file
// name. It fails if another live process holds the name.
func New(name string) (string, error) {
	fn := filepath.Join(Dir, name)
	if pid, err := Read(fn); err == nil && pid != os.Getpid() && alive(pid) {
		return "", fmt.Errorf("%s: running as %d", name, pid)
	}
	if err := os.MkdirAll(Dir, 0755); err != nil {
		return "", err
	}
	err := ioutil.WriteFile(fn, []byte(fmt.Sprintln(os.Getpid())), 0644)
	if err != nil {
		return "", err
	}
	return fn, nil
}

func Read(fn string) (int, error) {
	b, err := ioutil.ReadFile(fn)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

func alive(pid int) bool {
	_, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	return err == nil
}
