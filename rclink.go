// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package rclink dispatches the commands of the PCIe root complex link
// engine.
package rclink

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/rclink/cmd"
	"github.com/platinasystems/rclink/lang"
	"github.com/platinasystems/rclink/pidfile"
)

var Exit = os.Exit

type Goes struct {
	NAME    string
	USAGE   string
	APROPOS lang.Alt
	MAN     lang.Alt
	ByName  map[string]cmd.Cmd

	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// New returns a dispatcher of the given commands.
func New(name string, cmds ...cmd.Cmd) *Goes {
	g := &Goes{
		NAME:   name,
		ByName: make(map[string]cmd.Cmd),
	}
	for _, v := range cmds {
		k := v.String()
		if _, found := g.ByName[k]; found {
			panic(fmt.Errorf("%s: duplicate", k))
		}
		g.ByName[k] = v
	}
	return g
}

func (g *Goes) String() string { return g.NAME }

func (g *Goes) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// Names of the visible commands in sorted order.
func (g *Goes) Names() []string {
	names := make([]string, 0, len(g.ByName))
	for k, v := range g.ByName {
		if !cmd.WhatKind(v).IsHidden() {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Main runs the args[0] command; without args, it runs os.Args and exits
// on error.
//
// "-h", "-help", "--help", "-apropos", "-man" and "-usage" following the
// command name print its text instead.
func (g *Goes) Main(args ...string) (err error) {
	if len(args) == 0 {
		args = os.Args[1:]
		defer func() {
			if err != nil && err != io.EOF {
				fmt.Fprintf(os.Stderr, "%s: %v\n",
					filepath.Base(os.Args[0]), err)
				Exit(1)
			}
		}()
	}
	if len(args) == 0 {
		return g.help()
	}
	name := args[0]
	args = args[1:]
	switch name {
	case "apropos":
		return g.apropos(args...)
	case "help", "-h", "-help", "--help":
		return g.help(args...)
	case "man":
		return g.man(args...)
	case "usage":
		return g.usage(args...)
	}
	flag, args := flags.New(args,
		[]string{"-h", "-help", "--help"},
		[]string{"-apropos", "--apropos"},
		[]string{"-man", "--man"},
		[]string{"-usage", "--usage"})
	switch {
	case flag.ByName["-h"]:
		return g.help(name)
	case flag.ByName["-apropos"]:
		return g.apropos(name)
	case flag.ByName["-man"]:
		return g.man(name)
	case flag.ByName["-usage"]:
		return g.usage(name)
	}
	v := g.ByName[name]
	if v == nil {
		return fmt.Errorf("%s: command not found", name)
	}
	if !cmd.WhatKind(v).IsDaemon() {
		return v.Main(args...)
	}
	return g.daemon(v, args...)
}

// daemon runs v in the foreground until it returns or SIGTERM closes it.
func (g *Goes) daemon(v cmd.Cmd, args ...string) error {
	pidfn, err := pidfile.New(v.String())
	if err != nil {
		return err
	}
	defer os.Remove(pidfn)
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigch)
	errch := make(chan error, 1)
	go func() { errch <- v.Main(args...) }()
	select {
	case err := <-errch:
		if err != nil {
			log.Print("daemon", "err", v, ": ", err)
		}
		return err
	case sig := <-sigch:
		log.Print("daemon", "info", v, ": ", sig)
		if method, found := v.(io.Closer); found {
			method.Close()
		}
		return <-errch
	}
}
