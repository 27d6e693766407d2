// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package linkstatus prints the PCIe links reported by rclinkd.
package linkstatus

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/atsock"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/rclink/cmd/rclinkd"
	"github.com/platinasystems/rclink/lang"
	"github.com/platinasystems/rclink/pciecore"
)

const Name = "status"

type Command struct{}

func (Command) String() string { return Name }

func (Command) Usage() string { return Name + " [-a] [-s]" }

func (Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "print PCIe link status",
	}
}

func (Command) Man() lang.Alt {
	return lang.Alt{
		lang.EnUS: `
OPTIONS
	-a	include inactive controllers
	-s	include the finalized segments`,
	}
}

func (Command) Main(args ...string) error {
	flag, args := flags.New(args, "-a", "-s")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	cl, err := atsock.NewRpcClient(rclinkd.Name)
	if err != nil {
		return err
	}
	defer cl.Close()
	var reply rclinkd.StatusReply
	err = cl.Call("Info.Status", rclinkd.StatusArgs{}, &reply)
	if err != nil {
		return err
	}
	header := isatty.IsTerminal(os.Stdout.Fd())
	write(os.Stdout, &reply, flag.ByName["-a"], flag.ByName["-s"], header)
	return nil
}

func write(w io.Writer, r *rclinkd.StatusReply, all, segs, header bool) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	defer tw.Flush()
	if header {
		done := "training"
		if r.Done {
			done = fmt.Sprintf("done, %d healthy", r.Healthy)
		}
		fmt.Fprintf(tw, "# %s: %s\n", r.Variant, done)
		fmt.Fprintln(tw, "LINK\tSEG\tSTATE\tWIDTH\tSPEED\tMAX\tRESETS")
	}
	for _, l := range r.Links {
		if !l.Active && !all {
			continue
		}
		fmt.Fprintf(tw, "%d.%d.%d\t%d\t%v\t%s\t%s\tx%d %v\t%d\n",
			l.Socket, l.RC, l.Ctl, l.Segment, l.State,
			width(l), speed(l), l.MaxWidth, l.MaxGen, l.Resets)
	}
	if !segs {
		return
	}
	if header {
		fmt.Fprintln(tw, "SEG\tRC\tMMCFG\tTCU\tBUSES")
	}
	for _, s := range r.Segments {
		fmt.Fprintf(tw, "%d\t%d.%d\t%#x\t%#x\t%02x-%02x\n",
			s.Segment, s.Socket, s.ID, s.MmcfgBase, s.TcuBase,
			s.BusStart, s.BusEnd)
	}
}

func width(l pciecore.Link) string {
	if !l.LinkUp {
		return "-"
	}
	return fmt.Sprint("x", l.CurWidth)
}

func speed(l pciecore.Link) string {
	if !l.LinkUp {
		return "-"
	}
	return l.CurGen.String()
}
