// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// nestwatch-console is the operator's command-line client for a
// NestWatch relay. It covers the day-to-day operations the web
// dashboard offers, plus ones only useful from a terminal: streaming
// live notifications and exporting a device's storage as an archive.
//
// Usage:
//
//	nestwatch-console [flags] <subcommand> [args]
//
// Subcommands:
//
//	list              list the device's stored files
//	download <file>   download one stored file
//	export <path>     export the device's storage as a .tar.zst archive
//	command <cmd>     dispatch a command to connected child devices
//	tail              stream live parent notifications to stdout
//	status            query the relay's admin socket for status
//	version           print version information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nestwatch-project/nestwatch/lib/process"
	"github.com/nestwatch-project/nestwatch/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("nestwatch-console", pflag.ContinueOnError)
	flags.SetInterspersed(false)

	profilePath := flags.StringP("profile", "p", "", "path to the console profile (default ~/.config/nestwatch/console.jsonc)")
	server := flags.String("server", "", "relay base URL (overrides the profile)")
	device := flags.String("device", "", "device ID (overrides the profile)")
	jsonOut := flags.Bool("json", false, "force JSON output")

	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: nestwatch-console [flags] <list|download|export|command|tail|status|version> [args]")
		flags.PrintDefaults()
		return fmt.Errorf("missing subcommand")
	}

	if rest[0] == "version" {
		version.Print("nestwatch-console")
		return nil
	}

	profile, err := loadProfile(*profilePath)
	if err != nil {
		return err
	}
	if *server != "" {
		profile.Server = *server
	}
	if *device != "" {
		profile.Device = *device
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	console := &console{
		profile: profile,
		json:    *jsonOut,
	}

	subcommand, subargs := rest[0], rest[1:]
	switch subcommand {
	case "list":
		return console.list(ctx, subargs)
	case "download":
		return console.download(ctx, subargs)
	case "export":
		return console.export(ctx, subargs)
	case "command":
		return console.command(ctx, subargs)
	case "tail":
		return console.tail(ctx, subargs)
	case "status":
		return console.status(ctx, subargs)
	default:
		return fmt.Errorf("unknown subcommand %q", subcommand)
	}
}

// console carries the resolved profile and output preferences shared
// by every subcommand.
type console struct {
	profile *Profile
	json    bool
}

// requireServer fails early for subcommands that talk to the relay's
// HTTP or WebSocket surface.
func (c *console) requireServer() error {
	if c.profile.Server == "" {
		return fmt.Errorf("no relay server configured; set \"server\" in the profile or pass --server")
	}
	return nil
}
