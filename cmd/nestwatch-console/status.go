// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/nestwatch-project/nestwatch/lib/adminapi"
)

// status implements the status subcommand: query the relay's local
// admin socket and print the snapshot. Only works on the relay host,
// by design — the admin surface never leaves the machine.
func (c *console) status(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("status takes no arguments")
	}
	if c.profile.AdminSocket == "" {
		return fmt.Errorf("no admin socket configured; set \"adminSocket\" in the profile")
	}

	snapshot, err := adminapi.Status(ctx, c.profile.AdminSocket)
	if err != nil {
		return err
	}

	if c.json || !stdoutIsTerminal() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snapshot)
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "version\t%s\n", snapshot.Version)
	fmt.Fprintf(tw, "uptime\t%ds\n", snapshot.UptimeSeconds)
	fmt.Fprintf(tw, "children\t%d\n", snapshot.Children)
	fmt.Fprintf(tw, "parents\t%d\n", snapshot.Parents)
	fmt.Fprintf(tw, "unassigned\t%d\n", snapshot.Unassigned)
	fmt.Fprintf(tw, "telemetry records\t%d\n", snapshot.TelemetryRecords)
	fmt.Fprintf(tw, "media artifacts\t%d\n", snapshot.MediaArtifacts)
	fmt.Fprintf(tw, "commands dispatched\t%d\n", snapshot.CommandsDispatched)
	fmt.Fprintf(tw, "signals relayed\t%d\n", snapshot.SignalsRelayed)
	fmt.Fprintf(tw, "child announcements\t%d\n", snapshot.ChildAnnouncements)
	fmt.Fprintf(tw, "dropped sends\t%d\n", snapshot.DroppedSends)
	return tw.Flush()
}
