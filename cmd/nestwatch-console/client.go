// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/nestwatch-project/nestwatch/lib/netutil"
	"github.com/nestwatch-project/nestwatch/lib/schema"
)

// apiURL builds a relay URL with the profile's device attached as a
// query parameter when set.
func (c *console) apiURL(path string) string {
	u := strings.TrimRight(c.profile.Server, "/") + path
	if c.profile.Device != "" {
		u += "?device=" + url.QueryEscape(c.profile.Device)
	}
	return u
}

// fetchListing retrieves the device's storage listing.
func (c *console) fetchListing(ctx context.Context) ([]schema.StorageEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("/api/storage"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying storage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storage query failed: %s: %s", resp.Status, netutil.ErrorBody(resp.Body))
	}

	var entries []schema.StorageEntry
	if err := netutil.DecodeResponse(resp.Body, &entries); err != nil {
		return nil, fmt.Errorf("decoding storage listing: %w", err)
	}
	return entries, nil
}

// fetchArtifact streams one stored file into w.
func (c *console) fetchArtifact(ctx context.Context, filename string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("/storage/"+url.PathEscape(filename)), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: %s: %s", filename, resp.Status, netutil.ErrorBody(resp.Body))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("downloading %s: %w", filename, err)
	}
	return nil
}

// stdoutIsTerminal decides the default output format: tables for a
// human at a terminal, JSON for pipes.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// list implements the list subcommand.
func (c *console) list(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("list takes no arguments")
	}
	if err := c.requireServer(); err != nil {
		return err
	}

	entries, err := c.fetchListing(ctx)
	if err != nil {
		return err
	}

	if c.json || !stdoutIsTerminal() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tSIZE")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", entry.Name, entry.Type, entry.Size)
	}
	return tw.Flush()
}

// download implements the download subcommand. The file lands in the
// current directory under its storage name unless a target is given.
func (c *console) download(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: download <filename> [target]")
	}
	if err := c.requireServer(); err != nil {
		return err
	}

	filename := args[0]
	target := filename
	if len(args) == 2 {
		target = args[1]
	}

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if err := c.fetchArtifact(ctx, filename, out); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "downloaded %s\n", target)
	return nil
}

// command implements the command subcommand.
func (c *console) command(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: command <command>")
	}
	if err := c.requireServer(); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"command": args[0]})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.profile.Server, "/")+"/api/command", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatching command: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("command dispatch failed: %s: %s", resp.Status, netutil.ErrorBody(resp.Body))
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := netutil.DecodeResponse(resp.Body, &result); err != nil {
		return fmt.Errorf("decoding command response: %w", err)
	}
	fmt.Println(result.Status)
	return nil
}
