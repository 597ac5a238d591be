// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// export implements the export subcommand: every file in the device's
// storage listing is fetched and packed into one .tar.zst archive.
// The archive is written atomically — a partial fetch never leaves a
// truncated archive at the target path.
func (c *console) export(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: export <archive.tar.zst>")
	}
	if err := c.requireServer(); err != nil {
		return err
	}
	target := args[0]

	entries, err := c.fetchListing(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("device storage is empty, nothing to export")
	}

	tmp, err := os.CreateTemp(".", "nestwatch-export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	encoder, err := zstd.NewWriter(tmp)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	tw := tar.NewWriter(encoder)

	now := time.Now()
	for _, entry := range entries {
		var buf bytes.Buffer
		if err := c.fetchArtifact(ctx, entry.Name, &buf); err != nil {
			return err
		}
		header := &tar.Header{
			Name:    entry.Name,
			Mode:    0o644,
			Size:    int64(buf.Len()),
			ModTime: now,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("writing archive header for %s: %w", entry.Name, err)
		}
		if _, err := tw.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("writing %s to archive: %w", entry.Name, err)
		}
		fmt.Fprintf(os.Stderr, "archived %s (%d bytes)\n", entry.Name, buf.Len())
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalizing compression: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("moving archive into place: %w", err)
	}

	fmt.Fprintf(os.Stderr, "exported %d files to %s\n", len(entries), target)
	return nil
}
