// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package adminapi

import (
	"context"
	"fmt"
	"net"

	"github.com/nestwatch-project/nestwatch/lib/codec"
)

// responseEnvelope mirrors the server's Response without importing the
// server package.
type responseEnvelope struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Query sends one request to the admin socket and decodes the
// response's data field into out. A nil out discards the data field.
// Server-side failures come back as errors carrying the server's
// message.
func Query(ctx context.Context, socketPath string, request any, out any) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connecting to admin socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("sending admin request: %w", err)
	}

	var resp responseEnvelope
	if err := codec.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("reading admin response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("admin request failed: %s", resp.Error)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := codec.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decoding admin response data: %w", err)
		}
	}
	return nil
}

// Status fetches the relay's status snapshot.
func Status(ctx context.Context, socketPath string) (StatusResponse, error) {
	var status StatusResponse
	err := Query(ctx, socketPath, Request{Action: ActionStatus}, &status)
	return status, err
}
