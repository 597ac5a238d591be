// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/coder/websocket"
)

// tail implements the tail subcommand: connect to the relay as a
// parent and print every notification as it arrives, one JSON object
// per line. Runs until interrupted or the relay closes the
// connection.
func (c *console) tail(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("tail takes no arguments")
	}
	if err := c.requireServer(); err != nil {
		return err
	}

	wsURL := strings.TrimRight(c.profile.Server, "/")
	wsURL = strings.Replace(wsURL, "http", "ws", 1)

	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to relay: %w", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	announcement, err := json.Marshal(map[string]string{"clientType": "parent"})
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, announcement); err != nil {
		return fmt.Errorf("announcing to relay: %w", err)
	}
	fmt.Fprintln(os.Stderr, "connected, streaming notifications (interrupt to stop)")

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		// Messages are single-line JSON already; print as-is.
		fmt.Println(string(data))
	}
}
