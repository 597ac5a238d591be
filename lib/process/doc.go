// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for NestWatch
// binaries: fatal error reporting to stderr when the structured
// logger may not be initialized yet, and process exit after an
// unrecoverable error in main(). All other output in the server goes
// through the structured logger.
package process
