// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for NestWatch
// binaries.
//
// Version information is injected at build time via -ldflags, for
// example:
//
//	go build -ldflags "-X github.com/nestwatch-project/nestwatch/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
