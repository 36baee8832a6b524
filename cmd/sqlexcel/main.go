// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Command sqlexcel runs the agents of the SQL to Excel pipeline, its web front
// end, and one-shot workflow runs.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
