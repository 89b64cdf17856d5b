// Package main is the entry point for the loom CLI.
package main

import (
	"github.com/tOgg1/loom/internal/cli"
)

// version is set by goreleaser.
var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
