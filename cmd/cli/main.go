// Package main is the entry point for the fairgate CLI binary.
package main

import (
	"os"

	cli "fairgate/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
