// Package main is the entry point for the s3check conformance checker.
package main

import (
	"os"

	"github.com/kumasuke/s3check/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
