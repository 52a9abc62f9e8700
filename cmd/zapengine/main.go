// Package main is the entry point for the zapengine application.
package main

import (
	"os"

	"github.com/jmylchreest/zapengine/cmd/zapengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
