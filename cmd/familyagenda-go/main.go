// Package main is the entrypoint for the familyagenda-go server.
package main

import (
	"os"

	"github.com/MahdiBaghbani/familyagenda-go/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
