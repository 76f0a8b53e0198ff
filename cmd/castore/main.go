// Command castore is the command-line front end for the
// content-addressable store.
package main

import (
	"os"

	"github.com/castore-io/castore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
