// Package cli implements the castore command-line interface: the dump
// and index tools layered on top of the storage engine.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/castore-io/castore/internal/config"
	"github.com/castore-io/castore/internal/fingerprint"
	"github.com/castore-io/castore/internal/store"
)

// storeDir is where commands start looking for a store; the search
// walks upward from here.
var storeDir string

var rootCmd = &cobra.Command{
	Use:   "castore",
	Short: "Content-addressable object store",
	Long: `castore stores opaque binary objects keyed by a fingerprint of their
content. Identical content is stored at most once and tracked with
reference counts; objects are retrieved by fingerprint, never by name.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&storeDir, "store", "C", ".", "store directory (searched upward for castore.toml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(verifyCmd)
}

// openStore locates and opens the store for the current invocation.
func openStore() *store.Store {
	root, err := config.FindRoot(storeDir)
	if err != nil {
		exitError("%v", err)
	}

	s, err := store.Open(root)
	if err != nil {
		exitError("failed to open store: %v", err)
	}
	return s
}

// parseFingerprint parses a hex fingerprint argument or exits.
func parseFingerprint(arg string) fingerprint.Fingerprint {
	fp, err := fingerprint.Parse(arg)
	if err != nil {
		exitError("%v", err)
	}
	return fp
}

// exitError prints an error message and exits with status 1
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
