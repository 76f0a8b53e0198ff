package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castore-io/castore/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new store",
	Long: `Initialize a new castore store in the given directory (default: the
--store directory). This creates the configuration file, the object
index, and the blob file area.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	dir := storeDir
	if len(args) == 1 {
		dir = args[0]
	}

	s, err := store.Create(dir)
	if err != nil {
		exitError("%v", err)
	}
	defer s.Close()

	fmt.Printf("Initialized empty castore store in %s\n", s.Root())
}
