package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Dump all stored fingerprints",
	Long:  `Print every stored fingerprint, one per line, in stable bytewise order.`,
	Args:  cobra.NoArgs,
	Run:   runList,
}

func runList(cmd *cobra.Command, args []string) {
	s := openStore()
	defer s.Close()

	fps, err := s.List(context.Background())
	if err != nil {
		exitError("%v", err)
	}

	for _, fp := range fps {
		fmt.Println(fp)
	}
}
