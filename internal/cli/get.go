package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var getOutput string

var getCmd = &cobra.Command{
	Use:   "get <fingerprint>",
	Short: "Retrieve a blob by fingerprint",
	Long:  `Retrieve the blob stored under the given fingerprint and write it to stdout or to a file.`,
	Args:  cobra.ExactArgs(1),
	Run:   runGet,
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "write the blob to this file instead of stdout")
}

func runGet(cmd *cobra.Command, args []string) {
	fp := parseFingerprint(args[0])

	s := openStore()
	defer s.Close()

	data, err := s.Get(context.Background(), fp)
	if err != nil {
		exitError("%v", err)
	}

	if getOutput == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			exitError("write blob: %v", err)
		}
		return
	}
	if err := os.WriteFile(getOutput, data, 0644); err != nil {
		exitError("write %s: %v", getOutput, err)
	}
}
