package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var existsQuiet bool

var existsCmd = &cobra.Command{
	Use:   "exists <fingerprint>",
	Short: "Check whether a fingerprint is stored",
	Long:  `Exit 0 when the fingerprint is stored, 1 when it is not.`,
	Args:  cobra.ExactArgs(1),
	Run:   runExists,
}

func init() {
	existsCmd.Flags().BoolVarP(&existsQuiet, "quiet", "q", false, "suppress output, only set the exit code")
}

func runExists(cmd *cobra.Command, args []string) {
	fp := parseFingerprint(args[0])

	s := openStore()
	defer s.Close()

	ok, err := s.Exists(context.Background(), fp)
	if err != nil {
		exitError("%v", err)
	}

	if !existsQuiet {
		if ok {
			fmt.Println("present")
		} else {
			fmt.Println("absent")
		}
	}
	if !ok {
		s.Close()
		os.Exit(1)
	}
}
