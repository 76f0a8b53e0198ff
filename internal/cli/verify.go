package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the integrity of every stored object",
	Long: `Re-read and re-hash every stored object. Reports objects whose payload
no longer matches its fingerprint; exits non-zero when any are found.`,
	Args: cobra.NoArgs,
	Run:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) {
	s := openStore()
	defer s.Close()

	bad, err := s.Verify(context.Background())
	if err != nil {
		exitError("%v", err)
	}

	if len(bad) == 0 {
		color.New(color.FgGreen).Println("all objects verified")
		return
	}

	red := color.New(color.FgRed)
	for _, fp := range bad {
		red.Fprintf(os.Stderr, "corrupt: %s\n", fp)
	}
	fmt.Fprintf(os.Stderr, "%d corrupt object(s)\n", len(bad))
	s.Close()
	os.Exit(1)
}
