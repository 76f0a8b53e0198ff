package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <fingerprint>...",
	Short: "Drop a reference to stored blobs",
	Long: `Drop one reference to each given fingerprint. When the last reference
goes, the physical bytes are reclaimed.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runRm,
}

func runRm(cmd *cobra.Command, args []string) {
	s := openStore()
	defer s.Close()

	ctx := context.Background()
	for _, arg := range args {
		fp := parseFingerprint(arg)
		if err := s.Delete(ctx, fp); err != nil {
			exitError("%v", err)
		}
	}
}
