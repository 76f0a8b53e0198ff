package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/castore-io/castore/internal/fingerprint"
)

var putParallel int

var putCmd = &cobra.Command{
	Use:   "put <file>...",
	Short: "Store files and print their fingerprints",
	Long: `Store the contents of one or more files. Each file's fingerprint is
printed alongside its path. Storing identical content more than once
only raises its reference count.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPut,
}

func init() {
	putCmd.Flags().IntVarP(&putParallel, "jobs", "j", 4, "number of files stored in parallel")
}

func runPut(cmd *cobra.Command, args []string) {
	s := openStore()
	defer s.Close()

	results := make([]fingerprint.Fingerprint, len(args))

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(putParallel)
	for i, path := range args {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			fp, err := s.Put(ctx, data)
			if err != nil {
				return fmt.Errorf("store %s: %w", path, err)
			}
			results[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		exitError("%v", err)
	}

	for i, path := range args {
		fmt.Printf("%s  %s\n", results[i], path)
	}
}
