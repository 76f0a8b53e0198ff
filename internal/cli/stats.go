package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Long:  `Show object counts, byte totals, the deduplicated compression ratio, and connection pool usage.`,
	Args:  cobra.NoArgs,
	Run:   runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	s := openStore()
	defer s.Close()

	st, err := s.Stats(context.Background())
	if err != nil {
		exitError("%v", err)
	}

	cyan := color.New(color.FgCyan)

	cyan.Println("Store")
	fmt.Printf("  uuid:     %s\n", st.UUID)
	fmt.Printf("  objects:  %d\n", st.Objects)
	fmt.Printf("  logical:  %d bytes\n", st.LogicalBytes)
	if st.LogicalBytes > 0 {
		fmt.Printf("  stored:   %d bytes (%.1f%%)\n", st.StoredBytes,
			float64(st.StoredBytes)/float64(st.LogicalBytes)*100)
	} else {
		fmt.Printf("  stored:   %d bytes\n", st.StoredBytes)
	}

	cyan.Println("Pool")
	fmt.Printf("  capacity: %d\n", st.PoolCapacity)
	fmt.Printf("  open:     %d\n", st.PoolOpen)
	fmt.Printf("  idle:     %d\n", st.PoolIdle)
}
