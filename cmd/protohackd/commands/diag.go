package commands

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"
)

var diagTarget string

// diagCmd is a CLI-only introspection tool: it reports this process's own
// resource usage, plus an optional reachability check against --target.
// It never becomes a remote admin protocol on any of the four servers.
var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Report local process stats, and optionally probe a server's reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return fmt.Errorf("reading process stats: %w", err)
		}

		cpuPct, _ := proc.CPUPercent()
		memInfo, _ := proc.MemoryInfo()
		numThreads, _ := proc.NumThreads()
		createTime, _ := proc.CreateTime()

		pterm.DefaultSection.Println("protohackd process stats")
		fmt.Printf("  pid:        %d\n", os.Getpid())
		fmt.Printf("  cpu:        %.2f%%\n", cpuPct)
		if memInfo != nil {
			fmt.Printf("  rss:        %d KB\n", memInfo.RSS/1024)
		}
		fmt.Printf("  threads:    %d\n", numThreads)
		fmt.Printf("  started at: %s\n", time.UnixMilli(createTime).Format(time.RFC3339))

		if diagTarget != "" {
			start := time.Now()
			conn, err := net.DialTimeout("tcp", diagTarget, 2*time.Second)
			if err != nil {
				pterm.Error.Printf("target %s unreachable: %v\n", diagTarget, err)
				return nil
			}
			conn.Close()
			pterm.Success.Printf("target %s reachable (%s)\n", diagTarget, time.Since(start))
		}
		return nil
	},
}

func init() {
	diagCmd.Flags().StringVar(&diagTarget, "target", "", "host:port to probe for TCP reachability")
}
