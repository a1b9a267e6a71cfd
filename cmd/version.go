package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"firestige.xyz/ethresponder/internal/daemon"
	"firestige.xyz/ethresponder/internal/driver"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and available drivers",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ethresponder %s (%s %s/%s)\n", daemon.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "drivers: %v\n", driver.Names())
	},
}
