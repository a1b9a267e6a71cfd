package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/ethresponder/internal/daemon"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the responder in foreground",
	Long: `Run the responder in foreground.

The daemon will:
  1. Load configuration from the config file and environment
  2. Initialize logging, metrics and LED event publishers
  3. Open the configured link driver
  4. Answer frames in poll or interrupt mode
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)

Examples:
  ethresponder run -c config.yml
  ethresponder run -c config.yml --mode interrupt
  RESPONDER_NODE_IP=192.168.1.2 ethresponder run -c ""`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(runMode)
	},
}

var runMode string

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "responder mode: poll or interrupt (overrides config)")
}

func runDaemon(mode string) error {
	var opts []daemon.Option
	if mode != "" {
		opts = append(opts, daemon.WithMode(mode))
	}
	if pidFile != "" {
		opts = append(opts, daemon.WithPIDFile(pidFile))
	}

	d, err := daemon.New(configFile, opts...)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
