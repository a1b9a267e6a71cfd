// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/ethresponder/internal/daemon"
)

var (
	// Global flags
	configFile string
	pidFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ethresponder",
	Short: "ethresponder - link-layer ARP, ICMP, CoAP and HTTP responder",
	Long: `ethresponder answers raw Ethernet frames for a single node identity.

It replies to ARP requests and ICMP echo, serves the CoAP /led resource that
drives an output line, and optionally serves a static page and a status
document over single-segment HTTP.

Link drivers:
  - afpacket: TPACKET_V3 socket on an existing interface
  - tap:      a TAP interface created for the responder
  - pcap:     replay a capture file and record the replies`,
	Version:       daemon.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/ethresponder/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (overrides control.pid_file)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(motorCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
}
