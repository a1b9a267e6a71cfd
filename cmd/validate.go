package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/ethresponder/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration without opening any driver, then
print the effective configuration with defaults and derived values applied.

Examples:
  ethresponder validate -c config.yml
  RESPONDER_NODE_IP=10.0.0.2 ethresponder validate -c config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

var validateQuiet bool

func init() {
	validateCmd.Flags().BoolVarP(&validateQuiet, "quiet", "q", false, "only report validity")
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	fmt.Fprintf(out, "VALID: %s at %s, %s mode, %s driver\n",
		cfg.Node.Addr, cfg.Node.HardwareAddr, cfg.Mode, cfg.Driver.Type)
	if validateQuiet {
		return nil
	}

	// node.mac may have been derived, so the dump is a usable config file.
	doc := struct {
		Responder *config.GlobalConfig `yaml:"responder"`
	}{cfg}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
