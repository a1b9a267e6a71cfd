package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/ethresponder/internal/config"
)

// Controller sends lifecycle requests to a running responder.
type Controller interface {
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
}

// signalController signals the process recorded in a PID file.
type signalController struct {
	pidFile string
}

func (c signalController) Stop(context.Context) error   { return c.signal(syscall.SIGTERM) }
func (c signalController) Reload(context.Context) error { return c.signal(syscall.SIGHUP) }

func (c signalController) signal(sig syscall.Signal) error {
	if c.pidFile == "" {
		return fmt.Errorf("no PID file configured (set control.pid_file or --pidfile)")
	}
	raw, err := os.ReadFile(c.pidFile)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return fmt.Errorf("malformed PID file %s", c.pidFile)
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return nil
}

// controller is replaced in tests.
var controller = func() (Controller, error) {
	if pidFile != "" {
		return signalController{pidFile: pidFile}, nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return signalController{pidFile: cfg.Control.PIDFile}, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running responder",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controller()
		if err != nil {
			return err
		}
		return runStop(cmd.Context(), c, cmd.OutOrStdout())
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the configuration of a running responder",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controller()
		if err != nil {
			return err
		}
		return runReload(cmd.Context(), c, cmd.OutOrStdout())
	},
}

func runStop(ctx context.Context, c Controller, out io.Writer) error {
	if err := c.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintln(out, "✓ Shutdown requested")
	return nil
}

func runReload(ctx context.Context, c Controller, out io.Writer) error {
	if err := c.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reload requested")
	return nil
}
