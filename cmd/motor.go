package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/log"
	"firestige.xyz/ethresponder/internal/motor"
)

var motorCmd = &cobra.Command{
	Use:   "motor",
	Short: "Drive the three-phase commutation outputs",
	Long: `Step the six-state commutation ring on the gpio.motor pins, then float
every phase. With --steps 0 the motor runs until interrupted.

Examples:
  ethresponder motor -c config.yml --steps 12
  ethresponder motor -c config.yml --steps 0 --reverse --interval 20ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runMotor(ctx, cfg.GPIO.Motor, motorFlags, cmd.OutOrStdout())
	},
}

type motorOptions struct {
	steps    int
	reverse  bool
	interval time.Duration
}

var motorFlags motorOptions

func init() {
	motorCmd.Flags().IntVar(&motorFlags.steps, "steps", 6, "number of steps, 0 runs until interrupted")
	motorCmd.Flags().BoolVar(&motorFlags.reverse, "reverse", false, "step backwards through the ring")
	motorCmd.Flags().DurationVar(&motorFlags.interval, "interval", 0, "time per step (default gpio.motor.interval)")
}

func runMotor(ctx context.Context, cfg config.MotorConfig, opts motorOptions, out io.Writer) error {
	if opts.steps < 0 {
		return fmt.Errorf("--steps %d must not be negative", opts.steps)
	}
	interval := opts.interval
	if interval == 0 {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return fmt.Errorf("gpio.motor.interval %q: %w", cfg.Interval, err)
		}
		interval = d
	}

	drv, err := motor.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open motor pins: %w", err)
	}
	defer drv.Close()
	start := drv.State()
	if err := drv.Run(ctx, opts.steps, !opts.reverse, interval); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s -> %s, phases floating\n", start, drv.State())
	return nil
}
