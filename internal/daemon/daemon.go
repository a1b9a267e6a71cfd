// Package daemon implements the responder process lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/ethresponder/internal/arpcache"
	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/driver"
	"firestige.xyz/ethresponder/internal/events"
	"firestige.xyz/ethresponder/internal/frame"
	"firestige.xyz/ethresponder/internal/gpio"
	"firestige.xyz/ethresponder/internal/log"
	"firestige.xyz/ethresponder/internal/metrics"
	"firestige.xyz/ethresponder/internal/responder"
	"firestige.xyz/ethresponder/internal/web"
)

// Version is reported by the version command and the startup log.
var Version = "0.1.0"

const (
	eventPartitions = 1
	drainTimeout    = 5 * time.Second
)

// Option customizes a Daemon.
type Option func(*Daemon)

// WithMode overrides the configured responder mode.
func WithMode(mode string) Option {
	return func(d *Daemon) { d.mode = mode }
}

// WithDriver uses drv instead of opening the configured driver.
func WithDriver(drv driver.Driver) Option {
	return func(d *Daemon) { d.drv = &onceCloser{Driver: drv} }
}

// WithPIDFile overrides control.pid_file.
func WithPIDFile(path string) Option {
	return func(d *Daemon) { d.pidFile = path }
}

// Daemon owns the driver, the dispatcher and their supporting services.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	pidFile    string
	mode       string

	// Core components
	drv           driver.Driver
	pin           gpio.Pin // raw LED line, closed on stop
	heartbeat     gpio.Pin // nil if the heartbeat is off
	disp          *responder.Dispatcher
	loop          *responder.Loop
	bus           *events.Bus
	publishers    []events.Publisher
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	started      bool
	loopDone     chan struct{}
	loopErr      error
	beatDone     chan struct{}
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
}

// New loads the configuration at configPath and prepares a daemon. Nothing
// is opened until Start.
func New(configPath string, opts ...Option) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		pidFile:      cfg.Control.PIDFile,
		mode:         cfg.Mode,
		loopDone:     make(chan struct{}),
		shutdownChan: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.mode != config.ModePoll && d.mode != config.ModeInterrupt {
		return nil, fmt.Errorf("invalid mode %q (must be poll/interrupt)", d.mode)
	}
	d.config.Mode = d.mode

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Config returns the effective configuration.
func (d *Daemon) Config() *config.GlobalConfig { return d.config }

// Dispatcher returns the dispatcher, or nil before Start.
func (d *Daemon) Dispatcher() *responder.Dispatcher { return d.disp }

// Start initializes every component and starts the receive loop.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"version": Version,
		"mac":     d.config.Node.HardwareAddr.String(),
		"ip":      d.config.Node.Addr.String(),
		"mode":    d.mode,
		"config":  d.configPath,
	}).Info("starting ethresponder")

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		d.teardown()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Event bus and publishers
	if err := d.startEvents(); err != nil {
		d.teardown()
		return fmt.Errorf("failed to start event publishers: %w", err)
	}

	// 5. LED line, reporting changes to the bus
	pin, err := gpio.Open(d.config.GPIO.LED)
	if err != nil {
		d.teardown()
		return fmt.Errorf("failed to open led pin: %w", err)
	}
	d.pin = pin
	led := gpio.Observe(pin, events.LEDNotifier(d.bus))

	// 6. Dispatcher
	rcfg := responder.Config{
		MAC:      d.config.Node.HardwareAddr,
		Addr:     d.config.Node.Addr,
		CoAPPort: d.config.CoAPPort,
	}
	dopts := []responder.Option{responder.WithCache(arpcache.New(d.config.CacheCapacity))}
	if d.config.HTTP.Enabled {
		site, err := web.NewSite()
		if err != nil {
			d.teardown()
			return fmt.Errorf("failed to build site: %w", err)
		}
		rcfg.SitePort = d.config.HTTP.SitePort
		rcfg.StatusPort = d.config.HTTP.StatusPort
		dopts = append(dopts, responder.WithSite(site))
	}
	d.disp = responder.NewDispatcher(rcfg, led, dopts...)

	// 7. Link driver
	if d.drv == nil {
		drv, err := driver.Open(d.config.Driver)
		if err != nil {
			d.teardown()
			return err
		}
		d.drv = &onceCloser{Driver: drv}
	}

	// 8. Heartbeat line
	if err := d.startHeartbeat(); err != nil {
		d.teardown()
		return fmt.Errorf("failed to open heartbeat pin: %w", err)
	}

	// 9. Receive loop
	pool := frame.NewPool(d.config.PoolSize, d.config.FrameSize)
	d.loop = responder.NewLoop(d.drv, d.disp, pool)
	d.started = true
	go func() {
		defer close(d.loopDone)
		d.loopErr = d.loop.Run(d.ctx, d.mode)
	}()

	log.GetLogger().WithField("driver", d.config.Driver.Type).Info("ethresponder started")
	return nil
}

// Stop shuts every component down. It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		log.GetLogger().Info("initiating graceful shutdown")

		// 1. Stop the loop; cancelling closes the driver
		d.cancel()
		if d.started {
			<-d.loopDone
		}
		if d.beatDone != nil {
			<-d.beatDone
		}

		// 2. Release the link and the LED line
		d.teardown()

		// 3. Unregister signal handler to prevent goroutine leak
		if d.sigChan != nil {
			signal.Stop(d.sigChan)
		}

		log.GetLogger().Info("ethresponder stopped")
	})
}

// teardown releases whatever Start managed to open.
func (d *Daemon) teardown() {
	logger := log.GetLogger()

	if d.drv != nil {
		if err := d.drv.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.WithError(err).Error("error closing driver")
		}
	}
	if c, ok := d.pin.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.WithError(err).Error("error closing led pin")
		}
	}
	d.pin = nil
	if c, ok := d.heartbeat.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.WithError(err).Error("error closing heartbeat pin")
		}
	}
	d.heartbeat = nil

	// Queued LED events are delivered before the publishers go away.
	if d.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := d.bus.Close(ctx); err != nil {
			logger.WithError(err).Warn("event bus did not drain")
		}
		cancel()
		d.bus = nil
	}
	if err := events.CloseAll(d.publishers); err != nil {
		logger.WithError(err).Error("error closing publishers")
	}
	d.publishers = nil

	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(context.Background()); err != nil {
			logger.WithError(err).Error("error stopping metrics server")
		}
		d.metricsServer = nil
	}

	if err := d.removePIDFile(); err != nil {
		logger.WithError(err).Error("error removing PID file")
	}
}

// Run blocks until shutdown is triggered. Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. TriggerShutdown
//  3. the driver reaching the end of its input
//
// SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig.String()).Info("received shutdown signal")
				d.Stop()
				return nil

			case syscall.SIGHUP:
				log.GetLogger().Info("received reload signal")
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			log.GetLogger().Info("shutdown triggered")
			d.Stop()
			return nil

		case <-d.loopDone:
			log.GetLogger().Info("link input ended")
			d.Stop()
			return d.loopErr
		}
	}
}

// Reload re-reads the configuration file.
// Hot-reloadable: log level/format/outputs.
// Cold (requires restart): node identity, mode, driver, pool, ports, gpio.
func (d *Daemon) Reload() error {
	log.GetLogger().WithField("path", d.configPath).Info("reloading configuration")

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	hotReloaded := []string{}
	if err := log.Init(newConfig.Log); err != nil {
		log.GetLogger().WithError(err).Error("failed to reinitialize logging")
	} else if newConfig.Log != d.config.Log {
		hotReloaded = append(hotReloaded, "log")
	}
	d.config.Log = newConfig.Log

	requiresRestart := []string{}
	if newConfig.Node.HardwareAddr != d.config.Node.HardwareAddr || newConfig.Node.Addr != d.config.Node.Addr {
		requiresRestart = append(requiresRestart, "node")
	}
	if newConfig.Driver.Type != d.config.Driver.Type {
		requiresRestart = append(requiresRestart, "driver.type")
	}
	if newConfig.FrameSize != d.config.FrameSize || newConfig.PoolSize != d.config.PoolSize {
		requiresRestart = append(requiresRestart, "frame_size/pool_size")
	}
	if newConfig.HTTP != d.config.HTTP || newConfig.CoAPPort != d.config.CoAPPort {
		requiresRestart = append(requiresRestart, "ports")
	}
	if newConfig.GPIO != d.config.GPIO {
		requiresRestart = append(requiresRestart, "gpio")
	}
	if newConfig.Metrics != d.config.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"hot_reloaded":     hotReloaded,
		"requires_restart": requiresRestart,
	}).Info("configuration reloaded")
	return nil
}

// TriggerShutdown asks Run to stop.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

func (d *Daemon) initLogging() error {
	if err := log.Init(d.config.Log); err != nil {
		return err
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"level":  d.config.Log.Level,
		"format": d.config.Log.Format,
	}).Debug("logging initialized")
	return nil
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}
	s := metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := s.Start(d.ctx); err != nil {
		return err
	}
	d.metricsServer = s
	return nil
}

func (d *Daemon) startEvents() error {
	pubs, err := events.FromConfig(d.config.Events)
	if err != nil {
		return err
	}
	d.publishers = pubs
	d.bus = events.NewBus(eventPartitions, d.config.Events.QueueSize)
	for _, p := range pubs {
		if err := events.Attach(d.bus, events.TopicLED, p); err != nil {
			return fmt.Errorf("attach %s publisher: %w", p.Name(), err)
		}
		log.GetLogger().WithField("publisher", p.Name()).Info("led events enabled")
	}
	return nil
}

// startHeartbeat toggles the heartbeat line until the daemon stops.
func (d *Daemon) startHeartbeat() error {
	hb := d.config.GPIO.Heartbeat
	if hb.Every <= 0 {
		return nil
	}
	pin, err := gpio.Open(hb.Pin)
	if err != nil {
		return err
	}
	d.heartbeat = pin
	d.beatDone = make(chan struct{})
	go func() {
		defer close(d.beatDone)
		if err := gpio.Blink(d.ctx, pin, hb.Every); err != nil {
			log.GetLogger().WithError(err).Warn("heartbeat stopped")
		}
	}()
	log.GetLogger().WithField("period", hb.Every.String()).Info("heartbeat enabled")
	return nil
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}
	log.GetLogger().WithField("path", d.pidFile).WithField("pid", pid).Debug("PID file written")
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}

// onceCloser lets both the loop and teardown close the driver.
type onceCloser struct {
	driver.Driver
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.Driver.Close() })
	return c.err
}
