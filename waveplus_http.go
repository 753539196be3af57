package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alepar/airthings/airthings"
	"github.com/alepar/airthings/airthings/config"
	"github.com/alepar/airthings/airthings/coordinator"
	"github.com/alepar/airthings/airthings/httpapi"
	"github.com/alepar/airthings/airthings/waveplus"
)

const programName = "waveplus_http"

var rootCmd = &cobra.Command{
	Use:   programName,
	Short: "Serve Airthings Wave Plus readings over HTTP",
	Long: `Connects to an Airthings Wave Plus over BLE and serves its readings:

- GET /         current reading as JSON
- GET /metrics  current reading as Prometheus gauges

Readings are cached, so concurrent requests share one device transaction.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("config", "", "path to a yaml config file")
	flags.String("device-id", "", "device id (prefix) to connect to, skips the manufacturer scan")
	flags.String("listen-address", "", "the address to listen on for HTTP requests")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Duration("cache-ttl", 0, "how long a reading is served from cache")
	flags.Duration("lock-timeout", 0, "how long a request waits for an in-flight read before breaking the lock")
	flags.Duration("read-timeout", 0, "timeout of a single characteristic read")
	flags.Int("retries", 0, "max number of tries in case of BLE errors")

	rootCmd.Version = version.Version
	if rootCmd.Version == "" {
		rootCmd.Version = "dev"
	}
	rootCmd.SetVersionTemplate(version.Print(programName) + "\n")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger()
	logger.WithFields(logrus.Fields{
		"version": version.Info(),
		"build":   version.BuildContext(),
	}).Info("starting " + programName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// open BLE
	d, err := linux.NewDevice()
	if err != nil {
		return errors.Wrap(err, "failed to open ble")
	}
	ble.SetDefaultDevice(d)
	defer func() { _ = ble.Stop() }()

	device, err := discover(ctx, cfg, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector(programName),
	)

	coord := coordinator.New(device, cfg.Policy(), logger, coordinator.NewMetrics(registry))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewHandler(coord, registry, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.LockTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func discover(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (airthings.Device, error) {
	matcher := airthings.Matcher{ManufacturerID: waveplus.ManufacturerID, DeviceID: cfg.DeviceID}
	if matcher.DeviceID == "" {
		logger.Warn("no device id configured, scanning by manufacturer")
	}

	scanner := waveplus.BleScanner{
		ScanDuration: cfg.ScanDuration,
		Retries:      cfg.ScanRetries,
		Logger:       logger,
	}
	device, err := scanner.Discover(ctx, matcher)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover sensor")
	}

	logger.Printf("Found: serialNr %s addr %s", device.SerialNumber(), device.Address())
	return device, nil
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("device-id") {
		cfg.DeviceID, _ = flags.GetString("device-id")
	}
	if flags.Changed("listen-address") {
		cfg.ListenAddr, _ = flags.GetString("listen-address")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("cache-ttl") {
		cfg.CacheTTL, _ = flags.GetDuration("cache-ttl")
	}
	if flags.Changed("lock-timeout") {
		cfg.LockTimeout, _ = flags.GetDuration("lock-timeout")
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout, _ = flags.GetDuration("read-timeout")
	}
	if flags.Changed("retries") {
		cfg.MaxRetries, _ = flags.GetInt("retries")
	}
}
