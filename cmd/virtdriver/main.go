package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/virtdriver/internal/config"
	"github.com/jbweber/virtdriver/internal/driver"
	"github.com/jbweber/virtdriver/internal/loader"
	"github.com/jbweber/virtdriver/internal/metrics"
	"github.com/jbweber/virtdriver/internal/output"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath   string
	manifestPath string
	outputFormat string
	noHeaders    bool

	cfg           *config.Config
	log           *logrus.Logger
	registry      *prometheus.Registry
	metricsServer *http.Server
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "virtdriver",
	Short: "virtdriver - libvirt node, network and volume lifecycle tool",
	Long: `virtdriver drives compute nodes, virtual networks and storage volumes
on a libvirt host from declarative YAML manifests.

Identities assigned by the hypervisor are written back into the manifest,
so later commands address exactly the objects a manifest created.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		log, err = cfg.NewLogger()
		if err != nil {
			return err
		}
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}
		startMetrics()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return stopMetrics()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", fmt.Sprintf("configuration file (default %s)", config.DefaultPath))
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "f", "", "resource manifest file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(output.FormatTable), "output format: table, yaml or json")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false, "omit table headers")

	rootCmd.AddCommand(testConnCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(sendKeysCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(networksCmd)
}

// startMetrics serves the metrics registry when metrics.listen is set.
func startMetrics() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Metrics.Listen == "" {
		return
	}
	metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, registry)
	go func() {
		log.WithField("listen", cfg.Metrics.Listen).Info("Serving metrics")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
}

func stopMetrics() error {
	if metricsServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsServer.Shutdown(ctx)
}

// connect opens a driver with the loaded configuration. Callers must close it.
func connect(ctx context.Context) (*driver.Driver, error) {
	d, err := driver.New(ctx, cfg, driver.WithLogger(log), driver.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	return d, nil
}

func closeDriver(d *driver.Driver) {
	if err := d.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", err)
	}
}

// loadManifest reads the file given with --manifest.
func loadManifest() (*loader.Manifest, error) {
	if manifestPath == "" {
		return nil, fmt.Errorf("a manifest is required (--manifest)")
	}
	return loader.LoadFromFile(manifestPath)
}

func saveManifest(m *loader.Manifest) error {
	if err := loader.SaveToFile(m, manifestPath); err != nil {
		return fmt.Errorf("failed to save manifest (assigned identities are lost): %w", err)
	}
	return nil
}
