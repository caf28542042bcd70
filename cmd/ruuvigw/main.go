// Command ruuvigw bridges RuuviTag BLE sensor beacons to an IoT Core MQTT
// broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/commatea/ruuvi-gateway/internal/broker"
	"github.com/commatea/ruuvi-gateway/internal/cnc"
	"github.com/commatea/ruuvi-gateway/internal/config"
	"github.com/commatea/ruuvi-gateway/internal/credential"
	"github.com/commatea/ruuvi-gateway/internal/logger"
	"github.com/commatea/ruuvi-gateway/internal/scanner"
	"github.com/commatea/ruuvi-gateway/internal/status"
	"github.com/commatea/ruuvi-gateway/internal/supervisor"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
	gitCommit = "unknown"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "ruuvigw",
		Short:   "ruuvigw - RuuviTag BLE to IoT Core MQTT gateway",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./ruuvigw.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newStartCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

func runStart() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	logger.SetGlobal(log)

	privateKeyPEM, err := os.ReadFile(cfg.Identity.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key: %w", err)
	}
	privateKey, err := credential.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	creds := credential.NewSource(privateKey, cfg.IoTCore.ProjectID, cfg.Identity.Lifetime())

	bus := cnc.NewBus(256)

	bleAdapter := scanner.NewTinygoAdapter()
	scan := scanner.New(bleAdapter, bus, log.Logger)

	mqttClient := broker.NewPahoClient(cfg.IoTCore.ClientID(), cfg.Identity.CACertsPath)
	brk := broker.New(mqttClient, creds, cfg.IoTCore.DeviceID, bus, log.Logger)

	sup := supervisor.New(log.Logger)

	var statusServer *status.Server
	if cfg.Status.Enabled {
		addr := cfg.Status.Address
		if addr == "" {
			addr = ":8090"
		}
		statusServer = status.NewServer(addr, sup, log.Logger)
		brk.OnBeacon = statusServer.BroadcastBeacon
		if err := statusServer.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		log.Info("status server listening", "addr", statusServer.Addr())
	}

	sup.Spawn("scanner", func() supervisor.Outcome {
		if scan.Run() == scanner.CleanExit {
			return supervisor.CleanExit
		}
		return supervisor.Restart
	})
	sup.Spawn("broker", func() supervisor.Outcome {
		if brk.Run() == broker.CleanExit {
			return supervisor.CleanExit
		}
		return supervisor.Restart
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		sup.Run()
		close(done)
	}()

	log.Info("ruuvigw running", "device_id", cfg.IoTCore.ClientID())

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
		bus.Commands <- cnc.NewCommand(cnc.Shutdown)
		brk.Shutdown()
	case <-done:
	}

	select {
	case <-done:
	case <-ctx.Done():
	}

	if statusServer != nil {
		_ = statusServer.Stop(context.Background())
	}

	log.Info("ruuvigw stopped")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ruuvigw %s\n", version)
			fmt.Printf("  Commit: %s\n", gitCommit)
			fmt.Printf("  Built:  %s\n", buildTime)
		},
	}
}
