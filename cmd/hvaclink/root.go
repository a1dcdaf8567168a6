package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/hvac-link-core/internal/infrastructure/config"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/logging"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable consulted when --config is not set.
const configEnv = "HVACLINK_CONFIG"

type rootOptions struct {
	configPath string
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "hvaclink",
		Short: "HVAC gateway bridge",
		Long: `HVAC Link Core bridges air-conditioning gateways on an MQTT broker:
- serve: keep the broker session, ingest status reports, expose metrics
- control: send power, set-point, mode and fan commands to devices
- gateway: register and inspect gateways
- device: list, enrich and inspect devices
- sweep: mark gateways that stopped reporting offline`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(opts),
		newControlCmd(opts),
		newGatewayCmd(opts),
		newDeviceCmd(opts),
		newSweepCmd(opts),
	)
	return root
}

// getConfigPath returns the configuration file path: the --config flag,
// then HVACLINK_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the configuration and builds the configured logger.
func (o *rootOptions) loadConfig() (*config.Config, *logging.Logger, error) {
	path := getConfigPath(o.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded", "path", path)
	return cfg, log, nil
}

// openApp loads configuration and opens the shared core components.
func (o *rootOptions) openApp(ctx context.Context) (*app, error) {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return openApp(ctx, cfg, log)
}
