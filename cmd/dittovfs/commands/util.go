package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/marmos91/dittovfs/internal/cli/output"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/config"
	"github.com/spf13/cobra"
)

// loadConfig loads the configuration named by --config (or the default
// location) and initializes the logger from it.
//
// Inspection commands print their results on stdout, so their logs are
// moved to stderr.
func loadConfig(quiet bool) (*config.Config, error) {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s (create it with: dittovfs init --config %s)", cfgFile, cfgFile)
		}
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if quiet {
		if strings.EqualFold(loggerCfg.Output, "stdout") {
			loggerCfg.Output = "stderr"
		}
		if loggerCfg.Level == "DEBUG" || loggerCfg.Level == "INFO" {
			loggerCfg.Level = "WARN"
		}
	}
	if err := logger.Init(loggerCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// openRuntime loads the configuration and builds the mount registry
// without metrics.
func openRuntime() (*config.Runtime, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	return config.NewRuntime(cfg, nil)
}

// printResult writes data in the --output format.
func printResult(cmd *cobra.Command, data any, table output.TableRenderer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	return output.Print(cmd.OutOrStdout(), format, data, table)
}

// getConfigSource returns a description of where the config was loaded from
func getConfigSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	if config.ConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
