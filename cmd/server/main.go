package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/config"
	"github.com/garyjia/approval-engine/pkg/utils"
)

const version = "1.0.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "approval-engine",
	Short:         "Workflow approval engine",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `approval-engine runs multi-step approval workflows built from
versioned templates, with an audit trail and in-app notifications.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"path to a YAML config file (defaults and environment only when empty)")
}

// loadRuntime reads configuration and builds the logger every command needs
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
