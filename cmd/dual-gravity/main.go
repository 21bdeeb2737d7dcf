// Command dual-gravity serves the dual gravity selection API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/justestif/go-dual-gravity/internal/config"
	"github.com/justestif/go-dual-gravity/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "dual-gravity",
	Short:         "Two-player music selection engine",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// loadConfig reads the configuration named by --config and initialises logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Log.Logging())
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
