package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fora-lang/cumulus/pkg/utils"
)

var (
	// Global flags
	verbose bool
	cfgFile string
	logger  utils.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "cumulusd",
	Short: "cumulus scheduler core daemon",
	Long: `cumulusd runs one machine's slice of the cumulus scheduler core:
the priority dependency graph, the CPU-assignment dependency graph, the
worker thread pool, and the checksummed durability log.

It does not parse, typecheck, or execute FORA programs; the worker pool's
Executor seam is where a real interpreter plugs in.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		utils.SetGlobalLogger(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (defaults: ./config.yaml, ./configs/config.yaml, /etc/cumulus/config.yaml)")

	binName := BinName()
	rootCmd.Example = `  # Run with default config search path
  ` + binName + ` run

  # Run with an explicit config file and verbose logging
  ` + binName + ` run -c ./cumulus.yaml -v`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
