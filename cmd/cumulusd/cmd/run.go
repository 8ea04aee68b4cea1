package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fora-lang/cumulus/internal/scheduler"
	"github.com/fora-lang/cumulus/internal/sharedlog"
	"github.com/fora-lang/cumulus/pkg/config"
	"github.com/fora-lang/cumulus/pkg/cumid"
	"github.com/fora-lang/cumulus/pkg/telemetry"
	"github.com/fora-lang/cumulus/pkg/utils"
)

// runCmd boots an Engine from config and serves until interrupted, the
// cumulus equivalent of the teacher's serve command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the scheduler core and run until interrupted",
	Long: `run loads cluster configuration, opens the checksummed log, and
starts the priority/CPU-assignment dependency graphs and the worker
thread pool. It serves until SIGINT or SIGTERM, draining in-flight
computations before exiting.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	binName := BinName()
	runCmd.Example = `  # Run with the default config search path
  ` + binName + ` run

  # Run with an explicit config file
  ` + binName + ` run -c ./cumulus.yaml`
}

func runRun(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	return startEngine(cfgFile, log)
}

func startEngine(configPath string, log utils.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.EnsureLogDir(); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), log)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}

	clock := utils.NewRealClock()
	openFiles, err := sharedlog.New(cfg.Log.MaxOpenFiles, clock, log)
	if err != nil {
		return fmt.Errorf("failed to open checksummed log: %w", err)
	}

	salt := cumid.NewSalt()
	machine := cumid.NewMachineId(cfg.Identity.Seed, salt)

	engine := scheduler.New(scheduler.Config{
		WorkerPoolSize: cfg.Worker.PoolSize,
	}, openFiles, machine, nil, log)

	engine.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("")
	log.Info("cumulus scheduler core running")
	log.Info("  machine id:       %s", machine.String())
	log.Info("  worker pool size: %d", cfg.Worker.PoolSize)
	log.Info("  log dir:          %s", cfg.Log.Dir)
	log.Info("  press Ctrl+C to stop")
	log.Info("")

	<-sigChan
	log.Info("shutting down scheduler core...")

	engine.Stop()
	if err := openFiles.Shutdown(); err != nil {
		log.Warn("error closing checksummed log: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Warn("error shutting down telemetry: %v", err)
	}

	return nil
}
