package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/lifecycle"
	"github.com/residency-data/goaccredit/internal/watchdog"
)

var watchMode string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch batch progress and restart stalled runs",
	Long: `Watch polls the failure and success views and estimates the time left.
When the counts stop changing for stall_limit consecutive polls the batch
run is terminated and, after a random cooldown, started again.

Modes:
  - supervise: the watchdog launches the batch run itself and also reads
    its progress events (default)
  - attach: the watchdog finds an independently started run by command
    line and restarts it with restart_command

Watchdog output is appended to watchdog.log_output as well as stdout.

Example:
  goaccredit watch --config goaccredit.yaml --mode attach`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchMode, "mode", "",
		"Override watchdog mode (supervise, attach)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchMode != "" {
		cfg.Watchdog.Mode = watchMode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logCfg := cfg.Logging
	if cfg.Watchdog.LogOutput != "" && (logCfg.Output == "" || logCfg.Output == "stdout") {
		logCfg.Output = cfg.Watchdog.LogOutput
	}
	log, err := newLogger(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := lifecycle.SetupSignalHandlerWithCallback(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal - stopping watchdog", "signal", sig.String())
	})
	defer stop()

	source := progressSource(cfg)
	var (
		src  watchdog.ProgressSource = source
		ctrl watchdog.ProcessController
	)

	switch cfg.Watchdog.Mode {
	case "attach":
		ctrl = watchdog.NewPatternController(cfg.Watchdog.ProcessPattern, cfg.Watchdog.RestartCommand, log)
	default:
		command, err := workerCommand(cfg)
		if err != nil {
			return err
		}
		sup := watchdog.NewSupervisor(command, source, log)
		defer func() {
			if err := sup.Close(); err != nil {
				log.Warnw("Failed to stop batch run", "error", err)
			}
		}()
		src, ctrl = sup, sup
	}

	log.Infow("Starting watchdog", "mode", cfg.Watchdog.Mode, "config", GetConfigFile())
	wd := watchdog.New(watchdog.OptionsFromConfig(cfg.Watchdog), src, ctrl, log)
	if err := wd.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Watchdog stopped")
			return nil
		}
		return fmt.Errorf("watchdog failed: %w", err)
	}
	return nil
}

func progressSource(cfg *config.Config) watchdog.CSVProgressSource {
	return watchdog.CSVProgressSource{
		Failed:  cfg.Files.Failed,
		Success: cfg.Files.Success,
		Full:    cfg.Files.Full,
		Pending: cfg.Files.Source,
	}
}

// workerCommand is the command line of a supervised batch run: this binary,
// the same config and overrides, the worker args and progress events.
func workerCommand(cfg *config.Config) ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate goaccredit binary: %w", err)
	}
	command := []string{exe, "--config", GetConfigFile()}
	command = append(command, GetCLIOverrides().Args()...)
	command = append(command, cfg.Watchdog.WorkerArgs...)
	return append(command, "--progress-events"), nil
}

