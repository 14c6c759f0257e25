package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipd-simulator/pkg/errors"
	"github.com/ipd-simulator/pkg/pprof"
	"github.com/ipd-simulator/pkg/telemetry"
	"github.com/ipd-simulator/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string
	logger     utils.Logger

	// Pprof flags
	pprofEnabled     bool
	pprofMode        string
	pprofDir         string
	pprofProfiles    string
	pprofInterval    string
	pprofCPUDuration string
	pprofAddr        string

	pprofCollector    *pprof.Collector
	telemetryShutdown telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ipd-simulator",
	Short: "A high-throughput iterated prisoner's dilemma grid simulator",
	Long: `ipd-simulator runs agent-based iterated prisoner's dilemma simulations on
a two-dimensional grid. Agents learn through shared Q-tables and may merge
into multicellular organisms or split back apart.

The engine writes per-step statistics as CSV, raw RGB24 frames for video
encoding, and can persist runs to a database or stream live statistics to a
browser.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)

		shutdown, err := telemetry.Init(cmd.Context())
		if err != nil {
			logger.Warn("telemetry init failed: %v", err)
			shutdown = func(context.Context) error { return nil }
		}
		telemetryShutdown = shutdown

		if pprofEnabled {
			cfg, err := buildPprofConfig()
			if err != nil {
				return err
			}
			collector, err := pprof.NewCollector(cfg)
			if err != nil {
				return err
			}
			if err := collector.Start(); err != nil {
				return err
			}
			pprofCollector = collector
			logger.Info("pprof collection started (mode: %s)", cfg.Mode)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofCollector != nil {
			logger.Info("stopping pprof collection...")
			if err := pprofCollector.Stop(); err != nil {
				logger.Warn("failed to stop pprof collector: %v", err)
			}
			logger.Info("pprof data saved to: %s", pprofCollector.OutputDir())
		}
		if telemetryShutdown != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetryShutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown: %v", err)
			}
		}
		return nil
	},
}

// Execute runs the root command, returning any error for exit-code mapping.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	// Pprof flags
	rootCmd.PersistentFlags().BoolVar(&pprofEnabled, "pprof", false, "Enable pprof performance profiling")
	rootCmd.PersistentFlags().StringVar(&pprofMode, "pprof-mode", "file", "Pprof mode: file (periodic snapshots) or http (on-demand)")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "./pprof", "Output directory for pprof data")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap,goroutine", "Comma-separated profile types: cpu,heap,goroutine,block,mutex,allocs")
	rootCmd.PersistentFlags().StringVar(&pprofInterval, "pprof-interval", "30s", "Snapshot interval for file mode")
	rootCmd.PersistentFlags().StringVar(&pprofCPUDuration, "pprof-cpu-duration", "10s", "CPU profile duration per snapshot")
	rootCmd.PersistentFlags().StringVar(&pprofAddr, "pprof-addr", ":6060", "HTTP listen address for http mode")

	// Invalid flags are an argument error, not a runtime failure.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Wrap(errors.CodeConfigInvalid, "invalid arguments", err)
	})

	binName := BinName()
	rootCmd.Example = `  # Run a 256x256 grid for 1000 steps
  ` + binName + ` run --width 256 --height 256 --timesteps 1000 --csv stats.csv

  # Reproducible exploration-heavy run with video frames
  ` + binName + ` run --width 128 --height 128 --seed 42 --epsilon 0.2 --video --video-path frames.rgb

  # Watch a run live in the browser
  ` + binName + ` run --width 64 --height 64 --timesteps 5000 --serve --port 8080

  # Profile a large run
  ` + binName + ` run --width 1024 --height 1024 --pprof --pprof-profiles cpu,heap`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	if logger == nil {
		return &utils.NullLogger{}
	}
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}

// buildPprofConfig builds pprof configuration from command line flags.
func buildPprofConfig() (pprof.Config, error) {
	cfg := pprof.DefaultConfig()
	cfg.Enabled = true
	cfg.OutputDir = pprofDir

	switch pprofMode {
	case "file":
		cfg.Mode = pprof.ModeFile
	case "http":
		cfg.Mode = pprof.ModeHTTP
	default:
		return cfg, errors.Newf(errors.CodeConfigInvalid, "invalid pprof mode: %q (valid: file, http)", pprofMode)
	}

	profiles, err := pprof.ParseProfileTypes(pprofProfiles)
	if err != nil {
		return cfg, err
	}
	cfg.Profiles = profiles

	interval, err := time.ParseDuration(pprofInterval)
	if err != nil {
		return cfg, errors.Wrap(errors.CodeConfigInvalid, fmt.Sprintf("invalid pprof interval %q", pprofInterval), err)
	}
	cfg.Interval = interval

	cpuDuration, err := time.ParseDuration(pprofCPUDuration)
	if err != nil {
		return cfg, errors.Wrap(errors.CodeConfigInvalid, fmt.Sprintf("invalid pprof CPU duration %q", pprofCPUDuration), err)
	}
	cfg.CPUDuration = cpuDuration
	cfg.Addr = pprofAddr

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
