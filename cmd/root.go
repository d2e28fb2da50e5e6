package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// CLI flags
	configPath string // Path to the simulation YAML config
	logLevel   string // Log verbosity level
	sweeps     int    // Override for the number of sweeps
	seed       uint64 // Override for the RNG seed
	noTuning   bool   // Disable the stage autotuners
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "hpmc-sim",
	Short: "Hard-particle Monte Carlo engine with SAT-based parallel trial moves",
}

// runCmd executes the simulation using parameters from the config file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Monte Carlo simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if configPath == "" {
			logrus.Fatalf("Config file not provided. Exiting simulation.")
		}

		cfg, err := GetSimConfig(configPath)
		if err != nil {
			logrus.Fatalf("unable to read simulation config; %v", err)
		}
		if cmd.Flags().Changed("sweeps") {
			cfg.Sweeps = sweeps
		}
		if cmd.Flags().Changed("seed") {
			cfg.Seed = seed
		}

		pd, it, err := cfg.BuildSystem()
		if err != nil {
			logrus.Fatalf("unable to build system; %v", err)
		}
		defer it.Close()
		if noTuning {
			it.SetTunersEnabled(false)
		}

		// Log configuration
		logrus.Infof("Starting simulation with %d particles, %d types, %d sweeps, nselect=%d, seed=%d",
			pd.N(), pd.NTypes(), cfg.Sweeps, cfg.NSelect, cfg.Seed)

		startTime := time.Now() // Get current time (start)

		for ts := uint64(0); ts < uint64(cfg.Sweeps); ts++ {
			if err := it.Update(ts); err != nil {
				logrus.Fatalf("sweep %d failed; %v", ts, err)
			}
		}

		elapsed := time.Since(startTime)
		c := it.Counters()
		logrus.Infof("Completed %d sweeps in %v (%.0f trial moves/s)",
			cfg.Sweeps, elapsed, float64(c.Attempts())/elapsed.Seconds())
		logrus.Infof("Translation acceptance: %.4f (%d/%d)",
			c.TranslateAcceptance(), c.TranslateAccept, c.TranslateAccept+c.TranslateReject)
		logrus.Infof("Rotation acceptance: %.4f (%d/%d)",
			c.RotateAcceptance(), c.RotateAccept, c.RotateAccept+c.RotateReject)
		logrus.Infof("Out-of-cell rejections: %d, overlap checks: %d", c.OutOfCellReject, c.OverlapChecks)
		if ic := it.ImplicitCounters(); ic.InsertCount > 0 {
			logrus.Infof("Depletant insertions: %d (%d non-excluded)", ic.InsertCount, ic.InsertAcceptCount)
		}

		logrus.Info("Simulation complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to the simulation YAML config")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().IntVar(&sweeps, "sweeps", 0, "Override the number of sweeps from the config")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "Override the RNG seed from the config")
	runCmd.Flags().BoolVar(&noTuning, "no-tuning", false, "Disable the stage autotuners")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
