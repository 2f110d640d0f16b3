package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wheelport/wheelport/internal/batch"
	"github.com/wheelport/wheelport/internal/envdetect"
	"github.com/wheelport/wheelport/internal/envspec"
	"github.com/wheelport/wheelport/internal/install"
	"github.com/wheelport/wheelport/internal/store"
)

var version = "0.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "wheelport",
		Short:         "A wheel installer engine",
		Long:          "wheelport unpacks and installs already-downloaded Python wheels into an environment or a shared store.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	installCmd := &cobra.Command{
		Use:   "install [wheel...]",
		Short: "Install one or more wheel files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInstall,
	}

	installCmd.Flags().String("python", "", "Interpreter to install into (required)")
	installCmd.Flags().String("target", "", "Override site-packages directory (default: detected from --python)")
	installCmd.Flags().String("store", "", "Install into the shared content-addressed store at this root instead of directly into the environment")
	installCmd.Flags().IntP("jobs", "j", 0, "Max concurrent operations (default: GOMAXPROCS); also bounds per-wheel batch concurrency")
	installCmd.Flags().Bool("compile-bytecode", false, "Precompile installed .py files to .pyc")
	installCmd.Flags().Bool("skip-hashes", false, "Skip RECORD hash and size verification (archive membership and zip CRC checks still apply)")
	installCmd.Flags().Duration("lock-timeout", 0, "Max time to wait for the environment/store lock (0: wait indefinitely)")
	installCmd.Flags().BoolP("verbose", "v", false, "Verbose logging")
	installCmd.Flags().Bool("stop-on-error", false, "Abort remaining installs in the batch as soon as one fails")

	rootCmd.AddCommand(installCmd)

	return rootCmd.Execute()
}

type installFlags struct {
	pythonBin       string
	target          string
	storeRoot       string
	jobs            int
	compileBytecode bool
	skipHashes      bool
	lockTimeout     time.Duration
	verbose         bool
	stopOnError     bool
}

func parseInstallFlags(cmd *cobra.Command) installFlags {
	pythonBin, _ := cmd.Flags().GetString("python")
	target, _ := cmd.Flags().GetString("target")
	storeRoot, _ := cmd.Flags().GetString("store")
	jobs, _ := cmd.Flags().GetInt("jobs")
	compileBytecode, _ := cmd.Flags().GetBool("compile-bytecode")
	skipHashes, _ := cmd.Flags().GetBool("skip-hashes")
	lockTimeout, _ := cmd.Flags().GetDuration("lock-timeout")
	verbose, _ := cmd.Flags().GetBool("verbose")
	stopOnError, _ := cmd.Flags().GetBool("stop-on-error")

	return installFlags{pythonBin, target, storeRoot, jobs, compileBytecode, skipHashes, lockTimeout, verbose, stopOnError}
}

func runInstall(cmd *cobra.Command, args []string) error {
	start := time.Now()
	flags := parseInstallFlags(cmd)

	if flags.pythonBin == "" {
		return fmt.Errorf("--python is required")
	}

	logger := newLogger(flags.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	spec, err := detectEnv(ctx, flags.pythonBin, flags.target, logger)
	if err != nil {
		return err
	}

	opts := []install.Option{
		install.WithLogger(logger),
		install.WithCompileBytecode(flags.compileBytecode),
		install.WithSkipHashes(flags.skipHashes),
		install.WithLockTimeout(flags.lockTimeout),
	}

	if flags.jobs > 0 {
		opts = append(opts, install.WithMaxWorkers(flags.jobs))
	}

	if flags.storeRoot != "" {
		mgr, err := store.New(store.WithRoot(flags.storeRoot), store.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("opening store %s: %w", flags.storeRoot, err)
		}

		opts = append(opts, install.WithStore(mgr))
	}

	svc := install.New(opts...)

	batchOpts := []batch.Option{
		batch.WithLogger(logger),
		batch.WithStopOnError(flags.stopOnError),
	}
	if flags.jobs > 0 {
		batchOpts = append(batchOpts, batch.WithMaxWorkers(flags.jobs))
	}

	driver := batch.New(svc, batchOpts...)

	jobs := make([]batch.Job, len(args))
	for i, wheelPath := range args {
		abs, err := filepath.Abs(wheelPath)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", wheelPath, err)
		}

		jobs[i] = batch.Job{WheelPath: abs, Spec: spec}
	}

	outcomes, err := driver.Run(ctx, jobs)

	printOutcomes(outcomes)

	if err != nil {
		return err
	}

	if failed := batch.Failures(outcomes); len(failed) > 0 {
		return fmt.Errorf("%d of %d wheels failed to install", len(failed), len(outcomes))
	}

	fmt.Printf("\nDone in %.1fs\n", time.Since(start).Seconds())

	return nil
}

func printOutcomes(outcomes []batch.Outcome) {
	for _, o := range outcomes {
		name := filepath.Base(o.Job.WheelPath)

		if o.Err != nil {
			fmt.Printf("  ✗ %s: %v\n", name, o.Err)
			continue
		}

		switch {
		case o.Summary.AlreadyComplete:
			fmt.Printf("  ✓ %s (already in store: %s)\n", name, o.Summary.Dest)
		default:
			fmt.Printf("  ✓ %s -> %s (%d files)\n", name, o.Summary.Dest, o.Summary.FilesWritten)
		}

		for _, w := range o.Summary.Warnings {
			fmt.Printf("    ! %s: %s\n", w.Name, w.Message)
		}

		for _, f := range o.Summary.BytecompileFail {
			fmt.Printf("    ! bytecompile failed for %s: %s\n", f.Source, f.Reason)
		}
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func detectEnv(ctx context.Context, pythonBin, target string, logger *slog.Logger) (envspec.Spec, error) {
	detector := envdetect.New()

	spec, err := detector.Detect(ctx, pythonBin)
	if err != nil {
		return envspec.Spec{}, fmt.Errorf("detecting Python environment: %w", err)
	}

	spec.Logger = logger

	if target != "" {
		absTarget, err := filepath.Abs(target)
		if err != nil {
			return envspec.Spec{}, fmt.Errorf("resolving target directory: %w", err)
		}

		spec.SitePackages = absTarget
		spec.SysPaths[envspec.Purelib] = absTarget
		spec.SysPaths[envspec.Platlib] = absTarget
	}

	logger.Debug("detected Python environment",
		slog.String("interpreter", spec.InterpreterPath),
		slog.String("site-packages", spec.SitePackages),
		slog.Int("python-major", spec.PythonMajor),
		slog.Int("python-minor", spec.PythonMinor),
	)

	return spec, nil
}
