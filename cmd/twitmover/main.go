package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fd0/twitmover/ingest"
	"github.com/fd0/twitmover/mover"
	"github.com/fd0/twitmover/notify"
	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const lockFilename = ".twitmover.lock"

var opts = struct {
	ConfigFile string
	Verbose    bool
	SweepOnly  bool
}{}

// setupRootContext creates a root context that is cancelled when SIGINT is
// received, tied to a new errgroup.Group. The returned cancel() function
// cancels the outermost context.
func setupRootContext() (wg *errgroup.Group, ctx context.Context, cancel func()) {
	// create new root context, cancel on SIGINT
	ctx, cancel = context.WithCancel(context.Background())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	// couple this context with an errgroup
	wg, ctx = errgroup.WithContext(ctx)

	return wg, ctx, cancel
}

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	formatter := &logrus.TextFormatter{
		FullTimestamp: true,
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		formatter.DisableColors = true
	}

	logger.SetFormatter(formatter)

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	return logger
}

// parseFlags reads the command line and returns the resulting configuration.
// Values from a config file are overridden by flags set explicitly.
func parseFlags(args []string) (Config, error) {
	cfg := DefaultConfig()
	flags := cfg

	fs := pflag.NewFlagSet("twitmover", pflag.ContinueOnError)
	fs.StringVar(&opts.ConfigFile, "config", "", "read settings from YAML `file`")
	fs.StringVar(&flags.WatchDir, "watch-dir", cfg.WatchDir, "watch `directory` for new files")
	fs.StringVar(&flags.DestDir, "dest-dir", cfg.DestDir, "move files to `directory`, relative to the watch dir")
	fs.StringVar(&flags.Prefix, "prefix", cfg.Prefix, "move files whose name starts with `string`")
	fs.DurationVar(&flags.StabilityDelay, "stability-delay", cfg.StabilityDelay, "wait `duration` before moving a new file")
	fs.StringVar(&flags.Backend, "backend", cfg.Backend, "file system notification `backend` (notify, fsnotify)")
	fs.BoolVar(&opts.SweepOnly, "sweep-only", false, "move existing files and exit")
	fs.BoolVar(&opts.Verbose, "verbose", false, "print verbose messages")

	err := fs.Parse(args)
	if err != nil {
		return Config{}, err
	}

	if opts.ConfigFile != "" {
		err = LoadConfig(opts.ConfigFile, &cfg)
		if err != nil {
			return Config{}, err
		}
	}

	if fs.Changed("watch-dir") {
		cfg.WatchDir = flags.WatchDir
	}

	if fs.Changed("dest-dir") {
		cfg.DestDir = flags.DestDir
	}

	if fs.Changed("prefix") {
		cfg.Prefix = flags.Prefix
	}

	if fs.Changed("stability-delay") {
		cfg.StabilityDelay = flags.StabilityDelay
	}

	if fs.Changed("backend") {
		cfg.Backend = flags.Backend
	}

	return cfg, nil
}

func newBackend(cfg Config, logger logrus.FieldLogger) (ingest.Backend, error) {
	if cfg.Backend == "fsnotify" {
		return ingest.NewFSNotifyBackend(logger)
	}

	return ingest.NewNotifyBackend(), nil
}

func run(cfg Config, log *logrus.Logger) error {
	watchDir, destDir, err := cfg.Validate()
	if err != nil {
		return err
	}

	fi, err := os.Stat(watchDir)
	if err != nil {
		return fmt.Errorf("accessing watch dir: %w", err)
	}

	if !fi.IsDir() {
		return fmt.Errorf("watch dir %v is not a directory", watchDir)
	}

	err = mover.CheckTargetDir(destDir)
	if err != nil {
		return err
	}

	lock := flock.New(filepath.Join(destDir, lockFilename))

	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}

	if !ok {
		return fmt.Errorf("another instance is already moving files to %v", destDir)
	}

	defer func() {
		_ = lock.Unlock()
	}()

	log.Infof("monitoring %v", watchDir)
	log.Infof("moving to %v", destDir)
	log.Infof("looking for files starting with %q", cfg.Prefix)

	m := mover.New(destDir, cfg.Prefix, cfg.StabilityDelay)
	m.SetLogger(log)

	if p := notify.FromEnv(log, cfg.Pushover.Token, cfg.Pushover.Recipients); p != nil {
		m.OnFileMoved = p.FileMoved
	}

	log.Info("scanning for existing files")

	n, err := m.Sweep(watchDir)
	if err != nil {
		return err
	}

	log.Infof("moved %d existing files", n)

	if opts.SweepOnly {
		return nil
	}

	backend, err := newBackend(cfg, log)
	if err != nil {
		return err
	}

	wg, ctx, cancel := setupRootContext()
	defer cancel()

	wg.Go(func() error {
		watcher := &ingest.Watcher{
			Dir:       watchDir,
			Backend:   backend,
			OnNewFile: m.Process,
		}
		watcher.SetLogger(log)

		return watcher.Run(ctx)
	})

	err = wg.Wait()
	if err != nil {
		return err
	}

	log.Info("stopped")

	return nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(opts.Verbose)

	err = run(cfg, log)
	if err != nil {
		log.Errorf("error: %v", err)
		os.Exit(1)
	}
}
