package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tagforge/plugman/internal/config"
	"github.com/tagforge/plugman/internal/gitsource"
	"github.com/tagforge/plugman/internal/manager"
	"github.com/tagforge/plugman/internal/plugerr"
	"github.com/tagforge/plugman/internal/registry"
	"github.com/tagforge/plugman/internal/version"
)

// Exit codes, one per error family
const (
	exitOK           = 0
	exitGeneral      = 1
	exitNotFound     = 2
	exitNetwork      = 3
	exitGit          = 4
	exitBlacklisted  = 5
	exitIncompatible = 6
	exitBadManifest  = 7
	exitCancelled    = 8
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:           "plugman",
		Short:         "CLI tool for managing TagForge plugins",
		SilenceErrors: true,
		SilenceUsage:  true,
		Long: `plugman installs and manages TagForge plugins distributed as
git repositories, resolved through the central plugin registry.

Commands:
  install      Install a plugin by registry id, git URL or local path
  uninstall    Remove an installed plugin
  list         Show installed plugins and their states
  update       Update one plugin, update-all for every plugin
  enable       Enable an installed plugin
  disable      Disable an enabled plugin
  browse       Pick plugins interactively from the registry
  search       Search the registry`,
	}
)

// Execute runs the root command and maps the error to an exit code
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitCode(err))
}

// exitCode maps the error taxonomy onto the documented exit codes
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}

	var (
		cancelled   *plugerr.CancelledError
		blacklisted *plugerr.BlacklistedError
		incompat    *plugerr.IncompatibleAPIError
		badManifest *plugerr.ManifestInvalidError
		noManifest  *plugerr.ManifestNotFoundError
		network     *plugerr.NetworkError
		gitErr      *plugerr.GitError
		notFound    *plugerr.NotFoundError
	)
	switch {
	case errors.As(err, &cancelled):
		return exitCancelled
	case errors.As(err, &blacklisted):
		return exitBlacklisted
	case errors.As(err, &incompat):
		return exitIncompatible
	case errors.As(err, &badManifest), errors.As(err, &noManifest):
		return exitBadManifest
	case errors.As(err, &network):
		return exitNetwork
	case errors.As(err, &gitErr):
		return exitGit
	case errors.As(err, &notFound):
		return exitNotFound
	}
	return exitGeneral
}

// newLogger builds the console logger; --verbose lowers the level to debug
func newLogger() *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newManager wires the full dependency chain for a command invocation
func newManager(ctx context.Context) (*manager.Manager, error) {
	logger := newLogger()

	paths := config.DefaultPaths()
	store := config.NewStore(paths)

	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}

	reg := registry.NewClient(
		config.RegistryURL(cfg.RegistryURL),
		paths.RegistryCachePath(),
		logger,
	)
	src := gitsource.NewSource(&gitsource.DefaultClient{Timeout: 5 * time.Minute}, logger)

	mgr := manager.New(manager.Options{
		Store:    store,
		Registry: reg,
		Source:   src,
		Logger:   logger,
		HostAPIs: version.HostAPIs,
	})
	if err := mgr.LoadInstalled(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}

func init() {
	// accept underscore spellings for multi-word flags
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
