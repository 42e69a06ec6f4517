package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/seqexport/pkg/buildinfo"
	"github.com/matzehuels/seqexport/pkg/cache"
	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/config"
	"github.com/matzehuels/seqexport/pkg/delivery"
	"github.com/matzehuels/seqexport/pkg/export"
	"github.com/matzehuels/seqexport/pkg/sequence"
	"github.com/matzehuels/seqexport/pkg/transcode"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	cfg        *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Seqexport turns choreography sequences into animated images",
		Long:         `Seqexport plays a beat-based prop sequence frame by frame and exports it as an animated GIF or WebP laid out on a grid of beat cells.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/seqexport/config.toml)")

	root.AddCommand(c.exportCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig loads the configuration file once per process.
func (c *CLI) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// runnerOpts selects the optional parts of a runner.
type runnerOpts struct {
	noCache   bool
	outputDir string
	clock     export.FrameClock
}

// newRunner creates an export runner from the configuration. The returned
// cache is shared with the transcoder; the caller closes it with the runner.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, ro runnerOpts) (*export.Runner, cache.Cache, cache.Keyer, error) {
	store, keyer, err := c.newCache(ctx, cfg, ro.noCache)
	if err != nil {
		return nil, nil, nil, err
	}

	poolCfg := cfg.PoolConfig()
	poolCfg.Logger = c.Logger
	pool := canvas.NewPool(poolCfg)

	ffmpeg := transcode.NewFFmpeg(
		transcode.WithBinary(cfg.Transcode.Binary),
		transcode.WithTempDir(cfg.Transcode.TempDir),
		transcode.WithLogger(c.Logger),
	)
	tc := transcode.NewCached(ffmpeg, store, keyer, c.Logger)

	outDir := ro.outputDir
	if outDir == "" {
		outDir = cfg.Output.Dir
	}
	dl, err := delivery.NewDir(outDir, c.Logger)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	runner := export.NewRunner(pool, nil, tc, dl, c.Logger)
	runner.Clock = ro.clock
	if runner.Clock == nil {
		runner.Clock = export.NewTicker(cfg.Export.FrameRate)
	}
	return runner, store, keyer, nil
}

// newCache opens the configured cache backend. A file cache that cannot be
// created degrades to no cache; an unreachable redis is an error.
func (c *CLI) newCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, cache.Keyer, error) {
	var keyer cache.Keyer = cache.NewDefaultKeyer()
	if cfg.Cache.KeyPrefix != "" {
		keyer = cache.NewScopedKeyer(keyer, cfg.Cache.KeyPrefix)
	}
	if noCache {
		return cache.NewNullCache(), keyer, nil
	}

	switch cfg.Cache.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), keyer, nil
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: appName + ":",
		})
		if err != nil {
			return nil, nil, err
		}
		c.Logger.Debug("using redis cache", "addr", cfg.Cache.RedisAddr, "db", cfg.Cache.RedisDB)
		return rc, keyer, nil
	default:
		dir, err := cacheDir(cfg)
		if err != nil {
			return cache.NewNullCache(), keyer, nil
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			c.Logger.Warn("file cache unavailable", "dir", dir, "err", err)
			return cache.NewNullCache(), keyer, nil
		}
		c.Logger.Debug("using file cache", "dir", dir)
		return fc, keyer, nil
	}
}

// =============================================================================
// Sequences
// =============================================================================

// loadSequence reads the sequence named on the command line, or the built-in
// demo when there is none.
func loadSequence(args []string) (*sequence.Sequence, error) {
	if len(args) == 0 || args[0] == "" {
		return sequence.Demo(), nil
	}
	return sequence.Load(args[0])
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the configured cache directory, defaulting to the XDG
// standard (~/.cache/seqexport/).
func cacheDir(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
