// Package config loads seqexport settings from a TOML file.
//
// The file lives at $XDG_CONFIG_HOME/seqexport/config.toml (falling back to
// ~/.config/seqexport/config.toml) unless a path is given explicitly. Every
// key is optional; missing keys and a missing file both yield the package
// defaults, which are taken from the Default* constants of the packages that
// consume them.
//
//	[pool]
//	max_total_memory = 268435456
//	ttl = "2m"
//
//	[export]
//	format = "webp"
//	frames_per_beat = 8
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/encode"
	"github.com/matzehuels/seqexport/pkg/errors"
	"github.com/matzehuels/seqexport/pkg/export"
	"github.com/matzehuels/seqexport/pkg/transcode"
)

// AppName names the config and cache directories.
const AppName = "seqexport"

// Cache backends.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

const (
	// DefaultScale is the beat-cell scale factor of exported images.
	DefaultScale = 1.0

	// DefaultOutputDir is where exports are written when unset.
	DefaultOutputDir = "."

	// DefaultServerAddr is the listen address of `seqexport serve`.
	DefaultServerAddr = "127.0.0.1:8480"

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Duration is a time.Duration written as a string ("30s", "2m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete settings file.
type Config struct {
	Pool      Pool      `toml:"pool"`
	Export    Export    `toml:"export"`
	Transcode Transcode `toml:"transcode"`
	Cache     Cache     `toml:"cache"`
	Output    Output    `toml:"output"`
	Server    Server    `toml:"server"`
}

// Pool configures the canvas pool.
type Pool struct {
	MaxTotalMemory int64    `toml:"max_total_memory"`
	MaxPerBucket   int      `toml:"max_per_bucket"`
	MaxEntryBytes  int64    `toml:"max_entry_bytes"`
	TTL            Duration `toml:"ttl"`
	SweepInterval  Duration `toml:"sweep_interval"`
}

// Export holds per-job defaults; CLI flags and request bodies override them.
type Export struct {
	Format        string   `toml:"format"`
	FramesPerBeat int      `toml:"frames_per_beat"`
	BPM           float64  `toml:"bpm"`
	Scale         float64  `toml:"scale"`
	Title         bool     `toml:"title"`
	Footer        bool     `toml:"footer"`
	Quality       int      `toml:"quality"`
	Repeat        int      `toml:"repeat"`
	SettleDelay   Duration `toml:"settle_delay"`
	FrameRate     int      `toml:"frame_rate"`
}

// Transcode configures the ffmpeg transcoder.
type Transcode struct {
	Binary   string `toml:"binary"`
	Quality  int    `toml:"quality"`
	Lossless bool   `toml:"lossless"`
	TempDir  string `toml:"temp_dir"`
}

// Cache selects and configures the transcode cache backend.
type Cache struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// Output configures file delivery.
type Output struct {
	Dir string `toml:"dir"`
}

// Server configures the HTTP control surface.
type Server struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pool: Pool{
			MaxTotalMemory: canvas.DefaultMaxTotalMemory,
			MaxPerBucket:   canvas.DefaultMaxPerBucket,
			MaxEntryBytes:  canvas.DefaultMaxEntryBytes,
			TTL:            Duration{canvas.DefaultTTL},
			SweepInterval:  Duration{canvas.DefaultSweepInterval},
		},
		Export: Export{
			Format:        export.DefaultFormat,
			FramesPerBeat: export.DefaultFramesPerBeat,
			Scale:         DefaultScale,
			Title:         true,
			Quality:       encode.DefaultQuality,
			SettleDelay:   Duration{export.DefaultSettleDelay},
			FrameRate:     export.DefaultFrameRate,
		},
		Transcode: Transcode{
			Binary:  transcode.DefaultBinary,
			Quality: transcode.DefaultQuality,
		},
		Cache: Cache{
			Backend: CacheFile,
		},
		Output: Output{
			Dir: DefaultOutputDir,
		},
		Server: Server{
			Addr:            DefaultServerAddr,
			ShutdownTimeout: Duration{DefaultShutdownTimeout},
		},
	}
}

// DefaultPath returns the XDG config file location.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName, "config.toml"), nil
}

// Load reads path over the defaults and validates the result. An empty path
// means DefaultPath; a missing file at the default path is not an error, but
// a missing file at an explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "config file %s not found", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Zero values are accepted wherever the
// consuming package treats zero as "use the default".
func (c *Config) Validate() error {
	if c.Pool.MaxTotalMemory < 0 || c.Pool.MaxEntryBytes < 0 || c.Pool.MaxPerBucket < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "pool limits must not be negative")
	}
	if c.Pool.MaxEntryBytes > 0 && c.Pool.MaxTotalMemory > 0 && c.Pool.MaxEntryBytes > c.Pool.MaxTotalMemory {
		return errors.New(errors.ErrCodeInvalidConfig, "pool.max_entry_bytes (%d) exceeds pool.max_total_memory (%d)",
			c.Pool.MaxEntryBytes, c.Pool.MaxTotalMemory)
	}
	if c.Export.Format != "" {
		if err := export.ValidateFormat(c.Export.Format); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "export.format")
		}
	}
	if c.Export.FramesPerBeat < 0 || c.Export.FramesPerBeat > export.MaxFramesPerBeat {
		return errors.New(errors.ErrCodeInvalidConfig, "export.frames_per_beat must be between 1 and %d", export.MaxFramesPerBeat)
	}
	if c.Export.BPM < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "export.bpm must not be negative")
	}
	if c.Export.Scale != 0 {
		if err := errors.ValidateScale(c.Export.Scale); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "export.scale")
		}
	}
	if c.Export.FrameRate < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "export.frame_rate must not be negative")
	}
	if c.Transcode.Quality < 0 || c.Transcode.Quality > 100 {
		return errors.New(errors.ErrCodeInvalidConfig, "transcode.quality must be between 0 and 100")
	}
	switch c.Cache.Backend {
	case "", CacheNone, CacheFile:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_addr is required for the redis backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache.backend %q (must be one of: none, file, redis)", c.Cache.Backend)
	}
	return nil
}

// PoolConfig converts the [pool] section.
func (c *Config) PoolConfig() canvas.Config {
	return canvas.Config{
		MaxTotalMemory: c.Pool.MaxTotalMemory,
		MaxPerBucket:   c.Pool.MaxPerBucket,
		MaxEntryBytes:  c.Pool.MaxEntryBytes,
		TTL:            c.Pool.TTL.Duration,
		SweepInterval:  c.Pool.SweepInterval.Duration,
	}
}

// ExportOptions converts the [export] and [transcode] sections into job
// defaults. Beat count and surface size are filled in per job.
func (c *Config) ExportOptions() export.Options {
	return export.Options{
		Format:        c.Export.Format,
		FramesPerBeat: c.Export.FramesPerBeat,
		BPM:           c.Export.BPM,
		Quality:       c.Export.Quality,
		Repeat:        c.Export.Repeat,
		WebPQuality:   c.Transcode.Quality,
		Lossless:      c.Transcode.Lossless,
		SettleDelay:   c.Export.SettleDelay.Duration,
	}
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
