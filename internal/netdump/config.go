// Package netdump implements the netdump capture tool: it diverts packets,
// logs them with their owning process, optionally writes them to a pcap
// file and reinjects them.
package netdump

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/imgk/divert-net"
)

// EnvPrefix prefixes environment overrides, e.g. NETDUMP_LOG_LEVEL.
const EnvPrefix = "NETDUMP"

// Config is the complete netdump configuration.
type Config struct {
	Filter       string        `mapstructure:"filter"`
	Layer        string        `mapstructure:"layer"`
	Priority     int           `mapstructure:"priority"`
	Sniff        bool          `mapstructure:"sniff"`
	Async        bool          `mapstructure:"async"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	Recalculate  bool          `mapstructure:"recalculate"`
	Pcap         string        `mapstructure:"pcap"`
	Queue        QueueConfig   `mapstructure:"queue"`
	Attribution  AttrConfig    `mapstructure:"attribution"`
	Driver       DriverConfig  `mapstructure:"driver"`
	Log          LogConfig     `mapstructure:"log"`
}

// QueueConfig holds the engine queue parameters. Zero keeps the engine
// default.
type QueueConfig struct {
	Length uint64        `mapstructure:"length"`
	Time   time.Duration `mapstructure:"time"`
	Size   uint64        `mapstructure:"size"`
}

type AttrConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// DriverConfig selects how the engine library is loaded. A non-empty Image
// maps that file from memory instead of loading DLL from disk.
type DriverConfig struct {
	DLL   string `mapstructure:"dll"`
	Image string `mapstructure:"image"`
}

type LogConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	File   FileConfig `mapstructure:"file"`
}

// FileConfig is the rotating log file output.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("filter", "true")
	v.SetDefault("layer", divert.LayerNetwork.String())
	v.SetDefault("priority", divert.PriorityDefault)
	v.SetDefault("sniff", false)
	v.SetDefault("async", true)
	v.SetDefault("fetch_timeout", "250ms")
	v.SetDefault("recalculate", false)
	v.SetDefault("pcap", "")

	v.SetDefault("queue.length", 0)
	v.SetDefault("queue.time", 0)
	v.SetDefault("queue.size", 0)

	v.SetDefault("attribution.enabled", true)
	v.SetDefault("attribution.cache_size", 1024)
	v.SetDefault("attribution.cache_ttl", "30s")

	v.SetDefault("driver.dll", divert.DefaultDLL)
	v.SetDefault("driver.image", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "netdump.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"filter":      "filter",
	"layer":       "layer",
	"priority":    "priority",
	"sniff":       "sniff",
	"async":       "async",
	"recalculate": "recalculate",
	"pcap":        "pcap",
	"dll":         "driver.dll",
	"image":       "driver.image",
	"log-level":   "log.level",
	"attribute":   "attribution.enabled",
}

// Load reads the configuration from defaults, the optional file at path,
// NETDUMP_ environment variables and flags, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "netdump: read config %s", path)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.WithStack(err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "netdump: unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks what can be checked without the engine.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Filter) == "" {
		return errors.WithStack(divert.ErrEmptyFilter)
	}
	if _, ok := divert.ParseLayer(c.Layer); !ok {
		return errors.Errorf("netdump: unknown layer %q", c.Layer)
	}
	if c.Priority < divert.PriorityLowest || c.Priority > divert.PriorityHighest {
		return errors.WithStack(divert.ErrPriority)
	}
	if c.Async && c.FetchTimeout <= 0 {
		return errors.Errorf("netdump: fetch timeout must be positive, got %v", c.FetchTimeout)
	}
	if q := c.Queue.Length; q != 0 && (q < divert.QueueLengthMin || q > divert.QueueLengthMax) {
		return errors.WithStack(divert.ErrQueueLength)
	}
	if ms := uint64(c.Queue.Time / time.Millisecond); c.Queue.Time != 0 && (ms < divert.QueueTimeMin || ms > divert.QueueTimeMax) {
		return errors.WithStack(divert.ErrQueueTime)
	}
	if q := c.Queue.Size; q != 0 && (q < divert.QueueSizeMin || q > divert.QueueSizeMax) {
		return errors.WithStack(divert.ErrQueueSize)
	}
	return nil
}

// LayerValue is the parsed Layer. Only valid after Validate.
func (c *Config) LayerValue() divert.Layer {
	l, _ := divert.ParseLayer(c.Layer)
	return l
}

// Flags is the flag word the session is opened with.
func (c *Config) Flags() uint64 {
	if c.Sniff {
		return divert.FlagSniff
	}
	return divert.FlagDefault
}
