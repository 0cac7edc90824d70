// Package config loads lazycache settings from YAML or JSON with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/unkn0wn-root/lazycache/codec"
	"github.com/unkn0wn-root/lazycache/gate"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Environment overrides, applied after the file.
const (
	EnvRedisAddr     = "LAZYCACHE_REDIS_ADDR"
	EnvRedisPassword = "LAZYCACHE_REDIS_PASSWORD"
	EnvCodec         = "LAZYCACHE_CODEC"
	EnvLogLevel      = "LAZYCACHE_LOG_LEVEL"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrLoadFailed        = errors.New("config: load failed")
	ErrParseFailed       = errors.New("config: parse failed")
	ErrInvalid           = errors.New("config: invalid")
)

type Config struct {
	Redis     Redis     `koanf:"redis"`
	Codec     string    `koanf:"codec"`
	Scheduler Scheduler `koanf:"scheduler"`
	Gate      Gate      `koanf:"gate"`
	Log       Log       `koanf:"log"`
}

type Redis struct {
	Addr      string        `koanf:"addr"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	KeyPrefix string        `koanf:"key_prefix"`
	OpTimeout time.Duration `koanf:"op_timeout"`
}

type Scheduler struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
}

// Gate mirrors the gate package defaults. SweepInterval 0 disables sweeping.
type Gate struct {
	AdmitWindow   time.Duration `koanf:"admit_window"`
	FastCooldown  time.Duration `koanf:"fast_cooldown"`
	SlowCooldown  time.Duration `koanf:"slow_cooldown"`
	SlowThreshold time.Duration `koanf:"slow_threshold"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type Log struct {
	Level string `koanf:"level"`
}

func Default() Config {
	return Config{
		Redis: Redis{
			Addr:      "localhost:6379",
			OpTimeout: time.Second,
		},
		Codec: "json",
		Scheduler: Scheduler{
			Workers:   4,
			QueueSize: 1024,
		},
		Gate: Gate{
			AdmitWindow:   gate.DefaultAdmitWindow,
			FastCooldown:  gate.DefaultFastCooldown,
			SlowCooldown:  gate.DefaultSlowCooldown,
			SlowThreshold: gate.DefaultSlowThreshold,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path (format from its extension) over the defaults and applies
// environment overrides. An empty path yields defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		format, err := detectFormat(path)
		if err != nil {
			return Config{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		if cfg, err = Parse(data, format); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, cfg.Validate()
}

// Parse decodes data over the defaults. Keys missing from data keep their
// default values.
func Parse(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, ErrUnsupportedFormat
	}

	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the LAZYCACHE_* variables that lookup finds.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Redis.Addr = v
	}
	if v, ok := lookup(EnvRedisPassword); ok {
		c.Redis.Password = v
	}
	if v, ok := lookup(EnvCodec); ok && v != "" {
		c.Codec = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is empty"))
	}
	if c.Redis.OpTimeout < 0 {
		errs = append(errs, errors.New("redis.op_timeout is negative"))
	}
	if _, err := codec.Lookup(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.Workers <= 0 {
		errs = append(errs, errors.New("scheduler.workers must be positive"))
	}
	if c.Scheduler.QueueSize <= 0 {
		errs = append(errs, errors.New("scheduler.queue_size must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"gate.admit_window":   c.Gate.AdmitWindow,
		"gate.fast_cooldown":  c.Gate.FastCooldown,
		"gate.slow_cooldown":  c.Gate.SlowCooldown,
		"gate.slow_threshold": c.Gate.SlowThreshold,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Gate.SweepInterval < 0 {
		errs = append(errs, errors.New("gate.sweep_interval is negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is unknown", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// GateOptions returns the registry options described by c.Gate.
func (c Config) GateOptions() []gate.Option {
	opts := []gate.Option{
		gate.WithCooldowns(c.Gate.AdmitWindow, c.Gate.FastCooldown, c.Gate.SlowCooldown, c.Gate.SlowThreshold),
	}
	if c.Gate.SweepInterval > 0 {
		opts = append(opts, gate.WithSweep(c.Gate.SweepInterval))
	}
	return opts
}

func (c Config) NewCodec() (codec.Codec, error) {
	return codec.Lookup(c.Codec)
}

func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}
