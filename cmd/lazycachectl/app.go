package main

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/lazycache"
	"github.com/unkn0wn-root/lazycache/config"
	"github.com/unkn0wn-root/lazycache/gate"
	lzap "github.com/unkn0wn-root/lazycache/log/zap"
	redisstore "github.com/unkn0wn-root/lazycache/store/redis"
)

type app struct {
	c    *lazycache.Client
	gate *gate.Registry
	log  *zap.Logger
}

func (a *app) Close(ctx context.Context) {
	if err := a.c.Close(ctx); err != nil {
		a.log.Warn("close client", zap.Error(err))
	}
	a.gate.Close()
	_ = a.log.Sync()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lazycachectl",
		Short:         "Inspect and edit lazycache entries",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML or JSON config file")
	root.PersistentFlags().String("redis-addr", "", "redis address (env "+config.EnvRedisAddr+")")
	root.PersistentFlags().String("prefix", "", "key prefix")
	root.PersistentFlags().String("codec", "", "payload codec (env "+config.EnvCodec+")")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error (env "+config.EnvLogLevel+")")

	root.AddCommand(
		newGetCmd(),
		newHGetCmd(),
		newSetCmd(),
		newHSetCmd(),
		newExpireCmd(),
		newAppendCmd(),
		newRemoveCmd(),
	)
	return root
}

// flagOr returns the named string flag if set, otherwise def.
func flagOr(cmd *cobra.Command, name, def string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return def
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagOr(cmd, "config", ""))
	if err != nil {
		return config.Config{}, err
	}
	cfg.Redis.Addr = flagOr(cmd, "redis-addr", cfg.Redis.Addr)
	cfg.Redis.KeyPrefix = flagOr(cmd, "prefix", cfg.Redis.KeyPrefix)
	cfg.Codec = flagOr(cmd, "codec", cfg.Codec)
	cfg.Log.Level = flagOr(cmd, "log-level", cfg.Log.Level)
	return cfg, cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	conf := zap.NewProductionConfig()
	conf.EncoderConfig.TimeKey = "timestamp"
	conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	conf.Level = parseLogLevel(level)
	return conf.Build()
}

func parseLogLevel(s string) zap.AtomicLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "WARN":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "ERROR":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	cd, err := cfg.NewCodec()
	if err != nil {
		return nil, err
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	st, err := redisstore.New(redisstore.Config{
		Client:      rdb,
		KeyPrefix:   cfg.Redis.KeyPrefix,
		OpTimeout:   cfg.Redis.OpTimeout,
		CloseClient: true,
	})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	g := gate.New(cfg.GateOptions()...)
	c, err := lazycache.New(lazycache.Options{
		Store:     st,
		Codec:     cd,
		Logger:    lzap.ZapLogger{L: log.Named("lazycache")},
		Workers:   cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
		Gate:      g,
	})
	if err != nil {
		g.Close()
		_ = st.Close(cmd.Context())
		return nil, err
	}
	log.Debug("connected", zap.String("redis", cfg.Redis.Addr), zap.String("codec", cd.Name()))
	return &app{c: c, gate: g, log: log}, nil
}

// run opens the client, calls fn and closes everything afterwards.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func ttlFlag(cmd *cobra.Command) time.Duration {
	d, _ := cmd.Flags().GetDuration("ttl")
	return d
}
