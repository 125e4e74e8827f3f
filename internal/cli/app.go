package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zero-day-ai/audityzer"
	"github.com/zero-day-ai/audityzer/analysis"
	"github.com/zero-day-ai/audityzer/config"
	"github.com/zero-day-ai/audityzer/health"
	"github.com/zero-day-ai/audityzer/integration"
	"github.com/zero-day-ai/audityzer/queue"
)

// loadConfig reads the configuration file named by the "config" key, if
// any, and applies the keys set through flags or the environment on top.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := &config.Config{}
	if path := v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v.IsSet("analysis.mode") {
		analysisSection(cfg).Mode = v.GetString("analysis.mode")
	}
	if v.IsSet("analysis.endpoint") {
		analysisSection(cfg).Endpoint = v.GetString("analysis.endpoint")
	}
	if v.IsSet("analysis.max_concurrent") {
		analysisSection(cfg).MaxConcurrent = v.GetInt("analysis.max_concurrent")
	}
	if v.IsSet("redis.url") {
		if cfg.Redis == nil {
			cfg.Redis = &config.RedisConfig{}
		}
		cfg.Redis.URL = v.GetString("redis.url")
	}
	if v.IsSet("server.addr") {
		if cfg.Server == nil {
			cfg.Server = &config.ServerConfig{}
		}
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("worker.concurrency") {
		if cfg.Worker == nil {
			cfg.Worker = &config.WorkerConfig{}
		}
		cfg.Worker.Concurrency = v.GetInt("worker.concurrency")
	}
	if v.IsSet("log.level") || v.IsSet("log.format") {
		if cfg.Log == nil {
			cfg.Log = &config.LogConfig{}
		}
		if v.IsSet("log.level") {
			cfg.Log.Level = v.GetString("log.level")
		}
		if v.IsSet("log.format") {
			cfg.Log.Format = v.GetString("log.format")
		}
	}
	return cfg, nil
}

func analysisSection(cfg *config.Config) *config.AnalysisConfig {
	if cfg.Analysis == nil {
		cfg.Analysis = &config.AnalysisConfig{}
	}
	return cfg.Analysis
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Log.GetLevel()}
	if cfg.Log.GetFormat() == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app holds the collaborators built from a configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *audityzer.Manager
	redis   *queue.RedisClient
	etcd    *clientv3.Client
	checks  map[string]health.Checker
}

// newApp connects the configured backends and builds a manager over them.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, checks: make(map[string]health.Checker)}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	mode := cfg.Analysis.GetMode()
	if mode == config.ModeQueue || cfg.Integrations.GetNotifier() == config.NotifierQueue {
		client, err := queue.NewRedisClient(cfg.Redis.Options())
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.checks["redis"] = func(ctx context.Context) health.Status {
			return health.RedisCheck(ctx, client)
		}
	}

	var analyzer analysis.Analyzer
	switch mode {
	case config.ModeQueue:
		queueName := cfg.Analysis.GetQueue()
		analyzer = analysis.NewQueueAnalyzer(a.redis,
			analysis.WithQueueName(queueName),
			analysis.WithQueueLogger(logger),
		)
		a.checks["workers"] = func(ctx context.Context) health.Status {
			return health.WorkerCheck(ctx, a.redis, queueName)
		}
	default:
		endpoint := cfg.Analysis.Endpoint
		analyzer = analysis.NewHTTPAnalyzer(endpoint, analysis.WithHTTPLogger(logger))
		if host, port, err := endpointHostPort(endpoint); err == nil {
			a.checks["analysis"] = func(ctx context.Context) health.Status {
				return health.NetworkCheck(ctx, host, port)
			}
		}
	}

	var targets integration.Source = cfg.Integrations.StaticTargets()
	if cfg.Integrations.GetSource() == config.SourceEtcd {
		etcdCfg := cfg.Etcd.Client()
		cli, err := integration.NewEtcdClient(etcdCfg)
		if err != nil {
			return nil, err
		}
		a.etcd = cli
		targets = integration.NewEtcdSource(cli, etcdCfg.Prefix)
		a.checks["etcd"] = func(ctx context.Context) health.Status {
			return health.EtcdCheck(ctx, cli, etcdCfg.Prefix)
		}
	}

	var notifier integration.Notifier = integration.NewLogNotifier(logger)
	if cfg.Integrations.GetNotifier() == config.NotifierQueue {
		notifier = integration.NewQueueNotifier(a.redis)
	}

	manager, err := audityzer.New(analyzer,
		audityzer.WithLogger(logger),
		audityzer.WithTargets(targets),
		audityzer.WithNotifier(notifier),
		audityzer.WithMaxConcurrent(cfg.Analysis.GetMaxConcurrent()),
		audityzer.WithTracerProvider(otel.GetTracerProvider()),
		audityzer.WithMeterProvider(otel.GetMeterProvider()),
	)
	if err != nil {
		return nil, err
	}
	a.manager = manager
	ok = true
	return a, nil
}

// Close releases the backend connections.
func (a *app) Close() {
	if a.redis != nil {
		audityzer.CloseWithLog(a.redis, a.logger, "redis client")
	}
	if a.etcd != nil {
		audityzer.CloseWithLog(a.etcd, a.logger, "etcd client")
	}
}

// endpointHostPort returns the dial address of an http(s) URL.
func endpointHostPort(endpoint string) (string, int, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", 0, err
	}
	host, portStr := u.Hostname(), u.Port()
	if portStr == "" {
		portStr = "80"
		if u.Scheme == "https" {
			portStr = "443"
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		return "", 0, &net.AddrError{Err: "missing host", Addr: endpoint}
	}
	return host, port, nil
}
