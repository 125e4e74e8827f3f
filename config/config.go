// Package config provides loading and parsing of audityzer.yaml configuration
// files. Every section is optional; accessors fall back to defaults for
// missing or invalid values.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/audityzer/integration"
	"github.com/zero-day-ai/audityzer/query"
	"github.com/zero-day-ai/audityzer/queue"
)

// Analyzer modes.
const (
	ModeHTTP  = "http"
	ModeQueue = "queue"
)

// Target sources.
const (
	SourceStatic = "static"
	SourceEtcd   = "etcd"
)

// Notifier kinds.
const (
	NotifierLog   = "log"
	NotifierQueue = "queue"
)

// Config represents an audityzer.yaml configuration file.
type Config struct {
	Server       *ServerConfig      `yaml:"server,omitempty"`
	Redis        *RedisConfig       `yaml:"redis,omitempty"`
	Etcd         *EtcdConfig        `yaml:"etcd,omitempty"`
	Analysis     *AnalysisConfig    `yaml:"analysis,omitempty"`
	Worker       *WorkerConfig      `yaml:"worker,omitempty"`
	Integrations *IntegrationConfig `yaml:"integrations,omitempty"`
	Query        *QueryConfig       `yaml:"query,omitempty"`
	Log          *LogConfig         `yaml:"log,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address. Default: ":8080"
	Addr string `yaml:"addr,omitempty"`

	// ReadTimeout and WriteTimeout are Go duration strings. Defaults: 15s, 60s
	ReadTimeout  string `yaml:"read_timeout,omitempty"`
	WriteTimeout string `yaml:"write_timeout,omitempty"`
}

// GetAddr returns the listen address or the default value.
func (s *ServerConfig) GetAddr() string {
	if s == nil || s.Addr == "" {
		return ":8080"
	}
	return s.Addr
}

// GetReadTimeout returns the read timeout or the default value.
func (s *ServerConfig) GetReadTimeout() time.Duration {
	if s == nil {
		return 15 * time.Second
	}
	return parseDuration(s.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the write timeout or the default value.
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	if s == nil {
		return 60 * time.Second
	}
	return parseDuration(s.WriteTimeout, 60*time.Second)
}

// RedisConfig configures the Redis connection used by the queue analyzer,
// the worker and the queue notifier.
type RedisConfig struct {
	// URL is the connection string. Default: "redis://localhost:6379"
	URL string `yaml:"url,omitempty"`

	// PollTimeout bounds each blocking pop. Default: 1s
	PollTimeout string `yaml:"poll_timeout,omitempty"`
}

// GetURL returns the Redis URL or the default value.
func (r *RedisConfig) GetURL() string {
	if r == nil || r.URL == "" {
		return "redis://localhost:6379"
	}
	return r.URL
}

// Options returns the queue client options for this section.
func (r *RedisConfig) Options() queue.RedisOptions {
	opts := queue.RedisOptions{URL: r.GetURL()}
	if r != nil {
		opts.PollTimeout = parseDuration(r.PollTimeout, time.Second)
	}
	return opts
}

// EtcdConfig configures the etcd target source.
type EtcdConfig struct {
	Endpoints   []string               `yaml:"endpoints,omitempty"`
	Prefix      string                 `yaml:"prefix,omitempty"`
	DialTimeout string                 `yaml:"dial_timeout,omitempty"`
	TLS         *integration.TLSConfig `yaml:"tls,omitempty"`
}

// Client returns the integration etcd settings for this section.
func (e *EtcdConfig) Client() integration.EtcdConfig {
	if e == nil {
		return integration.EtcdConfig{Prefix: integration.DefaultEtcdPrefix, DialTimeout: 5 * time.Second}
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = integration.DefaultEtcdPrefix
	}
	return integration.EtcdConfig{
		Endpoints:   e.Endpoints,
		Prefix:      prefix,
		DialTimeout: parseDuration(e.DialTimeout, 5*time.Second),
		TLS:         e.TLS,
	}
}

// AnalysisConfig selects and configures the analyzer.
type AnalysisConfig struct {
	// Mode is "http" or "queue". Default: "http"
	Mode string `yaml:"mode,omitempty"`

	// Endpoint is the audit service URL used in http mode.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Queue is the Redis list used in queue mode. Default: queue.AuditQueue
	Queue string `yaml:"queue,omitempty"`

	// MaxConcurrent limits Running jobs. Default: 0 (unlimited)
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`
}

// GetMode returns the analyzer mode or the default value.
func (a *AnalysisConfig) GetMode() string {
	if a == nil || a.Mode == "" {
		return ModeHTTP
	}
	return strings.ToLower(a.Mode)
}

// GetQueue returns the audit queue or the default value.
func (a *AnalysisConfig) GetQueue() string {
	if a == nil || a.Queue == "" {
		return queue.AuditQueue
	}
	return a.Queue
}

// GetMaxConcurrent returns the concurrency limit, zero meaning unlimited.
func (a *AnalysisConfig) GetMaxConcurrent() int {
	if a == nil || a.MaxConcurrent < 0 {
		return 0
	}
	return a.MaxConcurrent
}

// WorkerConfig defines configuration for queue-based audit workers.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines. Default: 4
	Concurrency int `yaml:"concurrency,omitempty"`

	// ShutdownTimeout is a Go duration string. Default: 30s
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`

	// HeartbeatInterval is a Go duration string. Default: 10s
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty"`
}

// GetConcurrency returns the configured concurrency or the default value.
func (w *WorkerConfig) GetConcurrency() int {
	if w == nil || w.Concurrency <= 0 {
		return 4
	}
	return w.Concurrency
}

// GetShutdownTimeout parses the shutdown timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (w *WorkerConfig) GetShutdownTimeout() time.Duration {
	if w == nil {
		return 30 * time.Second
	}
	return parseDuration(w.ShutdownTimeout, 30*time.Second)
}

// GetHeartbeatInterval parses the heartbeat interval string and returns a duration.
// Returns the default value if not set or invalid.
func (w *WorkerConfig) GetHeartbeatInterval() time.Duration {
	if w == nil {
		return 10 * time.Second
	}
	return parseDuration(w.HeartbeatInterval, 10*time.Second)
}

// IntegrationConfig configures where targets come from and how tickets
// are delivered.
type IntegrationConfig struct {
	// Source is "static" or "etcd". Default: "static"
	Source string `yaml:"source,omitempty"`

	// Notifier is "log" or "queue". Default: "log"
	Notifier string `yaml:"notifier,omitempty"`

	// Targets is the static target list.
	Targets []integration.Target `yaml:"targets,omitempty"`
}

// GetSource returns the target source or the default value.
func (i *IntegrationConfig) GetSource() string {
	if i == nil || i.Source == "" {
		return SourceStatic
	}
	return strings.ToLower(i.Source)
}

// GetNotifier returns the notifier kind or the default value.
func (i *IntegrationConfig) GetNotifier() string {
	if i == nil || i.Notifier == "" {
		return NotifierLog
	}
	return strings.ToLower(i.Notifier)
}

// StaticTargets returns the configured targets as a source.
func (i *IntegrationConfig) StaticTargets() integration.Static {
	if i == nil {
		return nil
	}
	return integration.Static(i.Targets)
}

// QueryConfig configures the scan history view.
type QueryConfig struct {
	// PageSize is the number of jobs per page. Default: query.DefaultPageSize
	PageSize int `yaml:"page_size,omitempty"`
}

// GetPageSize returns the page size or the default value.
func (q *QueryConfig) GetPageSize() int {
	if q == nil || q.PageSize <= 0 {
		return query.DefaultPageSize
	}
	return q.PageSize
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level,omitempty"`

	// Format is "text" or "json". Default: text
	Format string `yaml:"format,omitempty"`
}

// GetLevel returns the slog level, or info when unset or unknown.
func (l *LogConfig) GetLevel() slog.Level {
	if l == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// GetFormat returns the handler format or the default value.
func (l *LogConfig) GetFormat() string {
	if l == nil || !strings.EqualFold(l.Format, "json") {
		return "text"
	}
	return "json"
}

// Validate checks the values that have no usable default.
func (c *Config) Validate() error {
	switch mode := c.Analysis.GetMode(); mode {
	case ModeHTTP:
		if c.Analysis == nil || c.Analysis.Endpoint == "" {
			return fmt.Errorf("analysis.endpoint is required in %s mode", ModeHTTP)
		}
	case ModeQueue:
	default:
		return fmt.Errorf("unknown analysis mode: %s", mode)
	}

	switch source := c.Integrations.GetSource(); source {
	case SourceStatic:
	case SourceEtcd:
		if c.Etcd == nil || len(c.Etcd.Endpoints) == 0 {
			return fmt.Errorf("etcd.endpoints is required for the %s target source", SourceEtcd)
		}
	default:
		return fmt.Errorf("unknown integration source: %s", source)
	}

	switch notifier := c.Integrations.GetNotifier(); notifier {
	case NotifierLog, NotifierQueue:
	default:
		return fmt.Errorf("unknown notifier: %s", notifier)
	}
	return nil
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// Load reads and parses an audityzer.yaml file from the given path.
// If the path is a directory, it looks for audityzer.yaml or audityzer.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{"audityzer.yaml", "audityzer.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no audityzer.yaml or audityzer.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
