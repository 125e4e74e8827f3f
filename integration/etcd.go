package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdPrefix is the key prefix targets are stored under.
const DefaultEtcdPrefix = "/audityzer/integrations/"

// EtcdConfig configures the etcd connection used by EtcdSource.
type EtcdConfig struct {
	// Endpoints is the list of etcd endpoints, e.g. ["localhost:2379"].
	Endpoints []string

	// Prefix is the key prefix holding one JSON target per key.
	// Default: DefaultEtcdPrefix
	Prefix string

	// DialTimeout bounds connection establishment. Default: 5s
	DialTimeout time.Duration

	// TLS enables mutual TLS when set and enabled.
	TLS *TLSConfig
}

// NewEtcdClient connects to etcd and verifies the cluster answers.
func NewEtcdClient(cfg EtcdConfig) (*clientv3.Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	}
	tlsConfig, err := cfg.TLS.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	clientCfg.TLS = tlsConfig

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}
	return cli, nil
}

// EtcdSource reads targets stored as JSON values under a key prefix.
// Targets are returned in ascending key order; a target without a name takes
// the last segment of its key.
//
//	/audityzer/integrations/01-jira  {"name":"Jira","connected":true,"projectId":"SEC"}
type EtcdSource struct {
	kv     clientv3.KV
	prefix string
}

// NewEtcdSource returns a source reading under prefix, or DefaultEtcdPrefix
// when prefix is empty.
func NewEtcdSource(kv clientv3.KV, prefix string) *EtcdSource {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	return &EtcdSource{kv: kv, prefix: prefix}
}

// Targets lists the targets under the prefix.
func (s *EtcdSource) Targets(ctx context.Context) ([]Target, error) {
	resp, err := s.kv.Get(ctx, s.prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return nil, fmt.Errorf("list targets under %s: %w", s.prefix, err)
	}

	targets := make([]Target, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var t Target
		if err := json.Unmarshal(kv.Value, &t); err != nil {
			return nil, fmt.Errorf("decode target %s: %w", kv.Key, err)
		}
		if t.Name == "" {
			t.Name = path.Base(strings.TrimSuffix(string(kv.Key), "/"))
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// PutTarget stores t under prefix+key.
func PutTarget(ctx context.Context, kv clientv3.KV, prefix, key string, t Target) error {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal target: %w", err)
	}
	if _, err := kv.Put(ctx, prefix+key, string(data)); err != nil {
		return fmt.Errorf("store target %s: %w", key, err)
	}
	return nil
}
