package health

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Checker evaluates one dependency.
type Checker func(ctx context.Context) Status

// Pinger is implemented by queue.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerCounter is implemented by queue.Client.
type WorkerCounter interface {
	GetWorkerCount(ctx context.Context, queue string) (int, error)
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	return ctx, func() {}
}

// RedisCheck verifies that Redis answers PING.
func RedisCheck(ctx context.Context, p Pinger) Status {
	if p == nil {
		return Unhealthy("redis client is not configured", nil)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return Unhealthy("redis ping failed", map[string]any{"error": err.Error()})
	}
	return Healthy("redis is reachable")
}

// WorkerCheck reports degraded when no worker is consuming queue, since
// queued audits would never complete.
func WorkerCheck(ctx context.Context, c WorkerCounter, queue string) Status {
	if c == nil {
		return Unhealthy("redis client is not configured", nil)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	count, err := c.GetWorkerCount(ctx, queue)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to read worker count for %s", queue),
			map[string]any{"queue": queue, "error": err.Error()},
		)
	}
	if count <= 0 {
		return Degraded(
			fmt.Sprintf("no workers consuming %s", queue),
			map[string]any{"queue": queue, "workers": count},
		)
	}
	return Status{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d worker(s) consuming %s", count, queue),
		Details: map[string]any{"queue": queue, "workers": count},
	}
}

// EtcdCheck verifies that etcd serves reads under prefix.
func EtcdCheck(ctx context.Context, kv clientv3.KV, prefix string) Status {
	if kv == nil {
		return Unhealthy("etcd client is not configured", nil)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	resp, err := kv.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return Unhealthy("etcd read failed", map[string]any{"prefix": prefix, "error": err.Error()})
	}
	return Status{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("etcd is reachable, %d key(s) under %s", resp.Count, prefix),
		Details: map[string]any{"prefix": prefix, "keys": resp.Count},
	}
}

// NetworkCheck verifies TCP connectivity to a host and port, e.g. the audit
// endpoint in http mode.
func NetworkCheck(ctx context.Context, host string, port int) Status {
	if host == "" {
		return Unhealthy("host cannot be empty", nil)
	}
	if port <= 0 || port > 65535 {
		return Unhealthy(
			fmt.Sprintf("invalid port number: %d", port),
			map[string]any{"port": port},
		)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to connect to %s", address),
			map[string]any{
				"host":  host,
				"port":  port,
				"error": err.Error(),
			},
		)
	}
	conn.Close()

	return Healthy(fmt.Sprintf("successfully connected to %s", address))
}

// Combine aggregates multiple health checks into a single status.
// The result follows this priority:
//   - If any check is unhealthy, the result is unhealthy
//   - If any check is degraded (and none unhealthy), the result is degraded
//   - If all checks are healthy, the result is healthy
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthy, degraded []string
	var healthyCount int
	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(
			fmt.Sprintf("%d check(s) failed", len(unhealthy)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthy),
				"degraded":      len(degraded),
				"healthy":       healthyCount,
				"failed_checks": unhealthy,
			},
		)
	}
	if len(degraded) > 0 {
		return Degraded(
			fmt.Sprintf("%d check(s) degraded", len(degraded)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degraded),
				"healthy":         healthyCount,
				"degraded_checks": degraded,
			},
		)
	}
	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}

// Report is the outcome of Run.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]Status `json:"checks,omitempty"`
}

// IsUnhealthy returns true if any check is unhealthy.
func (r Report) IsUnhealthy() bool {
	return r.Status == StatusUnhealthy
}

// Run evaluates every named check in name order and combines the results.
func Run(ctx context.Context, checks map[string]Checker) Report {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{Checks: make(map[string]Status, len(checks))}
	statuses := make([]Status, 0, len(checks))
	for _, name := range names {
		s := checks[name](ctx)
		report.Checks[name] = s
		statuses = append(statuses, s)
	}
	report.Status = Combine(statuses...).Status
	return report
}
