// Package health probes the registry's backing services and answers the
// liveness/readiness endpoints.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skilldex-dev/skilldex/internal/kv"
	"github.com/skilldex-dev/skilldex/internal/objstore"
	"go.uber.org/zap"
)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Status is the readiness report for one dependency.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Checker probes the relational store, KV tier, and object store.
type Checker struct {
	db      *pgxpool.Pool
	kv      *kv.Store
	objects objstore.Store
	timeout time.Duration

	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a Checker. timeout bounds each individual probe; 0 selects 5s.
func New(db *pgxpool.Pool, kvStore *kv.Store, objects objstore.Store, timeout time.Duration, logger *zap.Logger) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{db: db, kv: kvStore, objects: objects, timeout: timeout, logger: logger}
}

// SetMetricsRecord configures the probe-result callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) { c.onMetrics = fn }

// Check probes every dependency concurrently and reports per-dependency
// status plus overall readiness.
func (c *Checker) Check(ctx context.Context) (statuses []Status, healthy bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	probes := []struct {
		name  string
		probe func(context.Context) error
	}{
		{"postgres", c.probeDB},
		{"redis", c.probeKV},
		{"objstore", c.probeObjects},
	}

	statuses = make([]Status, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, name string, probe func(context.Context) error) {
			defer wg.Done()
			st := Status{Name: name, Healthy: true}
			if err := probe(ctx); err != nil {
				st.Healthy = false
				st.Error = err.Error()
				c.logger.Warn("health probe failed",
					zap.String("dependency", name), zap.Error(err))
			}
			statuses[i] = st
		}(i, p.name, p.probe)
	}
	wg.Wait()

	healthy = true
	for _, st := range statuses {
		if !st.Healthy {
			healthy = false
		}
	}
	if c.onMetrics != nil {
		c.onMetrics(healthy)
	}
	return statuses, healthy
}

func (c *Checker) probeDB(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.Ping(ctx)
}

func (c *Checker) probeKV(ctx context.Context) error {
	if c.kv == nil {
		return nil
	}
	return c.kv.Client().Ping(ctx).Err()
}

func (c *Checker) probeObjects(ctx context.Context) error {
	if c.objects == nil {
		return nil
	}
	_, err := c.objects.Exists(ctx, "cache/trending.json")
	return err
}
