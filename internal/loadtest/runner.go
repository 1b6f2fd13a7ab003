package loadtest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gateway-bench/internal/client"
	"gateway-bench/internal/config"
	"gateway-bench/internal/metrics"
	"gateway-bench/internal/stats"
)

// Runner schedules all simulated clients through the admission limiter,
// collects their records, and reduces them to the final aggregate. A client
// failing never aborts the batch; the aggregate is produced even if every
// client failed.
type Runner struct {
	cfg      *config.Config
	api      client.SessionAPI
	dialer   client.StreamDialer
	log      *zap.Logger
	counters *stats.Counters
	exporter *metrics.Exporter
}

// NewRunner creates a Runner driving clients against api and dialer.
func NewRunner(cfg *config.Config, api client.SessionAPI, dialer client.StreamDialer, log *zap.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		api:      api,
		dialer:   dialer,
		log:      log,
		counters: &stats.Counters{},
	}
}

// SetExporter attaches a metrics exporter refreshed by the progress ticker.
func (r *Runner) SetExporter(e *metrics.Exporter) {
	r.exporter = e
}

// Counters exposes the live running totals for external observation.
func (r *Runner) Counters() *stats.Counters {
	return r.counters
}

// Run executes the whole batch and returns the aggregate. Cancelling ctx
// stops scheduling and lets running clients wind down; whatever completed is
// still aggregated.
func (r *Runner) Run(ctx context.Context) *stats.AggregatedStats {
	r.log.Info("load test starting",
		zap.Int("clients", r.cfg.NumClients),
		zap.Int("cycles_per_client", r.cfg.CyclesPerClient),
		zap.Int("max_concurrent", r.cfg.MaxConcurrent))

	limiter := NewLimiter(r.cfg.MaxConcurrent)
	results := make(chan *stats.ClientStats, r.cfg.NumClients)

	progressDone := make(chan struct{})
	var progressOnce sync.Once
	stopProgress := func() { progressOnce.Do(func() { close(progressDone) }) }
	defer stopProgress()
	go r.logProgress(progressDone)

	opts := client.Options{
		Cycles:         r.cfg.CyclesPerClient,
		ConnectTimeout: r.cfg.ConnectionTimeout,
		RequestTimeout: r.cfg.RequestTimeout,
		Retry: client.BackoffPolicy{
			MaxAttempts: r.cfg.ReconnectAttempts,
			Base:        r.cfg.ReconnectBaseDelay,
			Cap:         r.cfg.ReconnectMaxDelay,
		},
	}

	var wg sync.WaitGroup
	for id := 0; id < r.cfg.NumClients; id++ {
		if r.cfg.RampDelay > 0 && id > 0 {
			select {
			case <-time.After(r.cfg.RampDelay):
			case <-ctx.Done():
			}
		}

		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			if err := limiter.Acquire(ctx); err != nil {
				r.log.Warn("client skipped, run cancelled before admission",
					zap.Int("client_id", id))
				return
			}
			defer limiter.Release()

			r.counters.ActiveClients.Add(1)
			defer r.counters.ActiveClients.Add(-1)

			c := client.New(id, opts, r.api, r.dialer, r.counters, r.log)
			results <- c.Run(ctx)
		}(id)
	}

	wg.Wait()
	stopProgress()
	close(results)

	all := make([]*stats.ClientStats, 0, r.cfg.NumClients)
	for s := range results {
		all = append(all, s)
	}

	agg := stats.Aggregate(all)
	r.log.Info("load test finished",
		zap.Int("clients", agg.TotalClients),
		zap.Int("cycles", agg.TotalCycles),
		zap.Duration("duration", agg.Duration))
	return agg
}

// logProgress reports running totals at a fixed interval until the batch
// settles, independent of client completion.
func (r *Runner) logProgress(done <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.log.Info("test progress",
				zap.Int64("cycles", r.counters.Cycles.Load()),
				zap.Int64("tokens", r.counters.Tokens.Load()),
				zap.Int64("errors", r.counters.Errors.Load()),
				zap.Int64("active_clients", r.counters.ActiveClients.Load()))
			if r.exporter != nil {
				r.exporter.Update(r.counters)
			}
		}
	}
}
