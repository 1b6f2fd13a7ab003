package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gateway-bench/internal/stats"
)

// Exporter serves the live run counters on /metrics so a long test can be
// watched from the outside. The gauges mirror the shared atomic counters;
// Update is called from the progress ticker.
type Exporter struct {
	registry *prometheus.Registry
	srv      *http.Server
	log      *zap.Logger

	cycles        prometheus.Gauge
	tokens        prometheus.Gauge
	errors        prometheus.Gauge
	reconnects    prometheus.Gauge
	activeClients prometheus.Gauge
}

// NewExporter creates an Exporter with its own registry.
func NewExporter(log *zap.Logger) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		log:      log,
		cycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_bench_cycles_completed",
			Help: "Cycles completed so far in this run",
		}),
		tokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_bench_tokens_received",
			Help: "Stream tokens received so far in this run",
		}),
		errors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_bench_errors",
			Help: "Errors recorded so far in this run",
		}),
		reconnects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_bench_reconnections",
			Help: "Successful stream reconnections so far in this run",
		}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_bench_active_clients",
			Help: "Clients currently inside the admission limiter",
		}),
	}

	e.registry.MustRegister(e.cycles, e.tokens, e.errors, e.reconnects, e.activeClients)
	return e
}

// Update refreshes the gauges from the live counters.
func (e *Exporter) Update(c *stats.Counters) {
	e.cycles.Set(float64(c.Cycles.Load()))
	e.tokens.Set(float64(c.Tokens.Load()))
	e.errors.Set(float64(c.Errors.Load()))
	e.reconnects.Set(float64(c.Reconnects.Load()))
	e.activeClients.Set(float64(c.ActiveClients.Load()))
}

// Serve starts the /metrics listener on addr in the background.
func (e *Exporter) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.srv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := e.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
	e.log.Info("metrics listener started", zap.String("addr", addr))
}

// Shutdown stops the listener, waiting briefly for in-flight scrapes.
func (e *Exporter) Shutdown() {
	if e.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = e.srv.Shutdown(ctx)
}
