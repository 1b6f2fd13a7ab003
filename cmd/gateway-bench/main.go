package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gateway-bench/internal/client"
	"gateway-bench/internal/config"
	"gateway-bench/internal/gateway"
	"gateway-bench/internal/loadtest"
	"gateway-bench/internal/metrics"
	"gateway-bench/internal/report"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	defer logger.Sync()

	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := gateway.NewClient(cfg.HTTPURL, cfg.RequestTimeout, log.Named("gateway"))
	wsDialer := gateway.NewDialer(cfg.WSURL, log.Named("stream"))
	dialer := client.DialerFunc(func(ctx context.Context, token string) (client.Stream, error) {
		return wsDialer.Dial(ctx, token)
	})

	console := report.NewConsoleReporter()
	console.PrintHeader(cfg, runID)

	runner := loadtest.NewRunner(cfg, api, dialer, log)

	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter(log.Named("metrics"))
		exporter.Serve(cfg.MetricsAddr)
		defer exporter.Shutdown()
		runner.SetExporter(exporter)
	}

	agg := runner.Run(ctx)
	console.PrintSummary(agg)

	if cfg.ReportFile != "" {
		md := report.NewMarkdownReporter(cfg, runID)
		if err := md.SaveToFile(md.Generate(agg), cfg.ReportFile); err != nil {
			log.Error("failed to save report", zap.Error(err))
			os.Exit(1)
		}
		console.PrintReportSaved(cfg.ReportFile)
	}
}

// buildLogger assembles a console core plus, when a log directory is
// configured, a timestamped JSON file core named after the run shape.
func buildLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zap.InfoLevel),
	}
	closeLog := func() {}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, nil, err
		}
		name := fmt.Sprintf("load_test_%dclients_%dcycles_%s.log",
			cfg.NumClients, cfg.CyclesPerClient, time.Now().Format("20060102_150405"))
		f, err := os.Create(filepath.Join(cfg.LogDir, name))
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zap.InfoLevel))
		closeLog = func() { f.Close() }
	}

	return zap.New(zapcore.NewTee(cores...)), closeLog, nil
}
