package report

import (
	"fmt"
	"strings"

	"gateway-bench/internal/config"
	"gateway-bench/internal/stats"
)

// ConsoleReporter handles human-readable output around a run.
type ConsoleReporter struct{}

// NewConsoleReporter creates a new console reporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// PrintHeader prints the run parameters before the test starts.
func (c *ConsoleReporter) PrintHeader(cfg *config.Config, runID string) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("Streaming Gateway Load Test")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID: %s\n", runID)
	fmt.Printf("Gateway: %s (stream: %s)\n", cfg.HTTPURL, cfg.WSURL)
	fmt.Printf("Clients: %d (max %d concurrent)\n", cfg.NumClients, cfg.MaxConcurrent)
	fmt.Printf("Cycles per Client: %d\n", cfg.CyclesPerClient)
	fmt.Printf("Response Length: %d words, %s per token\n", cfg.ResponseLengthWords, cfg.TokenDelay)
	fmt.Printf("Timeouts: connect %s, request %s\n", cfg.ConnectionTimeout, cfg.RequestTimeout)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// PrintSummary prints the final aggregated results.
func (c *ConsoleReporter) PrintSummary(agg *stats.AggregatedStats) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("  Total Clients:      %d\n", agg.TotalClients)
	fmt.Printf("  Total Cycles:       %d\n", agg.TotalCycles)
	fmt.Printf("  Total Requests:     %d\n", agg.TotalRequests)
	fmt.Printf("  Duration:           %.2fs\n", agg.Duration.Seconds())

	fmt.Println("\n  Throughput:")
	fmt.Printf("    Requests/sec:     %.2f\n", agg.RequestsPerSecond)
	fmt.Printf("    Tokens/sec:       %.2f\n", agg.TokensPerSecond)
	fmt.Printf("    Cycles/sec:       %.2f\n", agg.CyclesPerSecond)

	fmt.Println("\n  Request Latency (ms):")
	fmt.Printf("    P50:              %.2f\n", agg.RequestLatencyP50)
	fmt.Printf("    P95:              %.2f\n", agg.RequestLatencyP95)
	fmt.Printf("    P99:              %.2f\n", agg.RequestLatencyP99)
	fmt.Printf("    Max:              %.2f\n", agg.RequestLatencyMax)

	fmt.Println("\n  First Token Latency (ms):")
	fmt.Printf("    P50:              %.2f\n", agg.TokenLatencyP50)
	fmt.Printf("    P95:              %.2f\n", agg.TokenLatencyP95)
	fmt.Printf("    P99:              %.2f\n", agg.TokenLatencyP99)
	fmt.Printf("    Max:              %.2f\n", agg.TokenLatencyMax)

	fmt.Println("\n  Connections:")
	fmt.Printf("    Successful:       %d\n", agg.SuccessfulConnections)
	fmt.Printf("    Failed:           %d\n", agg.FailedConnections)
	fmt.Printf("    Reconnections:    %d\n", agg.TotalReconnections)
	fmt.Printf("    Total Errors:     %d\n", agg.TotalErrors)

	if len(agg.TimeoutsByKind) > 0 {
		fmt.Println("\n  Timeout Breakdown:")
		for _, kind := range []stats.TimeoutKind{stats.RequestTimeout, stats.FirstTokenTimeout, stats.CompletionTimeout} {
			if n := agg.TimeoutsByKind[kind]; n > 0 {
				fmt.Printf("    %s: %d\n", kind, n)
			}
		}
	}

	fmt.Println(strings.Repeat("=", 80))
}

// PrintReportSaved prints where the markdown report landed.
func (c *ConsoleReporter) PrintReportSaved(filename string) {
	fmt.Printf("\nReport saved to: %s\n", filename)
}
