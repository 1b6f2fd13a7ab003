package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gateway-bench/internal/config"
	"gateway-bench/internal/stats"
)

// MarkdownReporter generates markdown reports
type MarkdownReporter struct {
	config *config.Config
	runID  string
}

// NewMarkdownReporter creates a new markdown reporter
func NewMarkdownReporter(cfg *config.Config, runID string) *MarkdownReporter {
	return &MarkdownReporter{
		config: cfg,
		runID:  runID,
	}
}

// Generate generates the full markdown report
func (m *MarkdownReporter) Generate(agg *stats.AggregatedStats) string {
	var sb strings.Builder

	sb.WriteString("# Streaming Gateway Load Test Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Run ID: `%s`\n\n", m.runID))

	m.writeConfiguration(&sb)
	m.writeSummary(&sb, agg)
	m.writeLatency(&sb, agg)
	m.writeConnections(&sb, agg)

	return sb.String()
}

func (m *MarkdownReporter) writeConfiguration(sb *strings.Builder) {
	sb.WriteString("## Test Configuration\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Gateway | %s |\n", m.config.HTTPURL))
	sb.WriteString(fmt.Sprintf("| Stream Endpoint | %s |\n", m.config.WSURL))
	sb.WriteString(fmt.Sprintf("| Clients | %d |\n", m.config.NumClients))
	sb.WriteString(fmt.Sprintf("| Max Concurrent | %d |\n", m.config.MaxConcurrent))
	sb.WriteString(fmt.Sprintf("| Cycles per Client | %d |\n", m.config.CyclesPerClient))
	sb.WriteString(fmt.Sprintf("| Response Length | %d words |\n", m.config.ResponseLengthWords))
	sb.WriteString(fmt.Sprintf("| Token Delay | %s |\n", m.config.TokenDelay))
	sb.WriteString(fmt.Sprintf("| Connect Timeout | %s |\n", m.config.ConnectionTimeout))
	sb.WriteString(fmt.Sprintf("| Request Timeout | %s |\n\n", m.config.RequestTimeout))
}

func (m *MarkdownReporter) writeSummary(sb *strings.Builder, agg *stats.AggregatedStats) {
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Clients | %d |\n", agg.TotalClients))
	sb.WriteString(fmt.Sprintf("| Total Cycles | %d |\n", agg.TotalCycles))
	sb.WriteString(fmt.Sprintf("| Total Requests | %d |\n", agg.TotalRequests))
	sb.WriteString(fmt.Sprintf("| Tokens Received | %d |\n", agg.TotalTokensReceived))
	sb.WriteString(fmt.Sprintf("| Duration | %.2fs |\n", agg.Duration.Seconds()))
	sb.WriteString(fmt.Sprintf("| Requests/sec | %.2f |\n", agg.RequestsPerSecond))
	sb.WriteString(fmt.Sprintf("| Tokens/sec | %.2f |\n", agg.TokensPerSecond))
	sb.WriteString(fmt.Sprintf("| Cycles/sec | %.2f |\n\n", agg.CyclesPerSecond))
}

func (m *MarkdownReporter) writeLatency(sb *strings.Builder, agg *stats.AggregatedStats) {
	sb.WriteString("## Latency\n\n")
	sb.WriteString("| Metric | P50 (ms) | P95 (ms) | P99 (ms) | Max (ms) |\n")
	sb.WriteString("|--------|----------|----------|----------|----------|\n")
	sb.WriteString(fmt.Sprintf("| Request | %.2f | %.2f | %.2f | %.2f |\n",
		agg.RequestLatencyP50, agg.RequestLatencyP95, agg.RequestLatencyP99, agg.RequestLatencyMax))
	sb.WriteString(fmt.Sprintf("| First Token | %.2f | %.2f | %.2f | %.2f |\n\n",
		agg.TokenLatencyP50, agg.TokenLatencyP95, agg.TokenLatencyP99, agg.TokenLatencyMax))
}

func (m *MarkdownReporter) writeConnections(sb *strings.Builder, agg *stats.AggregatedStats) {
	sb.WriteString("## Connections and Errors\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Successful Connections | %d |\n", agg.SuccessfulConnections))
	sb.WriteString(fmt.Sprintf("| Failed Connections | %d |\n", agg.FailedConnections))
	sb.WriteString(fmt.Sprintf("| Reconnections | %d |\n", agg.TotalReconnections))
	sb.WriteString(fmt.Sprintf("| Total Errors | %d |\n", agg.TotalErrors))

	for _, kind := range []stats.TimeoutKind{stats.RequestTimeout, stats.FirstTokenTimeout, stats.CompletionTimeout} {
		if n := agg.TimeoutsByKind[kind]; n > 0 {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", kind, n))
		}
	}
	sb.WriteString("\n")
}

// SaveToFile writes the report content to a file
func (m *MarkdownReporter) SaveToFile(content, filename string) error {
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
