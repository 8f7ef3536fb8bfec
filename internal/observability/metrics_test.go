package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLLMRequestUpdatesCounterAndTokens(t *testing.T) {
	m := NewMetrics()

	m.RecordLLMRequest("anthropic", "claude-sonnet", "success", 1.25, 100, 50)

	if got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude-sonnet", "success")); got != 1 {
		t.Fatalf("expected request counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-sonnet", "prompt")); got != 100 {
		t.Fatalf("expected 100 prompt tokens, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-sonnet", "completion")); got != 50 {
		t.Fatalf("expected 50 completion tokens, got %v", got)
	}
}

func TestSessionStartedAndEndedTrackGauge(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted("telegram")
	m.SessionStarted("telegram")
	if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("telegram")); got != 2 {
		t.Fatalf("expected gauge 2, got %v", got)
	}

	m.SessionEnded("telegram", 42.0)
	if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("telegram")); got != 1 {
		t.Fatalf("expected gauge 1 after session end, got %v", got)
	}
}

func TestRecordToolExecutionIncrementsCounter(t *testing.T) {
	m := NewMetrics()

	m.RecordToolExecution("web_search", "success", 0.5)
	m.RecordToolExecution("web_search", "error", 0.1)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("web_search", "success")); got != 1 {
		t.Fatalf("expected success counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("web_search", "error")); got != 1 {
		t.Fatalf("expected error counter 1, got %v", got)
	}
}

func TestRecordErrorIncrementsByComponent(t *testing.T) {
	m := NewMetrics()

	m.RecordError("engine", "llm_timeout")
	m.RecordError("engine", "llm_timeout")

	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("engine", "llm_timeout")); got != 2 {
		t.Fatalf("expected error counter 2, got %v", got)
	}
}

func TestRecordMemoryQueryTracksCounterAndStatus(t *testing.T) {
	m := NewMetrics()

	m.RecordMemoryQuery("select", "sqlite", "success", 0.002)

	if got := testutil.ToFloat64(m.MemoryQueryCounter.WithLabelValues("select", "sqlite", "success")); got != 1 {
		t.Fatalf("expected memory query counter 1, got %v", got)
	}
}
