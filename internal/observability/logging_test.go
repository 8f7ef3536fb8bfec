package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerDefaultsToJSONInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "hello", "key", "value")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "hello" || line["key"] != "value" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestNewLoggerDebugLevelIsFiltered(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Level: "warn"})

	logger.Info(context.Background(), "should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn(context.Background(), "should appear")
	if buf.Len() == 0 {
		t.Fatal("expected warn line to be written")
	}
}

func TestWithContextAnnotatesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	ctx := context.WithValue(context.Background(), SessionIDKey, "sess-1")
	ctx = context.WithValue(ctx, ChannelKey, "telegram")

	logger.WithContext(ctx).Info(ctx, "processing")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["session_id"] != "sess-1" || line["channel"] != "telegram" {
		t.Fatalf("expected correlation fields in log line: %v", line)
	}
}

func TestRedactsAPIKeysFromMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "calling provider with api_key=sk-ant-"+strings.Repeat("a", 95))

	if strings.Contains(buf.String(), "sk-ant-") {
		t.Fatalf("expected api key to be redacted, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("expected redaction marker in output, got %q", buf.String())
	}
}

func TestRedactsSensitiveArgValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "login", "password", "correct horse battery staple")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["password"] != "[REDACTED]" {
		t.Fatalf("expected password arg redacted, got %v", line["password"])
	}
}
