package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// TestSecureHandler_SanitizesSensitiveKeys tests that sensitive keys are masked.
func TestSecureHandler_SanitizesSensitiveKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		value    string
		wantMask bool
	}{
		{name: "cookie header", key: "cookie", value: "SN=abc; at=def", wantMask: true},
		{name: "Cookie header uppercase", key: "Cookie", value: "SN=abc", wantMask: true},
		{name: "set-cookie header", key: "Set-Cookie", value: "T=xyz; Path=/", wantMask: true},
		{name: "session cookie SN", key: "SN", value: "VI1234.TOK", wantMask: true},
		{name: "authorization header", key: "authorization", value: "anything", wantMask: true},
		{name: "harvested cookies group key", key: "harvested_cookies", value: "4", wantMask: true},
		{name: "postgres dsn", key: "dsn", value: "host=db", wantMask: true},
		{name: "session id", key: "sessionID", value: "71zejon5o00000001756378958593", wantMask: true},
		{name: "product id is kept", key: "product_id", value: "MOBGHWFHSV7GUFWA", wantMask: false},
		{name: "query is kept", key: "query", value: "Mobile Phones", wantMask: false},
		{name: "keySpecs is kept", key: "keySpecs", value: "8 GB RAM", wantMask: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, true)
			logger.Info("test", tt.key, tt.value)

			output := buf.String()
			masked := strings.Contains(output, MaskValue)
			if masked != tt.wantMask {
				t.Errorf("expected masked=%v, got output %q", tt.wantMask, output)
			}
			if tt.wantMask && strings.Contains(output, tt.value) {
				t.Errorf("value %q leaked into output %q", tt.value, output)
			}
		})
	}
}

// TestSecureHandler_SanitizesSensitivePatterns tests value based masking.
func TestSecureHandler_SanitizesSensitivePatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		wantMask bool
	}{
		{name: "bearer token", value: "Bearer abc.def", wantMask: true},
		{name: "basic auth", value: "Basic dXNlcjpwYXNz", wantMask: true},
		{name: "jwt", value: "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig", wantMask: true},
		{name: "postgres url with password", value: "postgres://ingest:hunter2@db:5432/products", wantMask: true},
		{name: "keyword dsn with password", value: "host=db user=ingest password=hunter2", wantMask: true},
		{name: "postgres url without password", value: "postgres://db:5432/products", wantMask: false},
		{name: "plain url", value: "https://www.flipkart.com/search?q=Mobile+Phones&page=2", wantMask: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, true)
			logger.Info("test", "value", tt.value)

			masked := strings.Contains(buf.String(), MaskValue)
			if masked != tt.wantMask {
				t.Errorf("expected masked=%v, got output %q", tt.wantMask, buf.String())
			}
		})
	}
}

// TestSecureHandler_LogLevels tests the verbose switch.
func TestSecureHandler_LogLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
		wantInfo  bool
	}{
		{name: "verbose logs debug", verbose: true, wantDebug: true, wantInfo: true},
		{name: "quiet logs info only", verbose: false, wantDebug: false, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, tt.verbose)
			logger.Debug("debug message")
			logger.Info("info message")

			output := buf.String()
			if got := strings.Contains(output, "debug message"); got != tt.wantDebug {
				t.Errorf("debug present=%v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(output, "info message"); got != tt.wantInfo {
				t.Errorf("info present=%v, want %v", got, tt.wantInfo)
			}
		})
	}
}

// TestSecureHandler_WithAttrs tests that attributes bound with With are masked.
func TestSecureHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureLogger(&buf, true).With("cookie", "SN=abc", "strategy", "api")
	logger.Info("fetch")

	output := buf.String()
	if strings.Contains(output, "SN=abc") {
		t.Errorf("cookie leaked: %q", output)
	}
	if !strings.Contains(output, "strategy=api") {
		t.Errorf("expected strategy attribute, got %q", output)
	}
}

// TestSecureHandler_WithGroup tests masking inside groups.
func TestSecureHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureJSONLogger(&buf, true)
	logger.Info("request", slog.Group("headers",
		slog.String("Cookie", "SN=abc"),
		slog.String("Referer", "https://www.flipkart.com/"),
	))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	headers, ok := entry["headers"].(map[string]any)
	if !ok {
		t.Fatalf("expected headers group, got %v", entry)
	}
	if headers["Cookie"] != MaskValue {
		t.Errorf("expected masked cookie, got %v", headers["Cookie"])
	}
	if headers["Referer"] != "https://www.flipkart.com/" {
		t.Errorf("expected referer to be kept, got %v", headers["Referer"])
	}
}

// TestNewSecureJSONLogger tests JSON output.
func TestNewSecureJSONLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureJSONLogger(&buf, false)
	logger.Info("page done", "page", 3, "inserted", 24)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["msg"] != "page done" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["inserted"] != float64(24) {
		t.Errorf("unexpected inserted: %v", entry["inserted"])
	}
}

// TestNewSecureHandler_NilHandler tests the slog.Default fallback.
func TestNewSecureHandler_NilHandler(t *testing.T) {
	t.Parallel()

	handler := NewSecureHandler(nil)
	if handler == nil || handler.handler == nil {
		t.Fatal("expected handler to fall back to slog default")
	}
}
