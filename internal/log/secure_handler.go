package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys that are always masked.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"cookies":             true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,

	// Site session cookies
	"sn":  true,
	"at":  true,
	"rt":  true,
	"ud":  true,
	"vd":  true,
	"sid": true,

	// Store connection strings
	"dsn":          true,
	"postgres_dsn": true,
	"postgresdsn":  true,
	"password":     true,
}

// sensitiveKeywords are substrings that mark a key as sensitive.
// The bare word "key" is left out because product payloads use it for
// ordinary fields such as "keySpecs".
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "cookie", "session",
}

// sensitivePatterns mask values regardless of the key they are logged under.
var sensitivePatterns = []*regexp.Regexp{
	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// Bearer and basic credentials
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// URLs with user:password@ userinfo, e.g. postgres DSNs
	regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[^/:@\s]+:[^/@\s]+@`),

	// key=value DSNs with a password field
	regexp.MustCompile(`(?i)(^|\s)password=\S+`),
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler wraps an slog.Handler and masks sensitive attributes
// before the record reaches the wrapped handler.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the sanitized attributes added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() == slog.KindString && isSensitiveValue(a.Value.String()) {
		return slog.String(a.Key, MaskValue)
	}
	return a
}

// isSensitiveKey reports whether the attribute key names a secret.
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	if sensitiveKeys[keyLower] {
		return true
	}
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}

// isSensitiveValue checks if a value matches sensitive patterns.
func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// NewSecureLogger creates a text logger that masks sensitive values.
// verbose selects the Debug level, otherwise Info.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger creates a JSON lines logger that masks sensitive values.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
