// Package logging configures the global logrus logger. Import it with the
// blank identifier from main packages.
package logging

import (
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

const (
	LevelEnv  = "LOG_LEVEL"
	FormatEnv = "LOG_FORMAT"

	redacted = "[redacted]"
)

// Fields that must never reach a log sink in clear.
var sensitiveFields = []string{"secret", "preimage", "api_key", "password"}

func init() {
	Configure(os.Getenv(LevelEnv), os.Getenv(FormatEnv))
}

// Configure sets level and format on the standard logger. An empty level
// means info; an unknown one is fatal.
func Configure(level, format string) {
	logger := log.StandardLogger()
	logger.ReplaceHooks(make(log.LevelHooks))
	logger.AddHook(&contextHook{})
	logger.AddHook(&redactHook{})

	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Fatal(err)
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(formatter(format))

	// Caller info is only worth its cost while debugging.
	logger.SetReportCaller(parsed >= log.DebugLevel)
}

func formatter(format string) log.Formatter {
	if strings.EqualFold(format, "json") {
		return &log.JSONFormatter{}
	}

	return &log.TextFormatter{FullTimestamp: true}
}

// contextHook copies the trace and span ids of entry.Context, if any.
type contextHook struct{}

func (*contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (*contextHook) Fire(entry *log.Entry) error {
	if entry.Context == nil {
		return nil
	}

	span := trace.SpanFromContext(entry.Context).SpanContext()
	if span.IsValid() {
		entry.Data["trace_id"] = span.TraceID().String()
		entry.Data["span_id"] = span.SpanID().String()
		// Datadog correlates on the decimal low 64 bits.
		entry.Data["dd.trace_id"] = lower64(span.TraceID().String())
		entry.Data["dd.span_id"] = lower64(span.SpanID().String())
	}

	return nil
}

// redactHook masks sensitive fields.
type redactHook struct{}

func (*redactHook) Levels() []log.Level {
	return log.AllLevels
}

func (*redactHook) Fire(entry *log.Entry) error {
	for _, field := range sensitiveFields {
		if _, ok := entry.Data[field]; ok {
			entry.Data[field] = redacted
		}
	}

	return nil
}

func lower64(id string) string {
	if len(id) < 16 {
		return ""
	}
	value, err := strconv.ParseUint(id[len(id)-16:], 16, 64)
	if err != nil {
		return ""
	}

	return strconv.FormatUint(value, 10)
}
