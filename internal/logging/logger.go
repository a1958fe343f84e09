package logging

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const RedactedText = "[REDACTED]"

var (
	// user:pass@host in URLs
	credentialsPattern = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)
	// password=xxx in key/value DSNs
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
)

// New builds the process logger. Development uses the console encoder,
// everything else emits JSON.
func New(development bool, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// SanitizeConnectionString strips credentials from a connection string before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	out := credentialsPattern.ReplaceAllString(connStr, "://"+RedactedText+"@")
	return passwordPattern.ReplaceAllString(out, "${1}="+RedactedText)
}
