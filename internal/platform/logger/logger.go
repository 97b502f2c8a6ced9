// Package logger wraps zap into the leveled, redacting logger used across
// contractdesk's components.
package logger

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper around zap's SugaredLogger that redacts
// secret-shaped key/value pairs before they reach the sink.
type Logger struct {
	*zap.SugaredLogger
}

// Mode selects the encoder/level profile.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// New builds a Logger for the given mode. "dev" uses a human-readable
// console encoder at debug level; anything else uses JSON at info level.
func New(mode Mode) *Logger {
	var cfg zap.Config
	if mode == ModeDev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{SugaredLogger: z.Sugar()}
}

// With scopes the logger with redacted key/value pairs.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(kv)...)}
}

func (l *Logger) Debugw(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, sanitizeKVs(kv)...) }
func (l *Logger) Infow(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, sanitizeKVs(kv)...) }
func (l *Logger) Warnw(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, sanitizeKVs(kv)...) }
func (l *Logger) Errorw(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, sanitizeKVs(kv)...) }

var redactKeySuffixes = []string{
	"token", "secret", "password", "client_secret", "api_key", "apikey", "bearer",
}

var hashKeySuffixes = []string{
	"counterparty", "source_file_name", "source_path",
}

func redactionEnabled() bool {
	v := strings.ToLower(os.Getenv("LOG_REDACTION_ENABLED"))
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if !redactionEnabled() {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		out[i+1] = sanitizeValue(key, out[i+1])
	}
	return out
}

func sanitizeValue(key string, v interface{}) interface{} {
	lk := strings.ToLower(key)
	if isRedactKey(lk) {
		return "[REDACTED]"
	}
	if isHashKey(lk) {
		s, ok := v.(string)
		if !ok {
			return v
		}
		return hashValue(s)
	}
	return v
}

func isRedactKey(lk string) bool {
	for _, suf := range redactKeySuffixes {
		if strings.Contains(lk, suf) {
			return true
		}
	}
	return false
}

func isHashKey(lk string) bool {
	for _, suf := range hashKeySuffixes {
		if strings.Contains(lk, suf) {
			return true
		}
	}
	return false
}

func hashValue(s string) string {
	salt := os.Getenv("LOG_HASH_SALT")
	h := fnv32a(salt + s)
	return "h:" + strconv.FormatUint(uint64(h), 16)
}

// fnv32a avoids pulling crypto/sha256 in for a log-obfuscation hash; it is
// not used anywhere that needs collision resistance.
func fnv32a(s string) uint32 {
	const prime32 = 16777619
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime32
	}
	return hash
}
