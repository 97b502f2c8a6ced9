// Package envutil provides parse-or-default environment variable readers.
package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Int reads name as an integer, returning def if unset or unparsable.
func Int(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// String reads name, returning def if unset.
func String(name string, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}

// Bool reads name as a boolean, returning def if unset or unparsable.
func Bool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// Duration reads name as a time.Duration string (e.g. "5s"), returning def
// if unset or unparsable.
func Duration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
