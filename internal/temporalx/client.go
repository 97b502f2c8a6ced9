package temporalx

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/riverdock/contractdesk/internal/platform/envutil"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// sdkLogger adapts *logger.Logger to the go.temporal.io/sdk/log.Logger
// interface, which expects unsuffixed method names.
type sdkLogger struct {
	*logger.Logger
}

func (l sdkLogger) Debug(msg string, kv ...interface{}) { l.Logger.Debugw(msg, kv...) }
func (l sdkLogger) Info(msg string, kv ...interface{})  { l.Logger.Infow(msg, kv...) }
func (l sdkLogger) Warn(msg string, kv ...interface{})  { l.Logger.Warnw(msg, kv...) }
func (l sdkLogger) Error(msg string, kv ...interface{}) { l.Logger.Errorw(msg, kv...) }

// NewClient dials the configured Temporal server with retry/backoff,
// grounded on temporalx/client.go's dial loop. It returns (nil, nil) when
// TEMPORAL_ADDRESS is unset, so callers can wire durable execution
// unconditionally and simply skip it when no Temporal server is
// configured.
func NewClient(log *logger.Logger) (temporalsdkclient.Client, error) {
	cfg := LoadConfig()
	if cfg.Address == "" {
		if log != nil {
			log.Infow("TEMPORAL_ADDRESS not set; durable solve mode disabled")
		}
		return nil, nil
	}

	opts := temporalsdkclient.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
		Logger:    sdkLogger{log},
	}

	dialTimeout := envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second)
	maxWait := envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", 60*time.Second)
	backoffMin := envutil.Duration("TEMPORAL_DIAL_BACKOFF_MIN", 250*time.Millisecond)
	backoffMax := envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second)

	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		c, err := temporalsdkclient.DialContext(ctx, opts)
		cancel()
		if err == nil {
			if log != nil && attempt > 1 {
				log.Infow("connected to temporal", "address", cfg.Address, "namespace", cfg.Namespace, "attempts", attempt)
			}
			return c, nil
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			return nil, fmt.Errorf("temporalx: dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
		}
		if log != nil {
			log.Warnw("temporal not reachable; retrying", "address", cfg.Address, "attempt", attempt, "error", err)
		}
		time.Sleep(clampBackoff(backoffMin, backoffMax, attempt))
	}
}

func clampBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}
