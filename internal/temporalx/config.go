// Package temporalx wraps the Temporal SDK for contractdesk's optional
// durable-execution solve mode: a thin workflow+activity pair around
// solvepipeline.Pipeline.Run, so a solve survives a worker process crash
// mid-run instead of having to be re-triggered by a caller. It is grounded
// on the teacher's internal/temporalx package (dial/backoff client,
// namespace ensure, worker runner), trimmed to contractdesk's single-run
// workflow shape.
package temporalx

import (
	"strings"

	"github.com/riverdock/contractdesk/internal/platform/envutil"
)

// Config parameterises the Temporal connection. An empty Address disables
// durable-execution mode entirely; callers fall back to calling
// solvepipeline.Pipeline.Run in-process.
type Config struct {
	Address   string
	Namespace string
	TaskQueue string
}

// LoadConfig reads TEMPORAL_ADDRESS / TEMPORAL_NAMESPACE / TEMPORAL_TASK_QUEUE,
// in the same parse-or-default style as the rest of contractdesk's config.
func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(envutil.String("TEMPORAL_ADDRESS", "")),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "contractdesk"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "contractdesk-solve"),
	}
}
