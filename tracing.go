package river

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys
const (
	AttrRunID         = attribute.Key("river.run.id")
	AttrCommand       = attribute.Key("river.command")
	AttrTimeLimitMS   = attribute.Key("river.time_limit_ms")
	AttrMemoryLimitKB = attribute.Key("river.memory_limit_kb")
	AttrKind          = attribute.Key("river.outcome.kind")
	AttrTimeUsedMS    = attribute.Key("river.time_used_ms")
	AttrMemoryUsedKB  = attribute.Key("river.memory_used_kb")
	AttrExitCode      = attribute.Key("river.exit_code")
)
