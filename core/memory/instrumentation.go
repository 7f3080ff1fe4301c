package memory

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-tutor/core/memory"

var (
	tracer = otel.Tracer(scopeName)
)
