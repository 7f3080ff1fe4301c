package groq

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-tutor/core/llms/groq"

var (
	tracer = otel.Tracer(scopeName)
)
