package transport

import (
	"github.com/invopop/jsonschema"
)

// ControlSchema describes the inbound control messages for client authors.
func ControlSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := reflector.Reflect(&ControlMessage{})
	schema.Title = "ema-tutor control message"
	schema.Description = "Text frames sent by clients on /v1/session. Binary frames carry 16-bit mono PCM audio."
	return schema
}
