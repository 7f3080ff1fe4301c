package events

const (
	// KindAssistantResponseSegment identifies streamed assistant response text.
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	// KindAssistantResponseFinal identifies assistant response stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseSegment carries a streamed assistant response text segment.
// Annotation blocks are included verbatim.
type AssistantResponseSegment struct {
	Base
	Segment string `json:"segment"`
}

// NewAssistantResponseSegment creates an assistant response segment event.
func NewAssistantResponseSegment(segment string) AssistantResponseSegment {
	return AssistantResponseSegment{Base: NewBase(KindAssistantResponseSegment), Segment: segment}
}

// AssistantResponseFinal carries the complete raw reply text.
type AssistantResponseFinal struct {
	Base
	Text string `json:"text"`
}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(text string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), Text: text}
}
