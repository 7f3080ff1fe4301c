package events

const (
	// KindAssistantSpeechChunk identifies synthesized audio for one chunk of
	// reply text.
	KindAssistantSpeechChunk Kind = "assistant_speech.chunk"
	// KindAssistantSpeechFinal identifies TTS generation completion.
	KindAssistantSpeechFinal Kind = "assistant_speech.final"
)

// AssistantSpeechChunk carries synthesized audio together with the text it
// speaks. Seq starts at 0 for every reply and increases by one per chunk.
type AssistantSpeechChunk struct {
	Base
	Text  string `json:"text"`
	Audio []byte `json:"audio"`
	Seq   int    `json:"seq"`
}

// NewAssistantSpeechChunk creates an assistant speech chunk event.
func NewAssistantSpeechChunk(text string, audio []byte, seq int) AssistantSpeechChunk {
	return AssistantSpeechChunk{Base: NewBase(KindAssistantSpeechChunk), Text: text, Audio: audio, Seq: seq}
}

// AssistantSpeechFinal marks completion of TTS generation.
type AssistantSpeechFinal struct{ Base }

// NewAssistantSpeechFinal creates an assistant speech final event.
func NewAssistantSpeechFinal() AssistantSpeechFinal {
	return AssistantSpeechFinal{Base: NewBase(KindAssistantSpeechFinal)}
}
