package events

const (
	// KindUserSpeechStarted identifies start of user speech activity. Clients
	// should stop playing assistant audio when they receive it.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserUtteranceDiscarded identifies an utterance rejected before
	// transcription for being too short or too quiet.
	KindUserUtteranceDiscarded Kind = "user_input.utterance_discarded"
	// KindUserTranscriptFinal identifies the final transcript for the utterance.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
)

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct{ Base }

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserUtteranceDiscarded marks an utterance that never reached transcription.
type UserUtteranceDiscarded struct {
	Base
	Reason string `json:"reason"`
}

// NewUserUtteranceDiscarded creates an utterance discarded event.
func NewUserUtteranceDiscarded(reason string) UserUtteranceDiscarded {
	return UserUtteranceDiscarded{Base: NewBase(KindUserUtteranceDiscarded), Reason: reason}
}

// UserTranscriptFinal carries the final transcript for the utterance.
type UserTranscriptFinal struct {
	Base
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// NewUserTranscriptFinal creates a final transcript event.
func NewUserTranscriptFinal(transcript string, confidence float64) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript, Confidence: confidence}
}
