package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/llms"
	"github.com/koscakluka/ema-tutor/core/texttospeech"
)

type stubSynthesizer struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]error
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text string, _ ...texttospeech.SynthesisOption) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if err, ok := s.fail[text]; ok {
		return nil, err
	}
	return []byte(strings.ToUpper(text)), nil
}

func (s *stubSynthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Emit(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) SpeechChunks() []events.AssistantSpeechChunk {
	var chunks []events.AssistantSpeechChunk
	for _, event := range r.Events() {
		if chunk, ok := event.(events.AssistantSpeechChunk); ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func (r *eventRecorder) Kinds() []events.Kind {
	var kinds []events.Kind
	for _, event := range r.Events() {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

type failingStream struct {
	increments []string
	err        error
}

func (s failingStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, increment := range s.increments {
			if !yield(llms.NewContentChunk(increment, nil), nil) {
				return
			}
		}
		yield(nil, s.err)
	}
}

func runPipeline(t *testing.T, synthesizer *stubSynthesizer, stream llms.Stream) (*eventRecorder, string, error) {
	t.Helper()
	recorder := &eventRecorder{}
	pipeline := newResponsePipeline(DefaultReplyConfig(), synthesizer, recorder.Emit)
	reply, err := pipeline.Run(context.Background(), stream)
	return recorder, reply, err
}

func assertFinalEvents(t *testing.T, recorder *eventRecorder, expectedText string) {
	t.Helper()
	all := recorder.Events()
	if len(all) < 2 {
		t.Fatalf("expected final events, got %v", recorder.Kinds())
	}
	final, ok := all[len(all)-2].(events.AssistantResponseFinal)
	if !ok {
		t.Fatalf("expected response final second to last, got %v", recorder.Kinds())
	}
	if final.Text != expectedText {
		t.Fatalf("expected final text %q, got %q", expectedText, final.Text)
	}
	if all[len(all)-1].Kind() != events.KindAssistantSpeechFinal {
		t.Fatalf("expected speech final last, got %v", recorder.Kinds())
	}
}

func TestResponsePipelineChunksAtSentenceBoundaries(t *testing.T) {
	synthesizer := &stubSynthesizer{}
	recorder, reply, err := runPipeline(t, synthesizer,
		llms.NewTextStream("Paris is", " the capital.", " It has", " many museums."))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	chunks := recorder.SpeechChunks()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 speech chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "Paris is the capital." || chunks[0].Seq != 0 {
		t.Fatalf("unexpected first chunk %q seq %d", chunks[0].Text, chunks[0].Seq)
	}
	if chunks[1].Text != "It has many museums." || chunks[1].Seq != 1 {
		t.Fatalf("unexpected second chunk %q seq %d", chunks[1].Text, chunks[1].Seq)
	}
	if string(chunks[0].Audio) != "PARIS IS THE CAPITAL." {
		t.Fatalf("expected synthesized audio to be attached, got %q", chunks[0].Audio)
	}

	segments := 0
	for _, event := range recorder.Events() {
		if event.Kind() == events.KindAssistantResponseSegment {
			segments++
		}
	}
	if segments != 4 {
		t.Fatalf("expected 4 text segments, got %d", segments)
	}
	assertFinalEvents(t, recorder, "Paris is the capital. It has many museums.")
	lastSegment, firstChunk := -1, -1
	for i, event := range recorder.Events() {
		switch event.Kind() {
		case events.KindAssistantResponseSegment:
			lastSegment = i
		case events.KindAssistantSpeechChunk:
			if firstChunk < 0 {
				firstChunk = i
			}
		}
	}
	if firstChunk < lastSegment {
		t.Fatalf("expected speech to be released after the reply completed, got %v", recorder.Kinds())
	}
	if reply != "Paris is the capital. It has many museums." {
		t.Fatalf("expected full reply, got %q", reply)
	}
}

func TestResponsePipelineUnterminatedCorrectionProducesNoAudio(t *testing.T) {
	synthesizer := &stubSynthesizer{}
	recorder, _, err := runPipeline(t, synthesizer,
		llms.NewTextStream("[CORREC", "TION] You should say ", "'I went'. Great job! Tell me more about it."))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if chunks := recorder.SpeechChunks(); len(chunks) != 0 {
		t.Fatalf("expected no speech chunks, got %+v", chunks)
	}
	if texts := synthesizer.Texts(); len(texts) != 0 {
		t.Fatalf("expected synthesizer to stay idle, got %v", texts)
	}
	assertFinalEvents(t, recorder, "[CORRECTION] You should say 'I went'. Great job! Tell me more about it.")
}

func TestResponsePipelineUnterminatedCorrectionDropsEarlierSpeech(t *testing.T) {
	testCases := []struct {
		name       string
		increments []string
	}{
		{
			name:       "text before the block",
			increments: []string{"Great job.", " [CORRECTION] You should say 'I went'.", " Tell me more."},
		},
		{
			name:       "second block never closes",
			increments: []string{"[CORRECTION] a [/CORRECTION] Nice work.", " [CORRECTION] b"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder, reply, err := runPipeline(t, &stubSynthesizer{}, llms.NewTextStream(testCase.increments...))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if chunks := recorder.SpeechChunks(); len(chunks) != 0 {
				t.Fatalf("expected no speech chunks, got %+v", chunks)
			}
			assertFinalEvents(t, recorder, strings.Join(testCase.increments, ""))
			if reply != strings.Join(testCase.increments, "") {
				t.Fatalf("expected full reply, got %q", reply)
			}
		})
	}
}

func TestResponsePipelineSkipsCorrectionBlock(t *testing.T) {
	synthesizer := &stubSynthesizer{}
	recorder, _, err := runPipeline(t, synthesizer,
		llms.NewTextStream("[CORRECTION] I went, not I goed. [/CORR", "ECTION] Nice work! Tell me more."))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	chunks := recorder.SpeechChunks()
	if len(chunks) != 2 || chunks[0].Text != "Nice work!" || chunks[1].Text != "Tell me more." {
		t.Fatalf("expected only text after the block to be spoken, got %+v", chunks)
	}
	for _, text := range synthesizer.Texts() {
		if strings.Contains(text, "goed") {
			t.Fatalf("expected correction text never to reach synthesis, got %q", text)
		}
	}
}

func TestResponsePipelineDropsPunctuationOnlyChunks(t *testing.T) {
	synthesizer := &stubSynthesizer{}
	recorder, _, err := runPipeline(t, synthesizer, llms.NewTextStream("...", " !!", " ?"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if texts := synthesizer.Texts(); len(texts) != 0 {
		t.Fatalf("expected no synthesis for punctuation, got %v", texts)
	}
	assertFinalEvents(t, recorder, "... !! ?")
}

func TestResponsePipelineSkipsFailedSynthesis(t *testing.T) {
	synthesizer := &stubSynthesizer{fail: map[string]error{"First one.": context.DeadlineExceeded}}
	recorder, _, err := runPipeline(t, synthesizer, llms.NewTextStream("First one.", " Second one."))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	chunks := recorder.SpeechChunks()
	if len(chunks) != 1 || chunks[0].Text != "Second one." || chunks[0].Seq != 0 {
		t.Fatalf("expected only the second chunk with seq 0, got %+v", chunks)
	}
	assertFinalEvents(t, recorder, "First one. Second one.")
}

func TestResponsePipelineAbortsOnDialogueFailure(t *testing.T) {
	synthesizer := &stubSynthesizer{}
	streamErr := errors.New("upstream reset")
	recorder, reply, err := runPipeline(t, synthesizer,
		failingStream{increments: []string{"Hello there"}, err: streamErr})
	if !errors.Is(err, streamErr) {
		t.Fatalf("expected stream error, got %v", err)
	}
	if reply != "Hello there" {
		t.Fatalf("expected partial reply, got %q", reply)
	}

	for _, event := range recorder.Events() {
		switch event.Kind() {
		case events.KindAssistantResponseFinal, events.KindAssistantSpeechFinal:
			t.Fatalf("expected no final events after failure, got %v", recorder.Kinds())
		}
	}
	if kinds := recorder.Kinds(); len(kinds) == 0 || kinds[0] != events.KindAssistantResponseSegment {
		t.Fatalf("expected the segment received before the failure, got %v", kinds)
	}
}

func TestResponsePipelineFlushesLongRunsWithoutPunctuation(t *testing.T) {
	synthesizer := &stubSynthesizer{}
	words := strings.Repeat("word ", 12)
	recorder, _, err := runPipeline(t, synthesizer, llms.NewTextStream(words, "and the end"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	chunks := recorder.SpeechChunks()
	if len(chunks) != 2 {
		t.Fatalf("expected word count chunk and remainder, got %+v", chunks)
	}
	if chunks[0].Text != strings.TrimSpace(words) || chunks[1].Text != "and the end" {
		t.Fatalf("unexpected chunks %q and %q", chunks[0].Text, chunks[1].Text)
	}
}
