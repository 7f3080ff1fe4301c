// Package events defines the typed outbound event contract of a voice
// session.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_speech.*
//   - turn_state.*
//   - session.*
//
// Semantics used across the package:
//
//   - Segment: append-only text piece emitted in stream order.
//   - Chunk: synthesized audio for a span of reply text, ordered by Seq.
//   - Final: terminal immutable text/state for the current turn phase.
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): speech activity began;
//     clients stop any assistant playback (barge-in).
//   - UserUtteranceDiscarded (user_input.utterance_discarded): utterance was
//     too short or too quiet to transcribe.
//   - UserTranscriptFinal (user_input.transcript_final): terminal transcript
//     for the utterance.
//
// assistant_response events
//
//   - AssistantResponseSegment (assistant_response.segment): streamed reply
//     text, annotation blocks included.
//   - AssistantResponseFinal (assistant_response.final): complete raw reply.
//
// assistant_speech events
//
//   - AssistantSpeechChunk (assistant_speech.chunk): synthesized audio for one
//     chunk of reply text.
//   - AssistantSpeechFinal (assistant_speech.final): no more audio follows for
//     the reply. Always emitted after AssistantResponseFinal.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a user turn started.
//   - TurnCompleted (turn_state.completed): the turn completed successfully.
//   - TurnFailed (turn_state.failed): the turn was aborted; no final text or
//     audio events follow.
//
// session events
//
//   - SessionStateChanged (session.state_changed): lifecycle transition.
//   - SessionError (session.error): failure surfaced to the client.
//   - SessionPong (session.pong): answer to a ping.
package events
