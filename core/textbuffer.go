package orchestration

import (
	"sync"
)

// textBuffer hands speakable chunks from the text worker to the speech
// worker in order.
type textBuffer struct {
	mu           sync.Mutex
	chunks       []string
	textComplete bool
	cleared      bool
	updateSignal chan struct{}
}

func newTextBuffer() *textBuffer {
	return &textBuffer{updateSignal: make(chan struct{}, 1)}
}

func (b *textBuffer) AddChunk(chunk string) {
	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.mu.Unlock()
	b.signalUpdate()
}

// TextComplete lets Chunks return once the queue drains.
func (b *textBuffer) TextComplete() {
	b.mu.Lock()
	b.textComplete = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *textBuffer) Chunks(yield func(string) bool) {
	for {
		b.mu.Lock()
		if b.cleared {
			b.mu.Unlock()
			return
		}

		if len(b.chunks) > 0 {
			chunk := b.chunks[0]
			b.chunks[0] = ""
			b.chunks = b.chunks[1:]
			b.mu.Unlock()
			if !yield(chunk) {
				return
			}
			continue
		}

		if b.textComplete {
			b.mu.Unlock()
			return
		}

		b.mu.Unlock()
		<-b.updateSignal
	}
}

// Clear drops queued chunks and stops Chunks.
func (b *textBuffer) Clear() {
	b.mu.Lock()
	b.cleared = true
	b.chunks = nil
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *textBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}
