package agent

import (
	"sync"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

// StreamEmitter decouples chunk production from consumption. Emit appends to
// an unbounded internal queue and never blocks the step loop, however slow
// the consumer is; a forwarder goroutine drains the queue into the delivery
// channel in emission order. EmitFinal seals the stream: exactly one final
// chunk is delivered, always last, and the delivery channel is closed after
// it.
type StreamEmitter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []schemas.StreamChunk
	sealed bool

	out chan schemas.StreamChunk
}

// NewStreamEmitter starts the forwarder. buffer sizes the delivery channel.
func NewStreamEmitter(buffer int) *StreamEmitter {
	if buffer < 0 {
		buffer = 0
	}
	e := &StreamEmitter{
		out: make(chan schemas.StreamChunk, buffer),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.forward()
	return e
}

// Chunks is the delivery channel. It is closed after the final chunk.
func (e *StreamEmitter) Chunks() <-chan schemas.StreamChunk {
	return e.out
}

// Emit queues a non-final chunk. Returns ErrStreamSealed once EmitFinal has
// been called.
func (e *StreamEmitter) Emit(chunk schemas.StreamChunk) error {
	if chunk.ChunkType() == schemas.ChunkFinalOutput {
		if final, ok := chunk.(schemas.FinalOutputChunk); ok {
			return e.EmitFinal(final)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return ErrStreamSealed
	}
	e.queue = append(e.queue, chunk)
	e.cond.Signal()
	return nil
}

// EmitFinal queues the final chunk and seals the stream.
func (e *StreamEmitter) EmitFinal(chunk schemas.FinalOutputChunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return ErrStreamSealed
	}
	e.sealed = true
	e.queue = append(e.queue, chunk)
	e.cond.Signal()
	return nil
}

// forward drains the queue into the delivery channel. Exits after the final
// chunk has been delivered.
func (e *StreamEmitter) forward() {
	for {
		e.mu.Lock()
		for len(e.queue) == 0 {
			e.cond.Wait()
		}
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()

		for _, chunk := range batch {
			e.out <- chunk
			if chunk.ChunkType() == schemas.ChunkFinalOutput {
				close(e.out)
				return
			}
		}
	}
}
