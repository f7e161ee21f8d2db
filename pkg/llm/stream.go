package llm

import (
	"context"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// Chunk is one increment of streamed assistant output.
type Chunk struct {
	Delta string
}

// Stream adapts an Anthropic SSE stream into a chunk channel. A background
// goroutine drains the SDK stream; Recv returns chunks until io.EOF or the
// first error. After the stream ends, Content returns the accumulated text
// and Usage the reported token counts.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	chunks chan Chunk

	closeOnce sync.Once
	closeErr  error

	mu         sync.Mutex
	finalErr   error
	errSet     bool
	content    strings.Builder
	usage      Usage
	stopReason string
}

func newStream(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) *Stream {
	sctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ctx:    sctx,
		cancel: cancel,
		stream: stream,
		chunks: make(chan Chunk, 32),
	}
	go s.run()
	return s
}

// Recv returns the next chunk. io.EOF signals a clean end of stream; any
// other error is terminal and repeats on subsequent calls.
func (s *Stream) Recv() (Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return Chunk{}, err
	}
}

// Close stops the stream. Safe to call multiple times and after EOF.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.stream != nil {
			s.closeErr = s.stream.Close()
		}
	})
	return s.closeErr
}

// Content returns the assistant text accumulated so far. Complete once Recv
// has returned io.EOF.
func (s *Stream) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.String()
}

// Usage returns the token usage reported by the model, once available.
func (s *Stream) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// StopReason returns the model's stop reason, once available.
func (s *Stream) StopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopReason
}

func (s *Stream) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}

		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(err)
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			}
			return
		}

		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			delta, ok := ev.Delta.AsAny().(sdk.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			s.mu.Lock()
			s.content.WriteString(delta.Text)
			s.mu.Unlock()
			if err := s.emit(Chunk{Delta: delta.Text}); err != nil {
				s.setErr(err)
				return
			}
		case sdk.MessageDeltaEvent:
			s.mu.Lock()
			s.stopReason = string(ev.Delta.StopReason)
			s.usage = Usage{
				InputTokens:  ev.Usage.InputTokens,
				OutputTokens: ev.Usage.OutputTokens,
			}
			s.mu.Unlock()
		}
	}
}

func (s *Stream) emit(chunk Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- chunk:
		return nil
	}
}

func (s *Stream) setErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *Stream) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalErr
}
