package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"repolens/internal/llm"
	"repolens/internal/store"
)

// Generation defaults.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2000
)

// GenerationError reports that the answer stream failed. Tokens delivered
// before the failure remain valid, as do the cited fragments; the caller
// may show both and offer to ask again.
type GenerationError struct {
	Err       error
	Delivered int
}

func (e *GenerationError) Error() string {
	if e.Delivered == 0 {
		return fmt.Sprintf("answer generation failed before any output: %v", e.Err)
	}
	return fmt.Sprintf("answer generation failed after %d tokens: %v", e.Delivered, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Answer is a streamed answer with the fragments it was grounded on.
type Answer struct {
	Stream        llm.Stream
	Cited         []store.SearchResult
	ContextTokens int
}

// Orchestrator answers questions about an indexed project.
type Orchestrator struct {
	retriever   *Retriever
	gen         llm.Generator
	opts        llm.Options
	countTokens func(string) int
	logger      *slog.Logger
}

// NewOrchestrator creates an orchestrator with the default generation
// options. A nil logger discards log output.
func NewOrchestrator(r *Retriever, gen llm.Generator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		retriever:   r,
		gen:         gen,
		opts:        llm.Options{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens},
		countTokens: CountTokens,
		logger:      logger,
	}
}

// WithOptions replaces the generation options.
func (o *Orchestrator) WithOptions(opts llm.Options) *Orchestrator {
	o.opts = opts
	return o
}

// WithTokenCounter replaces the function used to size the context.
func (o *Orchestrator) WithTokenCounter(fn func(string) int) *Orchestrator {
	o.countTokens = fn
	return o
}

// Answer retrieves context for the question and starts generating. Only
// retrieval failures are returned as errors; a generation failure is
// reported through the stream as a *GenerationError so that the cited
// fragments still reach the caller. The caller must Close the stream.
func (o *Orchestrator) Answer(ctx context.Context, question, projectID string) (*Answer, error) {
	cited, err := o.retriever.Retrieve(ctx, question, projectID)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(question, BuildContext(cited))
	ans := &Answer{Cited: cited, ContextTokens: o.countTokens(prompt)}

	s, err := o.gen.Stream(ctx, llm.UserPrompt(prompt), o.opts)
	if err != nil {
		o.logger.Error("start answer stream", "project", projectID, "error", err)
		ans.Stream = &failedStream{err: &GenerationError{Err: err}}
		return ans, nil
	}
	ans.Stream = &answerStream{inner: s}
	return ans, nil
}

// answerStream passes tokens through unchanged and wraps failures.
type answerStream struct {
	inner     llm.Stream
	delivered int
	once      sync.Once
	closeErr  error
}

func (s *answerStream) Recv() (string, error) {
	tok, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", &GenerationError{Err: err, Delivered: s.delivered}
	}
	s.delivered++
	return tok, nil
}

func (s *answerStream) Close() error {
	s.once.Do(func() { s.closeErr = s.inner.Close() })
	return s.closeErr
}

// failedStream is a stream whose generation never started.
type failedStream struct{ err error }

func (s *failedStream) Recv() (string, error) { return "", s.err }
func (s *failedStream) Close() error          { return nil }

// Collect drains a stream into a string. The text gathered before a
// failure is returned along with the error.
func Collect(s llm.Stream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, tok...)
	}
}
