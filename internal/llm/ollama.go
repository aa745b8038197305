package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// OllamaChat calls the Ollama /api/chat endpoint for generative responses.
type OllamaChat struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaChat creates a chat client targeting the given Ollama instance and model.
func NewOllamaChat(baseURL, model string) *OllamaChat {
	return &OllamaChat{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Model returns the configured model name.
func (c *OllamaChat) Model() string { return c.model }

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []Message    `json:"messages"`
	Stream   bool         `json:"stream"`
	Options  *chatOptions `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func toChatOptions(o Options) *chatOptions {
	if o.Temperature == 0 && o.MaxTokens == 0 {
		return nil
	}
	co := &chatOptions{NumPredict: o.MaxTokens}
	if o.Temperature != 0 {
		t := o.Temperature
		co.Temperature = &t
	}
	return co
}

func (c *OllamaChat) post(ctx context.Context, messages []Message, opts Options, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   stream,
		Options:  toChatOptions(opts),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama chat returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return resp, nil
}

// Generate sends a conversation to Ollama and returns the assistant's response.
func (c *OllamaChat) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	resp, err := c.post(ctx, messages, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", result.Error)
	}
	return result.Message.Content, nil
}

// Stream starts a streaming chat request. The response body is decoded
// lazily as the caller pulls tokens.
func (c *OllamaChat) Stream(ctx context.Context, messages []Message, opts Options) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.post(ctx, messages, opts, true)
	if err != nil {
		cancel()
		return nil, err
	}
	return &ollamaStream{
		body:   resp.Body,
		dec:    json.NewDecoder(resp.Body),
		cancel: cancel,
	}, nil
}

type ollamaStream struct {
	body   io.ReadCloser
	dec    *json.Decoder
	cancel context.CancelFunc
	done   bool
	err    error
	once   sync.Once
}

// Recv returns the next token. After a failure every later call returns
// the same error.
func (s *ollamaStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for !s.done {
		var chunk chatResponse
		if err := s.dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				s.err = fmt.Errorf("ollama stream ended before completion: %w", io.ErrUnexpectedEOF)
			} else {
				s.err = fmt.Errorf("read ollama stream: %w", err)
			}
			return "", s.err
		}
		if chunk.Error != "" {
			s.err = fmt.Errorf("ollama stream: %s", chunk.Error)
			return "", s.err
		}
		s.done = chunk.Done
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
	return "", io.EOF
}

func (s *ollamaStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}
