// Package llm provides a streaming chat-completions client for the IAMA
// LLM gateway. Every call streams: the read loop surfaces each chunk to the
// caller so activities can heartbeat and observe cancellation between
// chunks, and cancelling the request context closes the underlying
// connection, which stops remote token generation immediately.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize limits accumulated completion text to prevent memory
// exhaustion on a runaway stream.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a chat-completions client bound to a single gateway base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a streaming completion request.
type Request struct {
	// Model is the gateway router model name (see the model package).
	Model string

	// Messages is the chat history to send.
	Messages []Message

	// MaxTokens limits response length. 0 uses the gateway default.
	MaxTokens int
}

// Response contains the assembled completion result.
type Response struct {
	// Content is the full generated text, assembled from stream chunks.
	Content string

	// Model is the model the gateway reported, when present in chunks.
	Model string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Chunks is the number of stream chunks consumed.
	Chunks int
}

// ChunkFunc is invoked after every received stream chunk with the chunk's
// text delta (possibly empty). Returning an error aborts the stream; the
// error is propagated to the Stream caller.
type ChunkFunc func(delta string) error

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // Streams can run for a full patch generation
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// wire types for the gateway's OpenAI-compatible surface.

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type chatChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream sends a streaming completion request and assembles the result.
// onChunk runs after every chunk; a nil onChunk is allowed. Cancellation of
// ctx between chunks terminates the stream within one chunk round-trip.
func (c *Client) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	if req.Model == "" {
		return nil, NewFatalError(fmt.Errorf("model is required"))
	}
	if len(req.Messages) == 0 {
		return nil, NewFatalError(fmt.Errorf("at least one message is required"))
	}

	body, err := json.Marshal(chatRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		Stream:    true,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewTransientError(fmt.Errorf("gateway request: %w", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		err := fmt.Errorf("gateway returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(msg)))
		if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
			return nil, NewTransientError(err)
		}
		return nil, NewFatalError(err)
	}

	return c.consume(ctx, httpResp, onChunk)
}

// consume reads the SSE stream. The read loop runs in its own goroutine so
// that cancellation can interrupt a blocked read by closing the response
// body; the goroutine then unblocks with a read error and exits.
func (c *Client) consume(ctx context.Context, httpResp *http.Response, onChunk ChunkFunc) (*Response, error) {
	type event struct {
		chunk chatChunk
		done  bool
		err   error
	}

	events := make(chan event)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				events <- event{done: true}
				return
			}
			var ck chatChunk
			if err := json.Unmarshal([]byte(data), &ck); err != nil {
				events <- event{err: NewTransientError(fmt.Errorf("decode stream chunk: %w", err))}
				return
			}
			events <- event{chunk: ck}
		}
		if err := scanner.Err(); err != nil {
			events <- event{err: NewTransientError(fmt.Errorf("read stream: %w", err))}
			return
		}
		events <- event{done: true}
	}()

	resp := &Response{}
	var content strings.Builder

	for {
		select {
		case <-ctx.Done():
			// Closing the body terminates the reader goroutine and the
			// underlying connection, stopping remote token generation.
			httpResp.Body.Close()
			for range events {
				// Drain until the reader exits.
			}
			c.logger.Debug("Stream cancelled",
				slog.String("model", resp.Model),
				slog.Int("chunks", resp.Chunks))
			return nil, ctx.Err()

		case ev, ok := <-events:
			if !ok || ev.done {
				resp.Content = content.String()
				return resp, nil
			}
			if ev.err != nil {
				return nil, ev.err
			}

			resp.Chunks++
			var delta string
			if len(ev.chunk.Choices) > 0 {
				delta = ev.chunk.Choices[0].Delta.Content
				if fr := ev.chunk.Choices[0].FinishReason; fr != "" {
					resp.FinishReason = fr
				}
			}
			if ev.chunk.Model != "" {
				resp.Model = ev.chunk.Model
			}
			if content.Len()+len(delta) > maxResponseSize {
				httpResp.Body.Close()
				for range events {
				}
				return nil, NewFatalError(fmt.Errorf("response exceeds %d bytes", maxResponseSize))
			}
			content.WriteString(delta)

			if onChunk != nil {
				if err := onChunk(delta); err != nil {
					httpResp.Body.Close()
					for range events {
					}
					return nil, err
				}
			}
		}
	}
}
