// Package main implements a mock LLM gateway for wiring tests.
// It serves OpenAI-compatible streaming /v1/chat/completions responses from
// JSON fixture files, routing by the "model" field in the request. This
// eliminates the need for a real gateway during worker wiring tests, making
// them fast, deterministic, and offline-capable.
//
// Usage:
//
//	mock-gateway -fixtures /path/to/fixtures -port 4000
//
// Fixture files are JSON named by model (e.g., "iama-router-l1.json" maps to
// model "iama-router-l1"). The file content is streamed back as SSE chunks,
// the way the production gateway streams completions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Index        int          `json:"index"`
	Delta        chatMessage  `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

// chunkSize is how many bytes of fixture content each SSE chunk carries.
const chunkSize = 64

// --- Server ---

type server struct {
	fixtures map[string]string // model name → response content
	calls    atomic.Int64      // total calls served

	// Per-model call counters for test assertions.
	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex
}

func newServer(fixtures map[string]string) *server {
	return &server{
		fixtures:   fixtures,
		modelCalls: make(map[string]*atomic.Int64),
	}
}

func (s *server) getModelCounter(model string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[model]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[model] = c
	return c
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 4000, "port to listen on")
	flag.Parse()

	// Allow env var override
	if envDir := os.Getenv("MOCK_GATEWAY_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
	}
	log.Printf("Loaded %d model(s) from %s", len(fixtures), *fixtureDir)
	for model := range fixtures {
		log.Printf("  model: %s", model)
	}

	s := newServer(fixtures)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/stats", s.handleStats)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock gateway listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	s.getModelCounter(req.Model).Add(1)
	log.Printf("[call %d] model=%s messages=%d stream=%v", callNum, req.Model, len(req.Messages), req.Stream)

	content, ok := s.fixtures[req.Model]
	if !ok {
		log.Printf("[call %d] WARNING: no fixture for model=%q, returning error", callNum, req.Model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	s.streamResponse(w, r, req.Model, content)
	log.Printf("[call %d] streamed %d bytes for model=%s", callNum, len(content), req.Model)
}

// streamResponse writes the fixture content as an SSE chunk stream, flushing
// after every chunk so clients observe incremental delivery. Stops early if
// the client disconnects mid-stream.
func (s *server) streamResponse(w http.ResponseWriter, r *http.Request, model, content string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, canFlush := w.(http.Flusher)
	id := fmt.Sprintf("mock-%d", time.Now().UnixNano())

	writeChunk := func(ck streamChunk) bool {
		data, _ := json.Marshal(ck)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		if canFlush {
			flusher.Flush()
		}
		return true
	}

	for off := 0; off < len(content); off += chunkSize {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		end := off + chunkSize
		if end > len(content) {
			end = len(content)
		}
		ok := writeChunk(streamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Model:   model,
			Choices: []streamChoice{{Delta: chatMessage{Content: content[off:end]}}},
		})
		if !ok {
			return
		}
	}

	stop := "stop"
	writeChunk(streamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []streamChoice{{Delta: chatMessage{}, FinishReason: &stop}},
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.modelCallsMu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, counter := range s.modelCalls {
		callsByModel[model] = counter.Load()
	}
	s.modelCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// loadFixtures reads JSON files from dir and returns a map of model→content.
// The file name minus ".json" is the model name; the raw file content is the
// completion text streamed back for that model.
func loadFixtures(dir string) (map[string]string, error) {
	fixtures := make(map[string]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		model := strings.TrimSuffix(info.Name(), ".json")
		fixtures[model] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}

	return fixtures, nil
}
