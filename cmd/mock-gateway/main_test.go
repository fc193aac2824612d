package main

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, fixtures map[string]string) *httptest.Server {
	t.Helper()
	s := newServer(fixtures)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/stats", s.handleStats)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func postChat(t *testing.T, ts *httptest.Server, model string) *http.Response {
	t.Helper()
	body := `{"model":"` + model + `","messages":[{"role":"user","content":"hi"}],"stream":true}`
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestStreamsFixtureAsChunks(t *testing.T) {
	content := strings.Repeat("refactor the billing module. ", 10)
	ts := newTestServer(t, map[string]string{"iama-router-l1": content})

	resp := postChat(t, ts, "iama-router-l1")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var assembled strings.Builder
	chunks := 0
	sawDone := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			sawDone = true
			break
		}
		var ck streamChunk
		require.NoError(t, json.Unmarshal([]byte(data), &ck))
		require.Len(t, ck.Choices, 1)
		assembled.WriteString(ck.Choices[0].Delta.Content)
		chunks++
	}
	require.NoError(t, scanner.Err())

	assert.True(t, sawDone, "stream should end with [DONE]")
	assert.Equal(t, content, assembled.String())
	assert.Greater(t, chunks, 1, "content should arrive in multiple chunks")
}

func TestUnknownModelReturns404(t *testing.T) {
	ts := newTestServer(t, map[string]string{"iama-router-l1": "ok"})

	resp := postChat(t, ts, "iama-router-l9")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatsCountsCallsByModel(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"iama-router-l1": "a",
		"iama-router-l2": "b",
	})

	for i := 0; i < 2; i++ {
		resp := postChat(t, ts, "iama-router-l1")
		resp.Body.Close()
	}
	resp := postChat(t, ts, "iama-router-l2")
	resp.Body.Close()

	statsResp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()

	var stats struct {
		TotalCalls   int64            `json:"total_calls"`
		CallsByModel map[string]int64 `json:"calls_by_model"`
	}
	require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&stats))

	assert.Equal(t, int64(3), stats.TotalCalls)
	assert.Equal(t, int64(2), stats.CallsByModel["iama-router-l1"])
	assert.Equal(t, int64(1), stats.CallsByModel["iama-router-l2"])
}

func TestLoadFixtures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "iama-router-l1.json"), []byte(`{"plan":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	fixtures, err := loadFixtures(dir)
	require.NoError(t, err)

	assert.Len(t, fixtures, 1)
	assert.Equal(t, `{"plan":"x"}`, fixtures["iama-router-l1"])
}

func TestLoadFixturesEmptyDirFails(t *testing.T) {
	_, err := loadFixtures(t.TempDir())
	assert.Error(t, err)
}
