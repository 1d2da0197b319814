// Package e2e drives the assembled server in-process: real store, upload
// directory, router and OpenAI client, with the model replaced by a fake
// chat completions endpoint.
package e2e

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperengineering/mocklens/internal/api"
	"github.com/hyperengineering/mocklens/internal/normalize"
	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/upload"
	"github.com/hyperengineering/mocklens/internal/vision"
	"github.com/hyperengineering/mocklens/pkg/client"
)

const testAPIKey = "e2e-api-key"

// fakeModel serves canned chat completions in the OpenAI wire format.
type fakeModel struct {
	mu           sync.Mutex
	content      string
	finishReason string
	status       int
	errorBody    string
	requests     []map[string]any
}

func (m *fakeModel) reply(content, finishReason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content, m.finishReason, m.status = content, finishReason, 0
}

func (m *fakeModel) fail(status int, errorBody string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status, m.errorBody = status, errorBody
}

func (m *fakeModel) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var req map[string]any
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	w.Header().Set("Content-Type", "application/json")
	if m.status != 0 {
		w.WriteHeader(m.status)
		io.WriteString(w, m.errorBody)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-e2e",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-2024-08-06",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": m.finishReason,
			"logprobs":      nil,
			"message": map[string]any{
				"role":    "assistant",
				"content": m.content,
				"refusal": nil,
			},
		}},
		"usage": map[string]any{
			"prompt_tokens":     100,
			"completion_tokens": 50,
			"total_tokens":      150,
		},
	})
}

// testEnv is one assembled server.
type testEnv struct {
	model  *fakeModel
	store  *store.SQLiteStore
	images *upload.Dir
	server *httptest.Server
	client *client.Client
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	model := &fakeModel{finishReason: "stop", content: "[]"}
	modelSrv := httptest.NewServer(model)
	t.Cleanup(modelSrv.Close)

	dir := t.TempDir()
	db, err := store.NewSQLiteStore(filepath.Join(dir, "mocklens.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	images, err := upload.NewDir(filepath.Join(dir, "uploads"), nil)
	if err != nil {
		t.Fatalf("open uploads: %v", err)
	}

	analyzer := vision.NewOpenAI(vision.Config{
		APIKey:  "sk-e2e",
		BaseURL: modelSrv.URL + "/v1/",
		Model:   "gpt-4o",
	}, normalize.New(normalize.WithDegradedFallback(true)))

	handler := api.NewHandler(db, analyzer, images, testAPIKey, "e2e", 0)
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{BaseURL: srv.URL, APIKey: testAPIKey})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return &testEnv{model: model, store: db, images: images, server: srv, client: c}
}

// get performs an authenticated GET and returns the raw response.
func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
