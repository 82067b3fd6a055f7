package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tagsHandler(names ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		models := make([]map[string]string, 0, len(names))
		for _, n := range names {
			models = append(models, map[string]string{"name": n})
		}
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	}
}

func TestNew_DefaultBaseURL(t *testing.T) {
	if got := New("").BaseURL(); got != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", got, DefaultBaseURL)
	}
	if got := New("http://host:1234/").BaseURL(); got != "http://host:1234" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", got)
	}
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(tagsHandler("llama3.2:latest"))
	defer srv.Close()
	if !New(srv.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}

	down := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	down.Close()
	if New(down.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() = true for closed server")
	}
}

func TestListModelsAndHasModel(t *testing.T) {
	srv := httptest.NewServer(tagsHandler("llama3.2:latest", "nomic-embed-text:latest"))
	defer srv.Close()
	c := New(srv.URL)

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3.2:latest" {
		t.Errorf("models = %v", models)
	}

	tests := []struct {
		name string
		want bool
	}{
		{"llama3.2", true},
		{"nomic-embed-text:latest", true},
		{"nomic", false},
		{"mistral", false},
	}
	for _, tt := range tests {
		if got := c.HasModel(context.Background(), tt.name); got != tt.want {
			t.Errorf("HasModel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"message": Message{Role: "assistant", Content: `{"score":0.8}`},
		})
	}))
	defer srv.Close()

	schema := &Schema{
		Type:       "object",
		Properties: map[string]SchemaProperty{"score": {Type: "number"}},
		Required:   []string{"score"},
	}
	reply, err := New(srv.URL).Chat(context.Background(), "llama3.2", []Message{{Role: "user", Content: "rate"}}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != `{"score":0.8}` {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "llama3.2" || got.Stream {
		t.Errorf("request = %+v, want model llama3.2 and stream false", got)
	}
	format, ok := got.Format.(map[string]any)
	if !ok || format["type"] != "object" {
		t.Errorf("format = %v, want schema object", got.Format)
	}
}

func TestChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), "missing", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("err = %v, want status and body in error", err)
	}
}

func TestEmbed(t *testing.T) {
	var inputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		inputs = req.Input
		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
	}))
	defer srv.Close()

	vecs, err := New(srv.URL).Embed(context.Background(), "nomic-embed-text", "a", "b")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(inputs) != 2 || len(vecs) != 2 || vecs[1][0] != 1 {
		t.Errorf("inputs = %v, vecs = %v", inputs, vecs)
	}

	if vecs, err := New(srv.URL).Embed(context.Background(), "m"); err != nil || vecs != nil {
		t.Errorf("empty input = %v, %v; want nil, nil", vecs, err)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Embed(context.Background(), "m", "x"); err == nil {
		t.Error("expected error for missing vectors")
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name != "llama3.2" {
			t.Errorf("pull model = %q, want llama3.2", req.Name)
		}
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "downloading", Total: 10, Completed: 5})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	var n int
	if err := New(srv.URL).PullModel(context.Background(), "llama3.2", func(PullProgress) { n++ }); err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if n != 2 {
		t.Errorf("progress updates = %d, want 2", n)
	}
}
