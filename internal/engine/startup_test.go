package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeEngine struct {
	running bool
	models  map[string]bool
	pulled  []string
	pullErr error
}

func (f *fakeEngine) Chat(context.Context, string, []Message, *Schema) (string, error) {
	return "", nil
}
func (f *fakeEngine) Embed(context.Context, string, ...string) ([][]float32, error) {
	return nil, nil
}
func (f *fakeEngine) IsRunning(context.Context) bool                { return f.running }
func (f *fakeEngine) HasModel(_ context.Context, name string) bool { return f.models[name] }
func (f *fakeEngine) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	if f.pullErr != nil {
		return f.pullErr
	}
	f.pulled = append(f.pulled, name)
	if cb != nil {
		cb(PullProgress{Status: "downloading", Total: 4, Completed: 2})
		cb(PullProgress{Status: "success"})
	}
	return nil
}

func TestEnsureModels_AllPresent(t *testing.T) {
	f := &fakeEngine{running: true, models: map[string]bool{"llama3.2": true, "nomic-embed-text": true}}
	if err := EnsureModels(context.Background(), f, &bytes.Buffer{}, "llama3.2", "nomic-embed-text"); err != nil {
		t.Fatalf("EnsureModels: %v", err)
	}
	if len(f.pulled) != 0 {
		t.Errorf("pulled = %v, want none", f.pulled)
	}
}

func TestEnsureModels_PullsMissingOnce(t *testing.T) {
	f := &fakeEngine{running: true, models: map[string]bool{"llama3.2": true}}
	var out bytes.Buffer
	err := EnsureModels(context.Background(), f, &out, "llama3.2", "", "nomic-embed-text", "nomic-embed-text")
	if err != nil {
		t.Fatalf("EnsureModels: %v", err)
	}
	if len(f.pulled) != 1 || f.pulled[0] != "nomic-embed-text" {
		t.Errorf("pulled = %v, want [nomic-embed-text]", f.pulled)
	}
	if !strings.Contains(out.String(), "downloading 50%") {
		t.Errorf("output = %q, want progress percentage", out.String())
	}
}

func TestEnsureModels_EngineDown(t *testing.T) {
	f := &fakeEngine{}
	if err := EnsureModels(context.Background(), f, &bytes.Buffer{}, "llama3.2"); err == nil {
		t.Fatal("expected error when engine is down")
	}
}

func TestEnsureModels_PullError(t *testing.T) {
	f := &fakeEngine{running: true, models: map[string]bool{}, pullErr: errors.New("no space")}
	err := EnsureModels(context.Background(), f, &bytes.Buffer{}, "llama3.2")
	if err == nil || !strings.Contains(err.Error(), "no space") {
		t.Errorf("err = %v, want pull error", err)
	}
}
