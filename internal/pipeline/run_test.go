package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/shortlist/internal/content"
	"github.com/kalambet/shortlist/internal/crawl"
	"github.com/kalambet/shortlist/internal/ledger"
	"github.com/kalambet/shortlist/internal/output"
	"github.com/kalambet/shortlist/internal/profile"
	"github.com/kalambet/shortlist/internal/ranking"
	"github.com/kalambet/shortlist/internal/reranking"
	"github.com/kalambet/shortlist/internal/storage"
)

func writeInput(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestRunner(t *testing.T, dir string, fetcher scriptedFetcher, runs RunStore) *Runner {
	t.Helper()
	log := ledger.NewFileLog(filepath.Join(dir, "contents.jsonl"))
	store := content.NewStore(dir)
	orch := crawl.New(fetcher, log, store, crawl.Config{
		Retries:     -1,
		BackoffBase: time.Millisecond,
		Timeout:     time.Second,
	})
	p := profile.Default()
	ranker := ranking.NewRanker(reranking.LengthBonus{}, ranking.Config{TopK: 10, FinalN: 5, MaxBonus: 0.1})
	return NewRunner(orch, NewCurator(log, store, p, ranker), filepath.Join(dir, "results"), runs)
}

func TestRunner_CrawlCurateAndStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	input := writeInput(t, dir, "rss_data.jsonl",
		`{"url":"https://a.example.com/one","title":"One"}`,
		`{"link":"https://a.example.com/one/","title":"One again"}`,
		`not json`,
		`{"url":"https://b.example.com/two","title":"Two"}`,
	)
	fetcher := scriptedFetcher{
		"https://a.example.com/one": strings.Repeat("first body. ", 80),
		"https://b.example.com/two": strings.Repeat("second body. ", 20),
	}
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	r := newTestRunner(t, dir, fetcher, db)
	rep, err := r.Run(ctx, []string{input, filepath.Join(dir, "missing.jsonl")}, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Loaded.Files != 1 || rep.Loaded.Skipped != 1 || rep.Candidates != 2 {
		t.Errorf("load stats = %+v, candidates = %d", rep.Loaded, rep.Candidates)
	}
	if rep.Crawl.Succeeded != 2 || rep.Result.Scored != 2 {
		t.Errorf("crawl = %+v, result scored = %d", rep.Crawl, rep.Result.Scored)
	}
	if rep.Run.ID == "" || rep.Run.TopN != 2 || rep.Run.Rescorer != reranking.BackendLength {
		t.Errorf("run = %+v", rep.Run)
	}

	got, err := output.ReadJSONL(rep.Paths.JSONL)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := db.ListItems(ctx, rep.Run.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || len(stored) != 2 || got[0].URL != stored[0].URL {
		t.Errorf("jsonl %d items, stored %d items", len(got), len(stored))
	}
}

func TestRunner_NoCandidates(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "google_data.jsonl", `{"title":"no url"}`)

	_, err := newTestRunner(t, dir, scriptedFetcher{}, nil).Run(context.Background(), []string{input}, true)
	if !errors.Is(err, ErrNoCandidates) || !IsEmptyInput(err) {
		t.Errorf("err = %v, want ErrNoCandidates", err)
	}
}

func TestRunner_CurateWithoutCrawl(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestRunner(t, dir, scriptedFetcher{}, nil).Run(context.Background(), nil, false)
	if !errors.Is(err, ErrNoRecords) || !IsEmptyInput(err) {
		t.Errorf("err = %v, want ErrNoRecords", err)
	}
	if IsEmptyInput(errors.New("disk full")) {
		t.Error("unrelated error treated as empty input")
	}
}
