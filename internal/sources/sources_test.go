package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/kalambet/shortlist/internal/candidate"
)

const rssA = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>A</title>
<item><title>Older</title><link>https://a.example.com/older</link><pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate></item>
<item><title>Newest</title><link>https://a.example.com/newest</link><pubDate>Wed, 04 Jun 2025 10:00:00 GMT</pubDate></item>
<item><title> Shared </title><link>https://shared.example.com/x</link><pubDate>Tue, 03 Jun 2025 10:00:00 GMT</pubDate></item>
</channel></rss>`

const rssB = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>B</title>
<item><title>Shared</title><link>https://shared.example.com/x</link><pubDate>Tue, 03 Jun 2025 10:00:00 GMT</pubDate></item>
<item><title>Undated</title><link>https://b.example.com/undated</link></item>
</channel></rss>`

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.xml":
			fmt.Fprint(w, rssA)
		case "/b.xml":
			fmt.Fprint(w, rssB)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRSS_FetchDedupSortLimit(t *testing.T) {
	srv := feedServer(t)
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	r := NewRSS([]Feed{
		{Name: "a", URL: srv.URL + "/a.xml"},
		{Name: "broken", URL: srv.URL + "/missing.xml"},
		{Name: "b", URL: srv.URL + "/b.xml"},
	}, 3, srv.Client())
	r.now = func() time.Time { return now }

	items, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	var titles []string
	for _, it := range items {
		titles = append(titles, it.Title)
		if it.Source != candidate.SourceRSS || it.ID == "" || it.PublishedAt == nil {
			t.Errorf("item = %+v", it)
		}
	}
	want := "Undated,Newest,Shared"
	if got := strings.Join(titles, ","); got != want {
		t.Errorf("titles = %s, want %s", got, want)
	}
	if !items[0].PublishedAt.Equal(now) {
		t.Errorf("undated entry published = %v, want now", items[0].PublishedAt)
	}
}

func TestLoadFeeds(t *testing.T) {
	feeds, err := LoadFeeds("")
	if err != nil || len(feeds) != len(DefaultFeeds) {
		t.Fatalf("default feeds = %d, %v", len(feeds), err)
	}
	if feeds, _ := LoadFeeds(filepath.Join(t.TempDir(), "none.yaml")); len(feeds) != len(DefaultFeeds) {
		t.Errorf("missing file should give defaults")
	}

	p := filepath.Join(t.TempDir(), "feeds.yaml")
	body := "feeds:\n  - name: go\n    url: https://go.dev/blog/feed.atom\n  - url: https://example.com/rss\n  - name: empty\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	feeds, err = LoadFeeds(p)
	if err != nil {
		t.Fatalf("LoadFeeds: %v", err)
	}
	if len(feeds) != 2 || feeds[0].Name != "go" || feeds[1].Name != "https://example.com/rss" {
		t.Errorf("feeds = %+v", feeds)
	}

	if err := os.WriteFile(p, []byte("feeds: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFeeds(p); err == nil {
		t.Error("expected parse error")
	}
}

func TestGoogle_Pages(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		starts = append(starts, q.Get("start"))
		if q.Get("dateRestrict") != "d7" || q.Get("cx") != "engine" || q.Get("q") != "ai launch" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		if q.Get("start") == "21" {
			fmt.Fprint(w, `{}`)
			return
		}
		fmt.Fprintf(w, `{"items":[{"link":"https://g.example.com/%s","title":"Result %s"},{"link":"https://g.example.com/html","htmlTitle":"<b>Html</b>"}]}`,
			q.Get("start"), q.Get("start"))
	}))
	defer srv.Close()

	g, err := NewGoogle(context.Background(), "key", "engine", "ai launch",
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	g.pause = 0

	items, err := g.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := strings.Join(starts, ","); got != "1,11,21" {
		t.Errorf("starts = %s, want 1,11,21", got)
	}
	if len(items) != 4 || items[0].URL != "https://g.example.com/1" || items[1].Title != "<b>Html</b>" {
		t.Errorf("items = %+v", items)
	}
}

func TestGoogle_RequiresCredentials(t *testing.T) {
	ctx := context.Background()
	if _, err := NewGoogle(ctx, "", "cx", "q"); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := NewGoogle(ctx, "key", "", "q"); err == nil {
		t.Error("expected error for missing cx")
	}
	if _, err := NewGoogle(ctx, "key", "cx", " "); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestYouTube_PagesAndResolvesHandle(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		calls = append(calls, q.Get("type")+":"+q.Get("pageToken"))
		w.Header().Set("Content-Type", "application/json")
		if q.Get("type") == "channel" {
			json.NewEncoder(w).Encode(map[string]any{
				"items": []any{map[string]any{"snippet": map[string]any{"channelId": "UCabc"}}},
			})
			return
		}
		if q.Get("channelId") != "UCabc" {
			t.Errorf("channelId = %q", q.Get("channelId"))
		}
		if q.Get("pageToken") == "" {
			fmt.Fprint(w, `{"nextPageToken":"p2","items":[
				{"id":{"videoId":"v1"},"snippet":{"title":"Tom &amp; Jerry","publishedAt":"2025-06-01T10:00:00Z"}},
				{"id":{"channelId":"UCskip"},"snippet":{"title":"not a video"}}]}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":{"videoId":"v2"},"snippet":{"title":"Second"}}]}`)
	}))
	defer srv.Close()

	y, err := NewYouTube(context.Background(), "key", "ai", "@openai", 10,
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewYouTube: %v", err)
	}
	items, err := y.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := strings.Join(calls, ","); got != "channel:,video:,video:p2" {
		t.Errorf("calls = %s", got)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].URL != "https://www.youtube.com/watch?v=v1" || items[0].Title != "Tom & Jerry" || items[0].PublishedAt == nil {
		t.Errorf("first = %+v", items[0])
	}
	if items[1].PublishedAt != nil {
		t.Errorf("second published = %v, want nil", items[1].PublishedAt)
	}
}

func TestYouTube_ChannelIDPassthrough(t *testing.T) {
	for _, in := range []string{"UCabcdefghijklmnopqrstuv", "https://www.youtube.com/channel/UCabcdefghijklmnopqrstuv"} {
		y := &YouTube{channel: in}
		id, err := y.resolveChannel(context.Background())
		if err != nil || id != "UCabcdefghijklmnopqrstuv" {
			t.Errorf("resolveChannel(%q) = %q, %v", in, id, err)
		}
	}
}

type staticProducer []candidate.Item

func (staticProducer) Source() candidate.Source { return candidate.SourceGoogle }

func (s staticProducer) Fetch(context.Context) ([]candidate.Item, error) { return s, nil }

func TestCollect_WritesCandidateFile(t *testing.T) {
	dir := t.TempDir()
	path, n, err := Collect(context.Background(), staticProducer{
		{Title: "One", URL: "https://one.example.com"},
		{Title: "Two", URL: "https://two.example.com"},
	}, dir)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if path != filepath.Join(dir, "data", "google_data.jsonl") || n != 2 {
		t.Errorf("path = %s, n = %d", path, n)
	}
	items, stats, err := candidate.Load(path)
	if err != nil || len(items) != 2 || stats.Skipped != 0 {
		t.Errorf("reloaded %d items (%+v), %v", len(items), stats, err)
	}
	if items[0].Source != candidate.SourceGoogle {
		t.Errorf("source = %q", items[0].Source)
	}
}
