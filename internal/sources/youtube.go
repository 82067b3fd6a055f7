package sources

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/kalambet/shortlist/internal/candidate"
)

// The search endpoint returns at most 50 results per page.
const youtubePageSize = 50

var channelIDPattern = regexp.MustCompile(`(?:^|/channel/)(UC[a-zA-Z0-9_-]{22})`)

// YouTube searches videos for a query, optionally within one channel.
type YouTube struct {
	svc     *youtube.Service
	query   string
	channel string
	limit   int
	logger  *slog.Logger
}

// NewYouTube creates a YouTube producer. channel may be empty, a channel
// id, a /channel/ URL or an @handle.
func NewYouTube(ctx context.Context, apiKey, query, channel string, limit int, opts ...option.ClientOption) (*YouTube, error) {
	if apiKey == "" {
		return nil, errors.New("youtube api key is not set (config set sources.youtube_api_key)")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is empty")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	svc, err := youtube.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube client: %w", err)
	}
	return &YouTube{
		svc:     svc,
		query:   query,
		channel: strings.TrimSpace(channel),
		limit:   limit,
		logger:  slog.Default(),
	}, nil
}

func (y *YouTube) Source() candidate.Source { return candidate.SourceYouTube }

// Fetch pages through search results, newest first, until limit videos
// are collected or there are no more pages.
func (y *YouTube) Fetch(ctx context.Context) ([]candidate.Item, error) {
	channelID, err := y.resolveChannel(ctx)
	if err != nil {
		return nil, err
	}

	var (
		items []candidate.Item
		token string
	)
	for len(items) < y.limit {
		call := y.svc.Search.List([]string{"snippet"}).
			Q(y.query).
			Type("video").
			Order("date").
			MaxResults(int64(min(youtubePageSize, y.limit-len(items))))
		if channelID != "" {
			call = call.ChannelId(channelID)
		}
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("youtube search: %w", err)
		}
		for _, r := range res.Items {
			if r.Id == nil || r.Id.VideoId == "" || r.Snippet == nil {
				continue
			}
			it := candidate.Item{
				Source: candidate.SourceYouTube,
				Title:  html.UnescapeString(strings.TrimSpace(r.Snippet.Title)),
				URL:    "https://www.youtube.com/watch?v=" + r.Id.VideoId,
			}
			if t, ok := candidate.ParseTime(r.Snippet.PublishedAt); ok {
				it.PublishedAt = &t
			}
			items = append(items, it)
		}
		token = res.NextPageToken
		if token == "" || len(res.Items) == 0 {
			break
		}
	}
	if len(items) > y.limit {
		items = items[:y.limit]
	}
	return items, nil
}

// resolveChannel turns the configured channel into a channel id, looking
// handles up through a channel search.
func (y *YouTube) resolveChannel(ctx context.Context) (string, error) {
	if y.channel == "" {
		return "", nil
	}
	if m := channelIDPattern.FindStringSubmatch(y.channel); m != nil {
		return m[1], nil
	}
	handle := strings.TrimPrefix(y.channel, "@")
	res, err := y.svc.Search.List([]string{"snippet"}).
		Q(handle).
		Type("channel").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("resolving channel %s: %w", y.channel, err)
	}
	if len(res.Items) == 0 || res.Items[0].Snippet == nil || res.Items[0].Snippet.ChannelId == "" {
		return "", fmt.Errorf("channel not found: %s", y.channel)
	}
	y.logger.Debug("channel resolved", "channel", y.channel, "id", res.Items[0].Snippet.ChannelId)
	return res.Items[0].Snippet.ChannelId, nil
}
