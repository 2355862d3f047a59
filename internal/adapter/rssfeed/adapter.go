// Package rssfeed implements the standard RSS/Atom source adapter.
//
// Several real-world security feeds emit XML that strict parsers reject
// outright. When structured parsing fails the adapter degrades to a raw
// scrape of <item> elements; losing the feed entirely is worse than a
// best-effort extraction.
package rssfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/feed"
	"github.com/secwatch/secfeeds/internal/httpclient"
)

// Config controls adapter behavior.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Adapter implements feed.Adapter for RSS and Atom feeds.
type Adapter struct {
	cfg    Config
	client *http.Client
	parser *gofeed.Parser
	clock  feed.Clock
	logger *zap.Logger
}

// New builds an Adapter.
func New(cfg Config, clock feed.Clock, logger *zap.Logger) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: httpclient.New(cfg.Timeout),
		parser: gofeed.NewParser(),
		clock:  clock,
		logger: logger,
	}
}

// Fetch downloads and parses the feed, falling back to a raw XML scrape when
// strict parsing fails. Both paths failing yields an error the orchestrator
// treats as zero records for this cycle.
func (a *Adapter) Fetch(ctx context.Context, src feed.Source) ([]feed.Record, error) {
	body, err := a.get(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	parsed, err := a.parser.ParseString(string(body))
	if err == nil {
		return a.mapItems(parsed, src), nil
	}

	a.logger.Warn("strict feed parse failed, trying raw scrape",
		zap.String("source", src.Name),
		zap.Error(err),
	)
	items, scrapeErr := scrapeItems(body)
	if scrapeErr != nil {
		return nil, fmt.Errorf("fallback scrape: %w", scrapeErr)
	}
	return a.mapRawItems(items, src), nil
}

func (a *Adapter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if a.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", a.cfg.UserAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	return body, nil
}

func (a *Adapter) mapItems(parsed *gofeed.Feed, src feed.Source) []feed.Record {
	records := make([]feed.Record, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		link := item.Link
		if link == "" && len(item.Links) > 0 {
			link = item.Links[0]
		}
		if link == "" {
			a.logger.Debug("dropping item without link",
				zap.String("source", src.Name),
				zap.String("title", item.Title),
			)
			continue
		}
		published := a.resolveTime(src.Name, item)
		records = append(records, feed.Record{
			Title:       feed.TruncateTitle(item.Title),
			Link:        link,
			PublishedAt: published,
			Source:      src.Name,
			Category:    src.Category,
			Description: item.Description,
		})
	}
	return records
}

func (a *Adapter) mapRawItems(items []rawItem, src feed.Source) []feed.Record {
	records := make([]feed.Record, 0, len(items))
	for _, item := range items {
		if item.Link == "" {
			a.logger.Debug("dropping scraped item without link",
				zap.String("source", src.Name),
				zap.String("title", item.Title),
			)
			continue
		}
		published, ok := feed.ParseTime(item.PubDate)
		if !ok {
			published = a.clock.Now()
			a.logger.Warn("unparsable item date, defaulting to now",
				zap.String("source", src.Name),
				zap.String("raw_date", item.PubDate),
			)
		}
		records = append(records, feed.Record{
			Title:       feed.TruncateTitle(item.Title),
			Link:        item.Link,
			PublishedAt: published,
			Source:      src.Name,
			Category:    src.Category,
			Description: item.Description,
		})
	}
	return records
}

// resolveTime prefers gofeed's parsed timestamps and degrades through the
// raw strings to the documented "now" default.
func (a *Adapter) resolveTime(source string, item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	raw := item.Published
	if raw == "" {
		raw = item.Updated
	}
	if t, ok := feed.ParseTime(raw); ok {
		return t
	}
	a.logger.Warn("unparsable item date, defaulting to now",
		zap.String("source", source),
		zap.String("raw_date", raw),
	)
	return a.clock.Now()
}
