// Package advisory implements the HTML advisory-index source adapter.
package advisory

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/feed"
)

// defaultPattern matches dated advisory detail URLs on the index page. The
// trailing identifier (year-sequence) doubles as the advisory number.
const defaultPattern = `https://www\.cisecurity\.org/advisory/[^"]+_\d{4}-\d{3}`

// Config controls adapter behavior.
type Config struct {
	Timeout    time.Duration
	UserAgent  string
	MaxEntries int
	// Pattern overrides the advisory URL regexp.
	Pattern string
}

// Adapter implements feed.Adapter by scraping an HTML index of advisories
// and enriching each entry with a title from its detail page.
type Adapter struct {
	cfg     Config
	pattern *regexp.Regexp
	clock   feed.Clock
	logger  *zap.Logger
}

// New builds an Adapter.
func New(cfg Config, clock feed.Clock, logger *zap.Logger) (*Adapter, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 10
	}
	if cfg.Pattern == "" {
		cfg.Pattern = defaultPattern
	}
	pattern, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compile advisory pattern: %w", err)
	}
	return &Adapter{
		cfg:     cfg,
		pattern: pattern,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Fetch scrapes the index page for advisory URLs, keeps the newest entries
// and resolves a title for each. A failing detail page never drops its entry;
// the index's existence is still reflected through a placeholder title.
func (a *Adapter) Fetch(ctx context.Context, src feed.Source) ([]feed.Record, error) {
	body, err := a.get(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch advisory index: %w", err)
	}

	urls := a.extractAdvisoryURLs(body)
	records := make([]feed.Record, 0, len(urls))
	for _, advisoryURL := range urls {
		number := advisoryNumber(advisoryURL)
		title := a.resolveTitle(ctx, src, advisoryURL, number)
		records = append(records, feed.Record{
			Title:          feed.TruncateTitle(title),
			Link:           advisoryURL,
			PublishedAt:    a.clock.Now(),
			Source:         src.Name,
			Category:       src.Category,
			AdvisoryNumber: number,
		})
	}
	return records, nil
}

// extractAdvisoryURLs dedupes the matched URLs and sorts them descending, so
// the lexicographically greatest (most recently dated) advisories come first.
func (a *Adapter) extractAdvisoryURLs(body []byte) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, match := range a.pattern.FindAllString(string(body), -1) {
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		urls = append(urls, match)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(urls)))
	if len(urls) > a.cfg.MaxEntries {
		urls = urls[:a.cfg.MaxEntries]
	}
	return urls
}

func (a *Adapter) resolveTitle(ctx context.Context, src feed.Source, advisoryURL, number string) string {
	placeholder := fmt.Sprintf("%s Advisory %s", src.Name, number)
	body, err := a.get(ctx, advisoryURL)
	if err != nil {
		a.logger.Warn("advisory detail fetch failed, using placeholder title",
			zap.String("source", src.Name),
			zap.String("url", advisoryURL),
			zap.Error(err),
		)
		return placeholder
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("advisory detail parse failed, using placeholder title",
			zap.String("source", src.Name),
			zap.String("url", advisoryURL),
			zap.Error(err),
		)
		return placeholder
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return placeholder
	}
	return title
}

// get executes a single GET through a per-request collector. The caller's
// context rides into the underlying HTTP request, so cancellation aborts an
// in-flight fetch rather than waiting out the request timeout.
func (a *Adapter) get(ctx context.Context, url string) ([]byte, error) {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.IgnoreRobotsTxt(),
		colly.StdlibContext(ctx),
	}
	if a.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(a.cfg.UserAgent))
	}
	collector := colly.NewCollector(opts...)
	collector.SetRequestTimeout(a.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(url); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("advisory fetch canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("visit failed: %w", err)
	}
	if fetchErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("advisory fetch canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("response failed: %w", fetchErr)
	}
	return body, nil
}

// advisoryNumber parses the identifier after the last underscore.
func advisoryNumber(advisoryURL string) string {
	idx := strings.LastIndex(advisoryURL, "_")
	if idx < 0 || idx == len(advisoryURL)-1 {
		return advisoryURL
	}
	return advisoryURL[idx+1:]
}
