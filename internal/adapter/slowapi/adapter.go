// Package slowapi implements the adapter for the slow JSON exploit feed.
//
// The endpoint is known to take tens of seconds to answer, so each attempt
// runs under a long timeout and timeouts are retried with exponential
// backoff. Any other transport error aborts immediately.
package slowapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/feed"
	"github.com/secwatch/secfeeds/internal/httpclient"
)

// Config controls adapter behavior.
type Config struct {
	// AttemptTimeout bounds a single request, response included.
	AttemptTimeout time.Duration
	UserAgent      string
}

// Adapter implements feed.Adapter for the slow JSON endpoint.
type Adapter struct {
	cfg    Config
	client *http.Client
	policy feed.RetryPolicy
	clock  feed.Clock
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds an Adapter governed by the given retry policy.
func New(cfg Config, policy feed.RetryPolicy, clock feed.Clock, logger *zap.Logger) *Adapter {
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 90 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: httpclient.New(0),
		policy: policy,
		clock:  clock,
		logger: logger,
		sleep:  sleepContext,
	}
}

// exploitEntry mirrors the endpoint's JSON array element.
type exploitEntry struct {
	ID           string `json:"id"`
	ReferenceURL string `json:"referenceURL"`
	TimeStamp    string `json:"timeStamp"`
	Description  string `json:"description"`
}

// Fetch calls the endpoint under the retry policy, sorts entries newest
// first and maps them to records. Entries without a link get a deterministic
// per-source placeholder: this source's value is enumeration, not
// linkability, so dropping them would defeat its purpose.
func (a *Adapter) Fetch(ctx context.Context, src feed.Source) ([]feed.Record, error) {
	var body []byte
	for attempt := 0; ; attempt++ {
		var err error
		body, err = a.attempt(ctx, src.URL)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("slow api fetch canceled: %w", ctx.Err())
		}
		if !a.policy.ShouldRetry(err, attempt) {
			return nil, fmt.Errorf("slow api attempt %d: %w", attempt+1, err)
		}
		delay := a.policy.Backoff(attempt)
		a.logger.Info("slow api attempt timed out, retrying",
			zap.String("source", src.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
		)
		if err := a.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("retry backoff interrupted: %w", err)
		}
	}

	var entries []exploitEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		// A malformed payload is worth a cycle of zero records, not a
		// source failure; the endpoint has served truncated JSON before.
		a.logger.Error("slow api payload is not valid JSON",
			zap.String("source", src.Name),
			zap.Error(err),
		)
		return nil, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TimeStamp > entries[j].TimeStamp
	})

	records := make([]feed.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, a.toRecord(entry, src))
	}
	return records, nil
}

func (a *Adapter) attempt(ctx context.Context, url string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if a.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", a.cfg.UserAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (a *Adapter) toRecord(entry exploitEntry, src feed.Source) feed.Record {
	title := entry.ID
	if title == "" {
		title = "Untitled"
	}
	link := entry.ReferenceURL
	if link == "" {
		link = fmt.Sprintf("%s_no_link", src.Name)
	}
	published, ok := feed.ParseTime(entry.TimeStamp)
	if !ok {
		published = a.clock.Now()
		a.logger.Warn("unparsable exploit timestamp, defaulting to now",
			zap.String("source", src.Name),
			zap.String("id", entry.ID),
			zap.String("raw_date", entry.TimeStamp),
		)
	}
	return feed.Record{
		Title:       feed.TruncateTitle(title),
		Link:        link,
		PublishedAt: published,
		Source:      src.Name,
		Category:    src.Category,
		Description: feed.TruncateDescription(entry.Description),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
