// Package bulkcve implements the adapter for the gzipped bulk CVE document.
package bulkcve

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/feed"
	"github.com/secwatch/secfeeds/internal/httpclient"
)

// Config controls adapter behavior.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Adapter implements feed.Adapter for the NVD recent-CVE bulk feed. The
// document carries no per-entry links, so each record's link is synthesized
// from the CVE identifier.
type Adapter struct {
	cfg    Config
	client *http.Client
	clock  feed.Clock
	logger *zap.Logger
}

// New builds an Adapter.
func New(cfg Config, clock feed.Clock, logger *zap.Logger) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: httpclient.New(cfg.Timeout),
		clock:  clock,
		logger: logger,
	}
}

// nvdDocument is the subset of the NVD JSON 1.1 schema the pipeline needs.
type nvdDocument struct {
	CVEItems []nvdItem `json:"CVE_Items"`
}

type nvdItem struct {
	CVE struct {
		CVEDataMeta struct {
			ID string `json:"ID"`
		} `json:"CVE_data_meta"`
	} `json:"cve"`
	PublishedDate string `json:"publishedDate"`
}

// Fetch downloads the compressed document, decompresses it in memory and maps
// its entries to records. Entries without an identifier are skipped; there is
// nothing to link or title them with.
func (a *Adapter) Fetch(ctx context.Context, src feed.Source) ([]feed.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if a.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", a.cfg.UserAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bulk document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch bulk document: unexpected status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decompress bulk document: %w", err)
	}
	defer gz.Close()

	var doc nvdDocument
	if err := json.NewDecoder(gz).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse bulk document: %w", err)
	}

	records := make([]feed.Record, 0, len(doc.CVEItems))
	for _, item := range doc.CVEItems {
		id := item.CVE.CVEDataMeta.ID
		if id == "" {
			a.logger.Debug("skipping CVE entry without identifier",
				zap.String("source", src.Name),
			)
			continue
		}
		published, ok := feed.ParseTime(item.PublishedDate)
		if !ok {
			published = a.clock.Now()
			a.logger.Warn("unparsable CVE published date, defaulting to now",
				zap.String("source", src.Name),
				zap.String("cve", id),
				zap.String("raw_date", item.PublishedDate),
			)
		}
		records = append(records, feed.Record{
			Title:       feed.TruncateTitle(id),
			Link:        fmt.Sprintf("https://nvd.nist.gov/vuln/detail/%s", id),
			PublishedAt: published,
			Source:      src.Name,
			Category:    src.Category,
		})
	}
	return records, nil
}
