// Package feed defines the normalized record model, the source table and the
// contracts between the ingestion pipeline's components.
package feed

import "time"

// Category classifies a source's items. It is assigned per source, never per item.
type Category string

// The fixed category set.
const (
	CategoryVulnerabilities Category = "Vulnerabilities"
	CategoryExploits        Category = "Exploits"
	CategoryAdvisories      Category = "Advisories"
)

// AdapterKind selects which adapter handles a source.
type AdapterKind string

// Known adapter kinds.
const (
	KindRSS       AdapterKind = "rss"
	KindHTMLIndex AdapterKind = "html_index"
	KindSlowJSON  AdapterKind = "slow_json"
	KindBulkGzip  AdapterKind = "bulk_gzip"
)

// Source is one configured remote origin.
type Source struct {
	Name     string      `mapstructure:"name"`
	URL      string      `mapstructure:"url"`
	Category Category    `mapstructure:"category"`
	Kind     AdapterKind `mapstructure:"kind"`
	// ItemCap bounds the number of new records accepted per cycle.
	// Zero or negative means uncapped.
	ItemCap int `mapstructure:"item_cap"`
}

// Capped reports whether the per-cycle item cap applies to this source.
func (s Source) Capped() bool {
	return s.ItemCap > 0
}

// Record is the normalized representation of one ingested item. Records are
// immutable after creation; the store owns their lifecycle.
type Record struct {
	ID          int64
	Title       string
	Link        string
	PublishedAt time.Time
	Source      string
	Category    Category
	// Description and AdvisoryNumber are optional; empty means absent
	// and is stored as NULL.
	Description    string
	AdvisoryNumber string
}

// MaxTitleLen is the storage bound for record titles.
const MaxTitleLen = 255

// MaxDescriptionLen bounds description snippets.
const MaxDescriptionLen = 100
