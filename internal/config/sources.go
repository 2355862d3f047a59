package config

import "github.com/secwatch/secfeeds/internal/feed"

// DefaultSources returns the built-in source table. The per-cycle cap applies
// to every source except "In the Wild Exploits", which is deliberately
// uncapped; its value is enumeration, and a cap would silently drop entries
// the endpoint only ever reports once.
func DefaultSources(itemCap int) []feed.Source {
	rss := func(name, url string, category feed.Category) feed.Source {
		return feed.Source{Name: name, URL: url, Category: category, Kind: feed.KindRSS, ItemCap: itemCap}
	}
	return []feed.Source{
		rss("SecurityWeek", "https://www.securityweek.com/feed", feed.CategoryVulnerabilities),
		rss("The Hacker News", "https://feeds.feedburner.com/TheHackersNews?format=xml", feed.CategoryExploits),
		rss("BleepingComputer", "https://www.bleepingcomputer.com/feed/", feed.CategoryExploits),
		rss("Sophos Research", "https://news.sophos.com/en-us/category/threat-research/feed/", feed.CategoryAdvisories),
		rss("Microsoft Security", "https://api.msrc.microsoft.com/update-guide/rss", feed.CategoryAdvisories),
		rss("Red Hat Security", "https://access.redhat.com/blogs/766093/feed", feed.CategoryAdvisories),
		rss("Dark Reading", "https://www.darkreading.com/rss.xml", feed.CategoryVulnerabilities),
		rss("Krebs on Security", "https://krebsonsecurity.com/feed/", feed.CategoryExploits),
		rss("CISA Alerts", "https://www.cisa.gov/cybersecurity-advisories/all.xml", feed.CategoryAdvisories),
		rss("ZDI Upcoming", "https://www.zerodayinitiative.com/rss/upcoming/", feed.CategoryVulnerabilities),
		rss("ZDI Published", "https://www.zerodayinitiative.com/rss/published/", feed.CategoryVulnerabilities),
		{
			Name:     "In the Wild Exploits",
			URL:      "https://inthewild.io/feed",
			Category: feed.CategoryExploits,
			Kind:     feed.KindSlowJSON,
		},
		rss("Ubuntu Security", "https://ubuntu.com/security/notices/feed", feed.CategoryAdvisories),
		{
			Name:     "Center for Internet Security",
			URL:      "https://www.cisecurity.org/feed/advisories",
			Category: feed.CategoryAdvisories,
			Kind:     feed.KindHTMLIndex,
			ItemCap:  itemCap,
		},
		rss("Universal Cyberalerts.io Security Alerts", "https://cyberalerts.io/rss/latest-public", feed.CategoryAdvisories),
	}
}

// DefaultBulkSource returns the bulk CVE document source fetched once per
// cycle outside the per-source loop.
func DefaultBulkSource(itemCap int) feed.Source {
	return feed.Source{
		Name:     "NIST NVD",
		URL:      "https://nvd.nist.gov/feeds/json/cve/1.1/nvdcve-1.1-Recent.json.gz",
		Category: feed.CategoryVulnerabilities,
		Kind:     feed.KindBulkGzip,
		ItemCap:  itemCap,
	}
}

// SourceNames lists the configured source names in table order, bulk source
// included, for the read-side contract.
func (c Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources)+1)
	for _, src := range c.Sources {
		names = append(names, src.Name)
	}
	names = append(names, c.Bulk.Name)
	return names
}
