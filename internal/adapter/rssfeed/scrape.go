package rssfeed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
)

// rawItem is the minimal shape pulled out of a non-conformant feed.
type rawItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
}

// scrapeItems walks the document token by token and decodes every <item>
// element it can reach, wherever it is nested. Decoding runs in non-strict
// mode; whatever was extracted before the document breaks down is kept.
func scrapeItems(body []byte) ([]rawItem, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false

	var items []rawItem
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(items) > 0 {
				break
			}
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "item" {
			continue
		}
		var item rawItem
		if err := decoder.DecodeElement(&item, &start); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
