package extract

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// jsonLDBlocks returns the text of every application/ld+json script block.
func jsonLDBlocks(doc *goquery.Document) []string {
	var blocks []string
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		scriptType, _ := sel.Attr("type")
		if !strings.EqualFold(strings.TrimSpace(scriptType), "application/ld+json") {
			return
		}
		blocks = append(blocks, sel.Text())
	})
	return blocks
}

// schemaTypes collects the de-duplicated @type values across all structured
// data blocks, sorted for deterministic persistence. Blocks that fail to
// parse are skipped silently.
func schemaTypes(blocks []string) []string {
	set := make(map[string]struct{})
	for _, block := range blocks {
		var data any
		if err := json.Unmarshal([]byte(block), &data); err != nil {
			continue
		}
		collectTypes(data, set)
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// collectTypes walks arbitrarily nested JSON-LD (including @graph arrays)
// gathering @type values, which may be a string or a list of strings.
func collectTypes(node any, out map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		if raw, ok := v["@type"]; ok {
			switch typed := raw.(type) {
			case string:
				if typed != "" {
					out[typed] = struct{}{}
				}
			case []any:
				for _, item := range typed {
					if s, ok := item.(string); ok && s != "" {
						out[s] = struct{}{}
					}
				}
			}
		}
		for _, child := range v {
			collectTypes(child, out)
		}
	case []any:
		for _, child := range v {
			collectTypes(child, out)
		}
	}
}
