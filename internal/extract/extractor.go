// Package extract derives structural SEO signals from HTML documents using
// goquery. Extraction is a pure function of the document bytes and the
// resolved final URL; malformed markup resolves to conservative defaults and
// never raises.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagepulse/crawlworker/internal/crawl"
)

// Result carries the derived signals plus the raw observations some callers
// record separately (the resolved canonical target and the heading count).
type Result struct {
	Signals crawl.Signals
	// CanonicalURL is the canonical link target resolved against the final
	// URL, or the raw href when it cannot be resolved. Empty when the
	// document declares no canonical link.
	CanonicalURL string
	H1Count      int
}

// Extract parses the document and derives the signal set. Any parse
// ambiguity resolves to a conservative value: boolean signals default to
// absent, while indexable and canonicalOk default to true because their
// controlling elements are opt-in.
func Extract(html []byte, finalURL string) Result {
	res := Result{
		Signals: crawl.Signals{
			Indexable:   true,
			CanonicalOK: true,
			SchemaTypes: []string{},
		},
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err == nil {
		res.Signals.HasTitle = hasTitle(doc)
		res.Signals.HasMetaDescription = metaContent(doc, "description") != ""
		res.H1Count = doc.Find("h1").Length()
		res.Signals.HasH1 = res.H1Count > 0
		res.Signals.Indexable = !strings.Contains(strings.ToLower(metaContent(doc, "robots")), "noindex")
		res.Signals.SchemaTypes = schemaTypes(jsonLDBlocks(doc))

		if href, declared := canonicalHref(doc); declared {
			resolved, ok := resolveCanonical(href, finalURL)
			res.CanonicalURL = resolved
			res.Signals.CanonicalOK = ok && resolved == finalURL
		}
	}

	res.Signals.StructuralScore = crawl.Score(res.Signals)
	return res
}

func hasTitle(doc *goquery.Document) bool {
	return strings.TrimSpace(doc.Find("title").First().Text()) != ""
}

// metaContent returns the trimmed content attribute of the first meta element
// whose name matches case-insensitively, or "" when absent.
func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		metaName, _ := sel.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(metaName), name) {
			return true
		}
		raw, _ := sel.Attr("content")
		content = strings.TrimSpace(raw)
		return false
	})
	return content
}

// canonicalHref returns the href of the first canonical link element and
// whether one is declared at all.
func canonicalHref(doc *goquery.Document) (string, bool) {
	var (
		href     string
		declared bool
	)
	doc.Find("link").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rel, _ := sel.Attr("rel")
		if !strings.EqualFold(strings.TrimSpace(rel), "canonical") {
			return true
		}
		declared = true
		href, _ = sel.Attr("href")
		return false
	})
	return strings.TrimSpace(href), declared
}

// resolveCanonical resolves href against base and reports whether the
// resolution produced a usable absolute URL. An empty or unparseable href is
// unusable: declared-but-broken canonicals count against the page.
func resolveCanonical(href, base string) (string, bool) {
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href, false
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href, false
	}
	resolved := baseURL.ResolveReference(ref)
	if resolved.Host == "" {
		return resolved.String(), false
	}
	return resolved.String(), true
}
