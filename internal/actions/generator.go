// Package actions maps missing SEO signals to remediation recommendations.
package actions

import "github.com/pagepulse/crawlworker/internal/crawl"

// Action types emitted for detected deficiencies.
const (
	TypeMissingTitle           = "missing_title"
	TypeMissingMetaDescription = "missing_meta_description"
	TypeMissingH1              = "missing_h1"
)

// Generate maps signals to zero or more remediation actions, one per
// detected deficiency. The caller fills in snapshot and page identifiers
// before persisting. Generate never fails for any signals value.
func Generate(signals crawl.Signals) []crawl.Action {
	var out []crawl.Action

	if !signals.HasTitle {
		out = append(out, crawl.Action{
			Type:        TypeMissingTitle,
			Title:       "Add a page title",
			Description: "The page has no <title> element, or its text is empty. Titles are the strongest on-page relevance signal and the headline shown in search results.",
			Severity:    crawl.LevelHigh,
			Priority:    crawl.LevelHigh,
			Steps: []string{
				"Write a unique, descriptive title of roughly 50-60 characters.",
				"Place it in a <title> element inside <head>.",
				"Lead with the primary topic of the page, not the site name.",
			},
		})
	}

	if !signals.HasMetaDescription {
		out = append(out, crawl.Action{
			Type:        TypeMissingMetaDescription,
			Title:       "Add a meta description",
			Description: "The page has no <meta name=\"description\"> with content. Search engines fall back to arbitrary page text for the result snippet.",
			Severity:    crawl.LevelMedium,
			Priority:    crawl.LevelMedium,
			Steps: []string{
				"Summarize the page in roughly 150-160 characters.",
				"Add it as <meta name=\"description\" content=\"...\"> inside <head>.",
				"Keep it unique per page to avoid duplicate snippets.",
			},
		})
	}

	if !signals.HasH1 {
		out = append(out, crawl.Action{
			Type:        TypeMissingH1,
			Title:       "Add a top-level heading",
			Description: "The page has no <h1> element. A single clear top-level heading helps both readers and crawlers understand the page topic.",
			Severity:    crawl.LevelMedium,
			Priority:    crawl.LevelLow,
			Steps: []string{
				"Add one <h1> near the top of the main content.",
				"Match its wording to what the page is about.",
			},
		})
	}

	return out
}
