package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const finalURL = "https://example.com/Page"

func TestExtract_FullyHealthyPage(t *testing.T) {
	t.Parallel()

	html := `<!doctype html>
<html><head>
<title>Widgets</title>
<meta name="description" content="All about widgets.">
</head><body><h1>Widgets</h1></body></html>`

	res := Extract([]byte(html), finalURL)
	require.True(t, res.Signals.HasTitle)
	require.True(t, res.Signals.HasMetaDescription)
	require.True(t, res.Signals.HasH1)
	require.True(t, res.Signals.Indexable)
	require.True(t, res.Signals.CanonicalOK)
	require.Equal(t, 100, res.Signals.StructuralScore)
	require.Empty(t, res.CanonicalURL)
	require.Equal(t, 1, res.H1Count)
}

func TestExtract_MissingTitleScoresSeventyFive(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<meta name="description" content="desc">
</head><body><h1>Heading</h1></body></html>`

	res := Extract([]byte(html), finalURL)
	require.False(t, res.Signals.HasTitle)
	require.True(t, res.Signals.HasMetaDescription)
	require.True(t, res.Signals.HasH1)
	require.True(t, res.Signals.Indexable)
	require.True(t, res.Signals.CanonicalOK)
	require.Equal(t, 75, res.Signals.StructuralScore)
}

func TestExtract_WhitespaceOnlySignalsAreAbsent(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<title>   </title>
<meta name="description" content="   ">
</head><body></body></html>`

	res := Extract([]byte(html), finalURL)
	require.False(t, res.Signals.HasTitle)
	require.False(t, res.Signals.HasMetaDescription)
	require.False(t, res.Signals.HasH1)
}

func TestExtract_RobotsNoindex(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		content   string
		indexable bool
	}{
		{"plain noindex", "noindex", false},
		{"uppercase", "NOINDEX, nofollow", false},
		{"embedded token", "nofollow,noindex", false},
		{"index allowed", "index, follow", true},
		{"empty content", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			html := `<html><head><meta name="robots" content="` + tc.content + `"></head></html>`
			res := Extract([]byte(html), finalURL)
			require.Equal(t, tc.indexable, res.Signals.Indexable)
		})
	}
}

func TestExtract_Canonical(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		href        string
		ok          bool
		resolvedURL string
	}{
		{"matching absolute", "https://example.com/Page", true, "https://example.com/Page"},
		{"matching relative", "/Page", true, "https://example.com/Page"},
		{"different page", "https://example.com/Other", false, "https://example.com/Other"},
		{"tracking params differ", "https://example.com/Page?utm_source=x", false, "https://example.com/Page?utm_source=x"},
		{"empty href", "", false, ""},
		{"malformed href", "https://exa mple.com/%zz", false, "https://exa mple.com/%zz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			html := `<html><head><link rel="canonical" href="` + tc.href + `"></head></html>`
			res := Extract([]byte(html), finalURL)
			require.Equal(t, tc.ok, res.Signals.CanonicalOK)
			require.Equal(t, tc.resolvedURL, res.CanonicalURL)
		})
	}
}

func TestExtract_NoCanonicalIsOK(t *testing.T) {
	t.Parallel()

	res := Extract([]byte(`<html><head></head></html>`), finalURL)
	require.True(t, res.Signals.CanonicalOK)
	require.Empty(t, res.CanonicalURL)
}

func TestExtract_SchemaTypes(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Article","author":{"@type":"Person"}}</script>
<script type="application/ld+json">{"@graph":[{"@type":["Organization","LocalBusiness"]},{"@type":"Article"}]}</script>
<script type="application/ld+json">{not valid json</script>
</head></html>`

	res := Extract([]byte(html), finalURL)
	require.Equal(t, []string{"Article", "LocalBusiness", "Organization", "Person"}, res.Signals.SchemaTypes)
}

func TestExtract_NeverPanicsOnArbitraryInput(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("<"),
		[]byte("<title"),
		[]byte("<html><head><title>t</title"),
		[]byte("\x00\xff\xfe garbage"),
		[]byte(`<script type="application/ld+json">{"@type":`),
	}
	for _, in := range inputs {
		res := Extract(in, finalURL)
		require.True(t, res.Signals.Indexable)
		require.True(t, res.Signals.CanonicalOK)
		require.GreaterOrEqual(t, res.Signals.StructuralScore, 0)
		require.LessOrEqual(t, res.Signals.StructuralScore, 100)
	}
}

func TestExtract_MultipleH1sCounted(t *testing.T) {
	t.Parallel()

	res := Extract([]byte(`<html><body><h1>a</h1><h1>b</h1><h1>c</h1></body></html>`), finalURL)
	require.True(t, res.Signals.HasH1)
	require.Equal(t, 3, res.H1Count)
}
