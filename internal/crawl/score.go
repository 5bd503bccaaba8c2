package crawl

// Structural score penalties. Penalties are independent and additive; the
// result is clamped to [0, 100] so a page failing every check scores 0.
const (
	penaltyMissingTitle    = 25
	penaltyMissingMeta     = 15
	penaltyMissingH1       = 15
	penaltyNotIndexable    = 30
	penaltyCanonicalBroken = 15
)

// Score computes the structural score for the given signals. It is a
// deterministic pure function of the five boolean inputs; SchemaTypes and
// StructuralScore on the input are ignored.
func Score(s Signals) int {
	score := 100
	if !s.HasTitle {
		score -= penaltyMissingTitle
	}
	if !s.HasMetaDescription {
		score -= penaltyMissingMeta
	}
	if !s.HasH1 {
		score -= penaltyMissingH1
	}
	if !s.Indexable {
		score -= penaltyNotIndexable
	}
	if !s.CanonicalOK {
		score -= penaltyCanonicalBroken
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
