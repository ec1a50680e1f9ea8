// Package score maps a structured identification candidate to a 0-100
// confidence score. Scoring is pure and deterministic: no network, no clock,
// no state, so the same candidate always scores the same regardless of which
// tier produced it.
package score

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cellardex/cellarid/internal/model"
)

// Vintages before this year are treated as implausible for a label still in
// circulation.
const earliestPlausibleVintage = 1900

// latestPlausibleVintage bounds the future side: a vintage more than one year
// ahead of any bottling cycle is model confabulation.
const latestPlausibleVintage = 2027

// Scorer scores candidates against a curated reference of recognizable
// producers. The dominant signal is the recognizability of the field
// combination, not any field in isolation: a known producer with a matching
// category and in-range vintage scores high; a plausible-sounding but
// unverifiable combination stays near the model's own estimate.
type Scorer struct {
	producers map[string]producerProfile
}

// NewScorer creates a Scorer backed by the built-in producer reference.
func NewScorer() *Scorer {
	return &Scorer{producers: knownProducers()}
}

// Score maps c to an integer confidence in [0,100]. The model's own reported
// confidence is the base term; combination checks move it up or down.
func (s *Scorer) Score(c model.Candidate) int {
	conf := c.Confidence

	if c.Name == nil || strings.TrimSpace(*c.Name) == "" {
		// No primary name: nothing downstream can act on this.
		return clamp(conf - 40)
	}

	profile, known := s.lookup(c)

	switch {
	case known && s.combinationMatches(c, profile):
		conf += 15
	case known:
		// Recognized producer but a contradictory category or out-of-range
		// vintage: the combination is suspect even if each field looks fine.
		conf -= 20
	default:
		// Unverifiable combination: trust the model but cap the ceiling; an
		// unrecognized label should not clear the no-escalation bar on the
		// model's word alone.
		if conf > 82 {
			conf = 82
		}
	}

	if c.Vintage != nil && (*c.Vintage < earliestPlausibleVintage || *c.Vintage > latestPlausibleVintage) {
		conf -= 25
	}
	if c.Category != nil && !model.ValidCategory(model.Category(*c.Category)) {
		conf -= 15
	}

	return clamp(conf)
}

func (s *Scorer) lookup(c model.Candidate) (producerProfile, bool) {
	keys := make([]string, 0, 2)
	if c.Producer != nil {
		keys = append(keys, Normalize(*c.Producer))
	}
	if c.Name != nil {
		keys = append(keys, Normalize(*c.Name))
	}
	for _, k := range keys {
		if p, ok := s.producers[k]; ok {
			return p, true
		}
	}
	return producerProfile{}, false
}

func (s *Scorer) combinationMatches(c model.Candidate, p producerProfile) bool {
	if c.Category != nil && len(p.categories) > 0 {
		found := false
		for _, cat := range p.categories {
			if model.Category(*c.Category) == cat {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.Vintage != nil && p.firstVintage > 0 && *c.Vintage < p.firstVintage {
		return false
	}
	return true
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Normalize lowercases, strips diacritics, and collapses whitespace so
// "Château Margaux" and "chateau  margaux" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
