package model

import (
	"github.com/rotisserie/eris"
)

// Validation errors for identification requests.
var (
	ErrEmptyInput       = eris.New("model: empty input")
	ErrMissingMimeType  = eris.New("model: image input requires a mime type")
	ErrUnknownInputKind = eris.New("model: unknown input kind")
)

// Category is the wine style enum a candidate may carry.
type Category string

const (
	CategoryRed       Category = "red"
	CategoryWhite     Category = "white"
	CategoryRose      Category = "rose"
	CategorySparkling Category = "sparkling"
	CategoryDessert   Category = "dessert"
	CategoryFortified Category = "fortified"
)

// AllCategories returns every valid category value.
func AllCategories() []Category {
	return []Category{
		CategoryRed, CategoryWhite, CategoryRose,
		CategorySparkling, CategoryDessert, CategoryFortified,
	}
}

// ValidCategory reports whether c is a known category value.
func ValidCategory(c Category) bool {
	for _, v := range AllCategories() {
		if v == c {
			return true
		}
	}
	return false
}

// CandidateFields is the fixed field order for streaming emission. Consumers
// see fields in this order regardless of how the model orders its JSON output.
var CandidateFields = []string{"name", "producer", "vintage", "category", "grapes", "confidence"}

// Candidate is one complete structured identification guess. Every field is
// independently nullable; Confidence is the model's own 0-100 estimate and is
// re-scored by the confidence scorer before any escalation decision.
type Candidate struct {
	Name       *string  `json:"name"`
	Producer   *string  `json:"producer"`
	Vintage    *int     `json:"vintage"`
	Category   *string  `json:"category"`
	Grapes     []string `json:"grapes"`
	Confidence int      `json:"confidence"`
}

// Field returns the named field's current value, nil when unset. The bool
// reports whether the name is a known candidate field.
func (c Candidate) Field(name string) (any, bool) {
	switch name {
	case "name":
		return deref(c.Name), true
	case "producer":
		return deref(c.Producer), true
	case "vintage":
		return deref(c.Vintage), true
	case "category":
		return deref(c.Category), true
	case "grapes":
		if c.Grapes == nil {
			return nil, true
		}
		return c.Grapes, true
	case "confidence":
		return c.Confidence, true
	default:
		return nil, false
	}
}

// ChangedFields compares next against prev field by field and returns the
// names of fields whose values differ, in CandidateFields order. Confidence is
// excluded: it travels on the refined event, not as a field update.
func ChangedFields(prev, next Candidate) []string {
	var changed []string
	for _, f := range CandidateFields {
		if f == "confidence" {
			continue
		}
		a, _ := prev.Field(f)
		b, _ := next.Field(f)
		if !fieldEqual(a, b) {
			changed = append(changed, f)
		}
	}
	return changed
}

func fieldEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// FromParsed builds a Candidate from the extractor's loosely typed full-parse
// output. Unknown keys are ignored; wrong-typed values are treated as unset.
func FromParsed(obj map[string]any) Candidate {
	var c Candidate
	if s, ok := obj["name"].(string); ok && s != "" {
		c.Name = &s
	}
	if s, ok := obj["producer"].(string); ok && s != "" {
		c.Producer = &s
	}
	if v, ok := toInt(obj["vintage"]); ok {
		c.Vintage = &v
	}
	if s, ok := obj["category"].(string); ok && s != "" {
		c.Category = &s
	}
	if raw, ok := obj["grapes"].([]any); ok {
		for _, g := range raw {
			if s, ok := g.(string); ok {
				c.Grapes = append(c.Grapes, s)
			}
		}
	} else if gs, ok := obj["grapes"].([]string); ok {
		c.Grapes = gs
	}
	if v, ok := toInt(obj["confidence"]); ok {
		c.Confidence = clampConfidence(v)
	}
	return c
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
