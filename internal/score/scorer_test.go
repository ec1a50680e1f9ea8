package score

import (
	"testing"

	"github.com/cellardex/cellarid/internal/model"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestScore_KnownCombinationBoosted(t *testing.T) {
	s := NewScorer()

	c := model.Candidate{
		Name:       strp("Château Margaux"),
		Producer:   strp("Château Margaux"),
		Vintage:    intp(2015),
		Category:   strp("red"),
		Grapes:     []string{"cabernet sauvignon", "merlot"},
		Confidence: 80,
	}

	if got := s.Score(c); got != 95 {
		t.Errorf("Score = %d, want 95", got)
	}
}

func TestScore_KnownProducerWrongCategory(t *testing.T) {
	s := NewScorer()

	c := model.Candidate{
		Name:       strp("Krug"),
		Category:   strp("red"), // Krug does not bottle still red
		Confidence: 80,
	}

	if got := s.Score(c); got != 60 {
		t.Errorf("contradictory combination must be penalized, Score = %d, want 60", got)
	}
}

func TestScore_UnknownCombinationCapped(t *testing.T) {
	s := NewScorer()

	c := model.Candidate{
		Name:       strp("Domaine des Vignes Imaginaires"),
		Vintage:    intp(2018),
		Category:   strp("red"),
		Confidence: 97, // the model is sure, the reference is not
	}

	if got := s.Score(c); got != 82 {
		t.Errorf("unverifiable combination must not clear the ceiling, Score = %d, want 82", got)
	}
}

func TestScore_MissingNamePenalized(t *testing.T) {
	s := NewScorer()

	c := model.Candidate{Confidence: 70}
	if got := s.Score(c); got != 30 {
		t.Errorf("Score = %d, want 30", got)
	}
}

func TestScore_ImplausibleVintage(t *testing.T) {
	s := NewScorer()

	c := model.Candidate{
		Name:       strp("Penfolds Grange"),
		Vintage:    intp(1800),
		Category:   strp("red"),
		Confidence: 80,
	}

	// Known producer, but the vintage predates its first release: the
	// combination fails (-20) and the vintage is out of range (-25).
	if got := s.Score(c); got != 35 {
		t.Errorf("Score = %d, want 35", got)
	}
}

func TestScore_VintageBeforeFirstRelease(t *testing.T) {
	s := NewScorer()

	c := model.Candidate{
		Name:       strp("Screaming Eagle"),
		Vintage:    intp(1985), // first vintage 1992
		Category:   strp("red"),
		Confidence: 80,
	}

	if got := s.Score(c); got != 60 {
		t.Errorf("Score = %d, want 60", got)
	}
}

func TestScore_InvalidCategory(t *testing.T) {
	s := NewScorer()

	c := model.Candidate{
		Name:       strp("Some Wine"),
		Category:   strp("orange-ish"),
		Confidence: 60,
	}

	if got := s.Score(c); got != 45 {
		t.Errorf("Score = %d, want 45", got)
	}
}

func TestScore_Deterministic(t *testing.T) {
	s := NewScorer()
	c := model.Candidate{
		Name:       strp("Opus One"),
		Vintage:    intp(2013),
		Category:   strp("red"),
		Confidence: 75,
	}
	first := s.Score(c)
	for i := 0; i < 10; i++ {
		if got := s.Score(c); got != first {
			t.Fatalf("score not deterministic: %d then %d", first, got)
		}
	}
}

func TestScore_Clamped(t *testing.T) {
	s := NewScorer()

	high := model.Candidate{
		Name:       strp("Château Margaux"),
		Category:   strp("red"),
		Vintage:    intp(2010),
		Confidence: 95,
	}
	if got := s.Score(high); got != 100 {
		t.Errorf("Score = %d, want clamped 100", got)
	}

	low := model.Candidate{Confidence: 10}
	if got := s.Score(low); got != 0 {
		t.Errorf("Score = %d, want clamped 0", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Château Margaux", "chateau margaux"},
		{"  CHÂTEAU   MARGAUX ", "chateau margaux"},
		{"Joh. Jos. Prüm", "joh. jos. prum"},
		{"plain name", "plain name"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
