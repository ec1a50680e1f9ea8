package extract

import (
	"reflect"
	"testing"
)

func TestFeed_EmitsFieldsAsTheyComplete(t *testing.T) {
	x := New([]string{"name", "year", "confidence"})

	chunks := []string{
		`{"name": "Château`,
		` Margaux", "year": null, "conf`,
		`idence": 92}`,
	}

	var events []FieldEvent
	for _, c := range chunks {
		events = append(events, x.Feed(c)...)
	}

	want := []FieldEvent{
		{Field: "name", Value: "Château Margaux"},
		{Field: "confidence", Value: 92},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %#v, want %#v", events, want)
	}
}

func TestFeed_NullSuppressedAndNeverReemitted(t *testing.T) {
	x := New([]string{"year"})

	if got := x.Feed(`{"year": null`); len(got) != 0 {
		t.Fatalf("expected no events for incomplete null, got %v", got)
	}
	if got := x.Feed(`, "other": 1}`); len(got) != 0 {
		t.Fatalf("null field must be suppressed, got %v", got)
	}
	// A later non-null occurrence must not resurrect an already-handled field.
	if got := x.Feed(`{"year": 1999}`); len(got) != 0 {
		t.Errorf("field already handled, got %v", got)
	}
}

func TestFeed_OrderFollowsTargetList(t *testing.T) {
	x := New([]string{"producer", "name"})

	// Both fields complete in the same chunk, JSON order reversed.
	events := x.Feed(`{"name": "Opus One", "producer": "Opus One Winery",`)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Field != "producer" || events[1].Field != "name" {
		t.Errorf("emission must follow target order, got %s then %s",
			events[0].Field, events[1].Field)
	}
}

func TestFeed_NoDuplicateEmission(t *testing.T) {
	x := New([]string{"name"})

	first := x.Feed(`{"name": "Penfolds Grange", `)
	second := x.Feed(`"vintage": 2008}`)
	if len(first) != 1 {
		t.Fatalf("expected 1 event, got %d", len(first))
	}
	if len(second) != 0 {
		t.Errorf("field must not be re-emitted, got %v", second)
	}
}

func TestFeed_NumberNotCompleteWithoutDelimiter(t *testing.T) {
	x := New([]string{"vintage"})

	if got := x.Feed(`{"vintage": 19`); len(got) != 0 {
		t.Fatalf("trailing digits are not a complete number, got %v", got)
	}
	events := x.Feed(`99,`)
	if len(events) != 1 || events[0].Value != 1999 {
		t.Errorf("expected vintage 1999, got %v", events)
	}
}

func TestFeed_ArrayOfStrings(t *testing.T) {
	x := New([]string{"grapes"})

	x.Feed(`{"grapes": ["cabernet sauvignon", "mer`)
	events := x.Feed(`lot"], "name": "x"}`)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	want := []string{"cabernet sauvignon", "merlot"}
	if !reflect.DeepEqual(events[0].Value, want) {
		t.Errorf("grapes = %v, want %v", events[0].Value, want)
	}
}

func TestFeed_EscapedQuotesInString(t *testing.T) {
	x := New([]string{"name"})

	events := x.Feed(`{"name": "Clos \"Les Amis\"",`)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Value != `Clos "Les Amis"` {
		t.Errorf("unexpected value %q", events[0].Value)
	}
}

func TestFeed_KeyInsideStringValueIgnored(t *testing.T) {
	x := New([]string{"name"})

	// "name" appearing inside another field's value is not a key.
	if got := x.Feed(`{"notes": "the \"name\": on the label", `); len(got) != 0 {
		t.Fatalf("expected no events, got %v", got)
	}
	events := x.Feed(`"name": "Barolo"}`)
	if len(events) != 1 || events[0].Value != "Barolo" {
		t.Errorf("expected name Barolo, got %v", events)
	}
}

func TestFinal_IncompleteThenComplete(t *testing.T) {
	x := New([]string{"name"})

	x.Feed(`{"name": "Krug", "confidence": 90`)
	if _, ok := x.Final(); ok {
		t.Fatal("document is not closed yet")
	}

	x.Feed(`}`)
	obj, ok := x.Final()
	if !ok {
		t.Fatal("expected complete parse")
	}
	if obj["name"] != "Krug" {
		t.Errorf("name = %v", obj["name"])
	}
}

func TestFinal_StripsMarkdownFences(t *testing.T) {
	x := New(nil)
	x.Feed("```json\n{\"confidence\": 40}\n```")

	obj, ok := x.Final()
	if !ok {
		t.Fatal("expected complete parse")
	}
	if obj["confidence"] != float64(40) {
		t.Errorf("confidence = %v", obj["confidence"])
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Here you go: {"a":1} hope it helps`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSON(tt.in); got != tt.want {
				t.Errorf("CleanJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
