// Package extract pulls structured fields out of a model's streaming JSON
// output before the document is complete.
package extract

import (
	"encoding/json"
	"strings"
)

// FieldEvent is one incremental update: a target field whose value just
// became syntactically complete in the stream.
type FieldEvent struct {
	Field string
	Value any
}

// Extractor consumes raw text chunks from a streaming response and emits one
// event per target field the moment its `"field": <value>` pair closes. The
// accumulated buffer is not valid JSON until the stream ends, so completion is
// detected by quote/bracket-depth scanning rather than a full parse.
type Extractor struct {
	fields  []string
	emitted map[string]bool
	buf     strings.Builder
}

// New creates an Extractor for the given ordered target fields. Events are
// emitted in this order, not in the order fields appear in the stream.
func New(fields []string) *Extractor {
	return &Extractor{
		fields:  fields,
		emitted: make(map[string]bool, len(fields)),
	}
}

// Feed appends a chunk and returns events for every target field that became
// complete, in target-field order. A field is emitted at most once per
// Extractor. Null values are parsed but suppressed: a null field carries no
// more information than an absent one.
func (x *Extractor) Feed(chunk string) []FieldEvent {
	x.buf.WriteString(chunk)
	text := x.buf.String()

	var events []FieldEvent
	for _, field := range x.fields {
		if x.emitted[field] {
			continue
		}
		value, isNull, ok := scanField(text, field)
		if !ok {
			continue
		}
		x.emitted[field] = true
		if isNull {
			continue
		}
		events = append(events, FieldEvent{Field: field, Value: value})
	}
	return events
}

// Buffer returns the full accumulated text.
func (x *Extractor) Buffer() string {
	return x.buf.String()
}

// Final attempts a full parse of the entire accumulated buffer. It returns
// the complete object once the JSON document has closed, or ok=false while
// the stream is still mid-document.
func (x *Extractor) Final() (map[string]any, bool) {
	text := CleanJSON(x.buf.String())
	if text == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// scanField looks for a syntactically complete `"field": <value>` pair in
// text. Returns (value, isNull, found).
func scanField(text, field string) (any, bool, bool) {
	key := `"` + field + `"`
	from := 0
	for {
		idx := strings.Index(text[from:], key)
		if idx < 0 {
			return nil, false, false
		}
		idx += from

		// The key must be in key position: preceded (ignoring whitespace)
		// by '{' or ',', so a field name inside a string value is skipped.
		if !inKeyPosition(text, idx) {
			from = idx + len(key)
			continue
		}

		rest := text[idx+len(key):]
		trimmed := strings.TrimLeft(rest, " \t\r\n")
		if !strings.HasPrefix(trimmed, ":") {
			from = idx + len(key)
			continue
		}
		valText := strings.TrimLeft(trimmed[1:], " \t\r\n")
		return scanValue(valText)
	}
}

func inKeyPosition(text string, keyIdx int) bool {
	for i := keyIdx - 1; i >= 0; i-- {
		switch text[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', ',':
			return true
		default:
			return false
		}
	}
	return false
}

// scanValue determines whether text starts with a complete JSON value and
// decodes it. Only the value kinds a candidate can carry are handled: string,
// number, array of strings, boolean, null.
func scanValue(text string) (any, bool, bool) {
	if text == "" {
		return nil, false, false
	}
	switch text[0] {
	case '"':
		end, ok := scanString(text)
		if !ok {
			return nil, false, false
		}
		return decode(text[:end])
	case '[':
		end, ok := scanArray(text)
		if !ok {
			return nil, false, false
		}
		return decode(text[:end])
	case 't':
		if strings.HasPrefix(text, "true") && hasDelimiter(text, 4) {
			return true, false, true
		}
		return nil, false, false
	case 'f':
		if strings.HasPrefix(text, "false") && hasDelimiter(text, 5) {
			return false, false, true
		}
		return nil, false, false
	case 'n':
		if strings.HasPrefix(text, "null") && hasDelimiter(text, 4) {
			return nil, true, true
		}
		return nil, false, false
	default:
		return scanNumber(text)
	}
}

// scanString returns the index just past the closing quote of a JSON string
// starting at text[0] == '"'.
func scanString(text string) (int, bool) {
	escaped := false
	for i := 1; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			return i + 1, true
		}
	}
	return 0, false
}

// scanArray returns the index just past the closing bracket of a JSON array
// starting at text[0] == '['. Strings inside the array are skipped with full
// escape handling so brackets in values do not confuse the depth count.
func scanArray(text string) (int, bool) {
	depth := 0
	i := 0
	for i < len(text) {
		switch text[i] {
		case '[':
			depth++
			i++
		case ']':
			depth--
			i++
			if depth == 0 {
				return i, true
			}
		case '"':
			n, ok := scanString(text[i:])
			if !ok {
				return 0, false
			}
			i += n
		default:
			i++
		}
	}
	return 0, false
}

// scanNumber reads a JSON number. A number is only complete once a delimiter
// follows it: a trailing "19" could still become "1999" in the next chunk.
func scanNumber(text string) (any, bool, bool) {
	i := 0
	for i < len(text) {
		c := text[i]
		if c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' || (c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	if i == 0 || i == len(text) {
		return nil, false, false
	}
	return decode(text[:i])
}

// hasDelimiter reports whether a literal ending at offset is followed by a
// character that terminates a JSON value.
func hasDelimiter(text string, offset int) bool {
	if offset >= len(text) {
		return false
	}
	switch text[offset] {
	case ',', '}', ']', ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func decode(raw string) (any, bool, bool) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, false
	}
	if v == nil {
		return nil, true, true
	}
	// Normalize whole numbers to int for downstream comparisons.
	if f, ok := v.(float64); ok && f == float64(int(f)) {
		return int(f), false, true
	}
	// Normalize []any of strings to []string.
	if arr, ok := v.([]any); ok {
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			s, ok := e.(string)
			if !ok {
				return v, false, true
			}
			out = append(out, s)
		}
		return out, false, true
	}
	return v, false, true
}

// CleanJSON strips markdown code fences and any prose surrounding the first
// JSON object in text.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
