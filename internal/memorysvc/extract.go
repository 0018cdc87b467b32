package memorysvc

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/osaurus/memory-core/internal/memerr"
)

// EXTRACTION_PROMPT_ENTRY_LIMIT bounds how many existing active entries are
// stubbed into the extraction prompt.
const extractionPromptEntryLimit = 30

// extractedEntry is the wire shape of one entry in the extraction model's
// JSON response.
type extractedEntry struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

// extractedEntityRef is one element of the extraction response's optional
// "entities" array, used to upsert graph entities (§4.7 step 8).
type extractedEntityRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// extractedRelationship is one element of the extraction response's
// optional "relationships" array.
type extractedRelationship struct {
	Source     string  `json:"source"`
	Relation   string  `json:"relation"`
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
}

type extractionPayload struct {
	Entries       []extractedEntry         `json:"entries"`
	Entities      []extractedEntityRef     `json:"entities"`
	Relationships []extractedRelationship  `json:"relationships"`
}

// extractionResult bundles everything the extraction model returned for one
// conversation turn.
type extractionResult struct {
	Entries       []extractedEntry
	Entities      []extractedEntityRef
	Relationships []extractedRelationship
}

var fencedBlockRE = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseExtractionResponse implements spec §4.7 step 5: strict JSON first;
// on failure, the largest balanced `{...}` substring or fenced code block;
// then a lenient pass coercing string confidences to floats and string tags
// to single-element lists. Entities and relationships are best-effort: a
// response that omits them yields empty slices, never an error.
func parseExtractionResponse(raw string) (extractionResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return extractionResult{}, memerr.ErrExtractionEmpty
	}

	if p, err := strictParse(raw); err == nil {
		return p, nil
	}

	candidate := raw
	if m := fencedBlockRE.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else if b := largestBalancedBraces(raw); b != "" {
		candidate = b
	}

	if p, err := strictParse(candidate); err == nil {
		return p, nil
	}

	result, err := lenientParse(candidate)
	if err != nil {
		return extractionResult{}, &memerr.ParseError{Stage: "lenient", Err: err}
	}
	if len(result.Entries) == 0 {
		return extractionResult{}, memerr.ErrExtractionEmpty
	}
	return result, nil
}

func strictParse(s string) (extractionResult, error) {
	var p extractionPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return extractionResult{}, err
	}
	return extractionResult{Entries: p.Entries, Entities: p.Entities, Relationships: p.Relationships}, nil
}

// lenientParse retries with json5 (tolerant of trailing commas, unquoted
// keys), then coerces string-typed confidence and scalar-typed tags into
// their expected shapes field by field.
func lenientParse(s string) (extractionResult, error) {
	var raw struct {
		Entries       []map[string]any `json:"entries"`
		Entities      []map[string]any `json:"entities"`
		Relationships []map[string]any `json:"relationships"`
	}
	if err := json5.Unmarshal([]byte(s), &raw); err != nil {
		return extractionResult{}, fmt.Errorf("json5 parse failed: %w", err)
	}

	entries := make([]extractedEntry, 0, len(raw.Entries))
	for _, m := range raw.Entries {
		e := extractedEntry{
			Type:    stringField(m["type"]),
			Content: stringField(m["content"]),
		}
		e.Confidence = coerceConfidence(m["confidence"])
		e.Tags = coerceTags(m["tags"])
		if e.Content == "" {
			continue
		}
		entries = append(entries, e)
	}

	entities := make([]extractedEntityRef, 0, len(raw.Entities))
	for _, m := range raw.Entities {
		name := stringField(m["name"])
		if name == "" {
			continue
		}
		entities = append(entities, extractedEntityRef{Name: name, Type: stringField(m["type"])})
	}

	relationships := make([]extractedRelationship, 0, len(raw.Relationships))
	for _, m := range raw.Relationships {
		source, target := stringField(m["source"]), stringField(m["target"])
		if source == "" || target == "" {
			continue
		}
		relationships = append(relationships, extractedRelationship{
			Source:     source,
			Relation:   stringField(m["relation"]),
			Target:     target,
			Confidence: coerceConfidence(m["confidence"]),
		})
	}

	return extractionResult{Entries: entries, Entities: entities, Relationships: relationships}, nil
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

func coerceConfidence(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0.5
		}
		return f
	default:
		return 0.5
	}
}

func coerceTags(v any) []string {
	switch t := v.(type) {
	case []any:
		tags := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

// largestBalancedBraces returns the longest substring of s that starts at
// an opening '{' and ends at its matching closing '}'.
func largestBalancedBraces(s string) string {
	best := ""
outer:
	for start, ch := range s {
		if ch != '{' {
			continue
		}
		depth := 0
		for i := start; i < len(s); i++ {
			switch s[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					if i-start+1 > len(best) {
						best = s[start : i+1]
					}
					continue outer
				}
			}
		}
	}
	return best
}
