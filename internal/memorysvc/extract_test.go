package memorysvc

import "testing"

func TestParseExtractionResponseStrictJSON(t *testing.T) {
	raw := `{"entries":[{"type":"fact","content":"Terence lives in Irvine","confidence":0.9,"tags":["location"]}]}`
	result, err := parseExtractionResponse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Content != "Terence lives in Irvine" {
		t.Fatalf("unexpected entries: %+v", result.Entries)
	}
}

func TestParseExtractionResponseFencedBlock(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"entries\":[{\"type\":\"fact\",\"content\":\"x\",\"confidence\":0.5,\"tags\":[]}]}\n```\nLet me know if you need anything else."
	result, err := parseExtractionResponse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(result.Entries))
	}
}

func TestParseExtractionResponseLenientCoercion(t *testing.T) {
	raw := `{"entries":[{"type":"fact","content":"y","confidence":"0.8","tags":"solo-tag"}]}`
	result, err := parseExtractionResponse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(result.Entries))
	}
	if result.Entries[0].Confidence != 0.8 {
		t.Fatalf("expected coerced confidence 0.8, got %v", result.Entries[0].Confidence)
	}
	if len(result.Entries[0].Tags) != 1 || result.Entries[0].Tags[0] != "solo-tag" {
		t.Fatalf("expected single-element tag list, got %+v", result.Entries[0].Tags)
	}
}

func TestParseExtractionResponseEmptyIsExtractionEmpty(t *testing.T) {
	_, err := parseExtractionResponse("")
	if err == nil {
		t.Fatal("expected an error for empty response")
	}
}

func TestParseExtractionResponseEntitiesAndRelationships(t *testing.T) {
	raw := `{"entries":[{"type":"relationship","content":"Terence works at Acme","confidence":0.8,"tags":[]}],` +
		`"entities":[{"name":"Terence","type":"person"},{"name":"Acme","type":"company"}],` +
		`"relationships":[{"source":"Terence","relation":"works_at","target":"Acme","confidence":0.8}]}`
	result, err := parseExtractionResponse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(result.Entities))
	}
	if len(result.Relationships) != 1 || result.Relationships[0].Relation != "works_at" {
		t.Fatalf("unexpected relationships: %+v", result.Relationships)
	}
}

func TestLargestBalancedBracesPicksOuterObject(t *testing.T) {
	s := `noise {"a": {"b": 1}} trailing`
	got := largestBalancedBraces(s)
	if got != `{"a": {"b": 1}}` {
		t.Fatalf("unexpected extraction: %q", got)
	}
}
