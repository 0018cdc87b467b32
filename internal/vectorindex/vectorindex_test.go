package vectorindex

import "testing"

func TestDocumentIDIdempotent(t *testing.T) {
	a := DocumentID("entry", "abc-123")
	b := DocumentID("entry", "abc-123")
	if a != b {
		t.Fatalf("expected deterministic id, got %v vs %v", a, b)
	}
	c := DocumentID("chunk", "abc-123")
	if a == c {
		t.Fatal("different source types must not collide")
	}
}

func TestUpsertIdempotentByID(t *testing.T) {
	ix := New()
	id := DocumentID("entry", "e1")
	ix.Upsert(id, []float64{1, 0, 0})
	ix.Upsert(id, []float64{1, 0, 0})
	if ix.Len() != 1 {
		t.Fatalf("expected single entry after repeated upsert, got %d", ix.Len())
	}
}

func TestSearchTopKOrdering(t *testing.T) {
	ix := New()
	ix.Upsert(DocumentID("entry", "close"), []float64{1, 0})
	ix.Upsert(DocumentID("entry", "far"), []float64{0, 1})
	ix.Upsert(DocumentID("entry", "mid"), []float64{0.7, 0.7})

	results := ix.Search([]float64{1, 0}, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != DocumentID("entry", "close") {
		t.Fatalf("expected closest vector first, got %v", results[0].ID)
	}
	if results[0].Score < results[1].Score {
		t.Fatal("expected descending score order")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	ix := New()
	id := DocumentID("entry", "e1")
	ix.Upsert(id, []float64{1, 0})
	ix.Remove(id)
	ix.Remove(id)
	if ix.Len() != 0 {
		t.Fatalf("expected empty index, got %d", ix.Len())
	}
}
