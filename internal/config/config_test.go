package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultsMatchProductionPreset(t *testing.T) {
	r := Resolve(nil)
	if r.RecallTopK != 30 || r.MMRLambda != 0.7 || r.SummaryRetentionDays != 180 {
		t.Fatalf("unexpected defaults: %+v", r)
	}
	if r.Preset != "production" {
		t.Fatalf("expected production preset, got %q", r.Preset)
	}
}

func TestBenchmarkPresetOverlay(t *testing.T) {
	preset := "benchmark"
	r := Resolve(&Config{Preset: &preset})
	if r.RecallTopK != 50 || r.MMRLambda != 0.85 || r.SummaryRetentionDays != 0 {
		t.Fatalf("benchmark overlay not applied: %+v", r)
	}
}

func TestClampingOutOfRangeValues(t *testing.T) {
	bad := 999999
	negLambda := -5.0
	r := Resolve(&Config{
		SummaryDebounceSeconds: &bad,
		MMRLambda:              &negLambda,
	})
	if r.SummaryDebounceSeconds != 3600 {
		t.Fatalf("expected clamp to 3600, got %d", r.SummaryDebounceSeconds)
	}
	if r.MMRLambda != 0.7 {
		// production preset overlays mmrLambda unconditionally after clamp
		t.Fatalf("expected preset overlay 0.7, got %v", r.MMRLambda)
	}
}

func TestUnknownPresetFallsBackToProduction(t *testing.T) {
	weird := "nonexistent"
	r := Resolve(&Config{Preset: &weird})
	if r.Preset != "production" {
		t.Fatalf("expected fallback to production, got %q", r.Preset)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.RecallTopK != 30 {
		t.Fatalf("expected defaults for missing file, got %+v", r)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory-config.json")
	original := Resolve(nil)
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, original) {
		t.Fatalf("round trip mismatch: %+v vs %+v", original, loaded)
	}
}

func TestLoadYAMLOverrideLayeredBeneathJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "memory-config.yaml")
	jsonPath := filepath.Join(dir, "memory-config.json")

	if err := os.WriteFile(yamlPath, []byte("summaryDebounceSeconds: 45\nprofileMaxTokens: 500\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := os.WriteFile(jsonPath, []byte(`{"profileMaxTokens": 777}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}

	r, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.SummaryDebounceSeconds != 45 {
		t.Fatalf("expected yaml-only field to survive, got %d", r.SummaryDebounceSeconds)
	}
	if r.ProfileMaxTokens != 777 {
		t.Fatalf("expected json to overlay yaml, got %d", r.ProfileMaxTokens)
	}
}

func TestLoadYAMLOverrideAloneWithNoJSONFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "memory-config.yaml")
	if err := os.WriteFile(yamlPath, []byte("summaryDebounceSeconds: 90\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	r, err := Load(filepath.Join(dir, "memory-config.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.SummaryDebounceSeconds != 90 {
		t.Fatalf("expected yaml-only override, got %d", r.SummaryDebounceSeconds)
	}
}
