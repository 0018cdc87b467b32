// Package config loads, validates, and clamps the memory core's JSON
// configuration file, then overlays a named preset, following the layered
// defaults-then-override shape of the teacher's ResolvedConfig.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent is a host-configured agent namespace the core tracks memory for.
// Agents are never created through this service; the host supplies the
// roster via configuration, and the core only reports on it.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	DefaultModel string    `json:"defaultModel,omitempty"`
	IsBuiltIn    bool      `json:"isBuiltIn,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Config is the on-disk / wire representation of memory/memory-config.json.
// Every field is optional; missing fields fall back to Defaults() before
// clamping and preset overlay.
type Config struct {
	Enabled                             *bool    `json:"enabled,omitempty"`
	CoreModelProvider                   *string  `json:"coreModelProvider,omitempty"`
	CoreModelName                       *string  `json:"coreModelName,omitempty"`
	EmbeddingBackend                    *string  `json:"embeddingBackend,omitempty"`
	EmbeddingModel                      *string  `json:"embeddingModel,omitempty"`
	SummaryDebounceSeconds              *int     `json:"summaryDebounceSeconds,omitempty"`
	ProfileMaxTokens                    *int     `json:"profileMaxTokens,omitempty"`
	ProfileRegenerateThreshold          *int     `json:"profileRegenerateThreshold,omitempty"`
	WorkingMemoryBudgetTokens           *int     `json:"workingMemoryBudgetTokens,omitempty"`
	SummaryRetentionDays                *int     `json:"summaryRetentionDays,omitempty"`
	SummaryBudgetTokens                 *int     `json:"summaryBudgetTokens,omitempty"`
	ChunkBudgetTokens                   *int     `json:"chunkBudgetTokens,omitempty"`
	GraphBudgetTokens                   *int     `json:"graphBudgetTokens,omitempty"`
	RecallTopK                          *int     `json:"recallTopK,omitempty"`
	TemporalDecayHalfLifeDays           *int     `json:"temporalDecayHalfLifeDays,omitempty"`
	MMRLambda                           *float64 `json:"mmrLambda,omitempty"`
	MMRFetchMultiplier                  *float64 `json:"mmrFetchMultiplier,omitempty"`
	MaxEntriesPerAgent                  *int     `json:"maxEntriesPerAgent,omitempty"`
	VerificationEnabled                 *bool    `json:"verificationEnabled,omitempty"`
	VerificationSemanticDedupThreshold  *float64 `json:"verificationSemanticDedupThreshold,omitempty"`
	VerificationJaccardDedupThreshold   *float64 `json:"verificationJaccardDedupThreshold,omitempty"`
	PendingSignalRetentionDays          *int     `json:"pendingSignalRetentionDays,omitempty"`
	Preset                              *string  `json:"preset,omitempty"`
	Agents                              []Agent  `json:"agents,omitempty"`
}

// Resolved is the fully-defaulted, clamped, preset-overlaid configuration
// the rest of the memory core consumes. It is never partially populated.
type Resolved struct {
	Enabled                            bool
	CoreModelProvider                  string
	CoreModelName                      string
	EmbeddingBackend                   string
	EmbeddingModel                     string
	SummaryDebounceSeconds             int
	ProfileMaxTokens                   int
	ProfileRegenerateThreshold         int
	WorkingMemoryBudgetTokens          int
	SummaryRetentionDays               int
	SummaryBudgetTokens                int
	ChunkBudgetTokens                  int
	GraphBudgetTokens                  int
	RecallTopK                         int
	TemporalDecayHalfLifeDays          int
	MMRLambda                          float64
	MMRFetchMultiplier                 float64
	MaxEntriesPerAgent                 int
	VerificationEnabled                bool
	VerificationSemanticDedupThreshold float64
	VerificationJaccardDedupThreshold  float64
	PendingSignalRetentionDays         int
	Preset                             string
	Agents                             []Agent
}

// Defaults returns the documented default values before any file is read.
func Defaults() Resolved {
	return Resolved{
		Enabled:                            true,
		CoreModelProvider:                  "anthropic",
		CoreModelName:                      "claude-haiku-4-5",
		EmbeddingBackend:                   "mlx",
		EmbeddingModel:                     "nomic-embed-text-v1.5",
		SummaryDebounceSeconds:             60,
		ProfileMaxTokens:                   2000,
		ProfileRegenerateThreshold:         10,
		WorkingMemoryBudgetTokens:          3000,
		SummaryRetentionDays:               180,
		SummaryBudgetTokens:                2000,
		ChunkBudgetTokens:                  4000,
		GraphBudgetTokens:                  300,
		RecallTopK:                         30,
		TemporalDecayHalfLifeDays:          30,
		MMRLambda:                          0.7,
		MMRFetchMultiplier:                 2.0,
		MaxEntriesPerAgent:                 500,
		VerificationEnabled:                true,
		VerificationSemanticDedupThreshold: 0.85,
		VerificationJaccardDedupThreshold:  0.6,
		PendingSignalRetentionDays:         30,
		Preset:                             "production",
	}
}

type clampRange struct {
	min, max int
}

var intClamps = map[string]clampRange{
	"summaryDebounceSeconds":     {10, 3600},
	"profileMaxTokens":           {100, 50000},
	"profileRegenerateThreshold": {1, 100},
	"workingMemoryBudgetTokens":  {50, 10000},
	"summaryRetentionDays":       {0, 3650},
	"summaryBudgetTokens":        {50, 10000},
	"chunkBudgetTokens":          {50, 20000},
	"graphBudgetTokens":          {50, 5000},
	"recallTopK":                 {1, 100},
	"temporalDecayHalfLifeDays":  {1, 365},
	"maxEntriesPerAgent":         {0, 10000},
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// presetOverlay holds the fixed values a preset stamps in after clamping.
type presetOverlay struct {
	recallTopK                int
	mmrLambda                 float64
	mmrFetchMultiplier        float64
	workingMemoryBudgetTokens int
	summaryBudgetTokens       int
	chunkBudgetTokens         int
	graphBudgetTokens         int
	summaryRetentionDays      int
}

var presets = map[string]presetOverlay{
	"production": {
		recallTopK:                30,
		mmrLambda:                 0.7,
		mmrFetchMultiplier:        2.0,
		workingMemoryBudgetTokens: 3000,
		summaryBudgetTokens:       2000,
		chunkBudgetTokens:         4000,
		graphBudgetTokens:         300,
		summaryRetentionDays:      180,
	},
	"benchmark": {
		recallTopK:                50,
		mmrLambda:                 0.85,
		mmrFetchMultiplier:        3.0,
		workingMemoryBudgetTokens: 6000,
		summaryBudgetTokens:       4000,
		chunkBudgetTokens:         8000,
		graphBudgetTokens:         500,
		summaryRetentionDays:      0,
	},
}

// Resolve merges raw onto Defaults(), clamps every numeric field to its
// documented range, and overlays the named preset (falling back to
// "production" for an unrecognized preset name). It never returns an error:
// malformed or out-of-range input is coerced, never rejected, matching the
// spec's "all values clamped" contract.
func Resolve(raw *Config) Resolved {
	r := Defaults()
	if raw == nil {
		return overlayPreset(r)
	}

	if raw.Enabled != nil {
		r.Enabled = *raw.Enabled
	}
	if raw.CoreModelProvider != nil {
		r.CoreModelProvider = *raw.CoreModelProvider
	}
	if raw.CoreModelName != nil {
		r.CoreModelName = *raw.CoreModelName
	}
	if raw.EmbeddingBackend != nil {
		r.EmbeddingBackend = *raw.EmbeddingBackend
	}
	if raw.EmbeddingModel != nil {
		r.EmbeddingModel = *raw.EmbeddingModel
	}
	if raw.SummaryDebounceSeconds != nil {
		r.SummaryDebounceSeconds = *raw.SummaryDebounceSeconds
	}
	if raw.ProfileMaxTokens != nil {
		r.ProfileMaxTokens = *raw.ProfileMaxTokens
	}
	if raw.ProfileRegenerateThreshold != nil {
		r.ProfileRegenerateThreshold = *raw.ProfileRegenerateThreshold
	}
	if raw.WorkingMemoryBudgetTokens != nil {
		r.WorkingMemoryBudgetTokens = *raw.WorkingMemoryBudgetTokens
	}
	if raw.SummaryRetentionDays != nil {
		r.SummaryRetentionDays = *raw.SummaryRetentionDays
	}
	if raw.SummaryBudgetTokens != nil {
		r.SummaryBudgetTokens = *raw.SummaryBudgetTokens
	}
	if raw.ChunkBudgetTokens != nil {
		r.ChunkBudgetTokens = *raw.ChunkBudgetTokens
	}
	if raw.GraphBudgetTokens != nil {
		r.GraphBudgetTokens = *raw.GraphBudgetTokens
	}
	if raw.RecallTopK != nil {
		r.RecallTopK = *raw.RecallTopK
	}
	if raw.TemporalDecayHalfLifeDays != nil {
		r.TemporalDecayHalfLifeDays = *raw.TemporalDecayHalfLifeDays
	}
	if raw.MMRLambda != nil {
		r.MMRLambda = *raw.MMRLambda
	}
	if raw.MMRFetchMultiplier != nil {
		r.MMRFetchMultiplier = *raw.MMRFetchMultiplier
	}
	if raw.MaxEntriesPerAgent != nil {
		r.MaxEntriesPerAgent = *raw.MaxEntriesPerAgent
	}
	if raw.VerificationEnabled != nil {
		r.VerificationEnabled = *raw.VerificationEnabled
	}
	if raw.VerificationSemanticDedupThreshold != nil {
		r.VerificationSemanticDedupThreshold = *raw.VerificationSemanticDedupThreshold
	}
	if raw.VerificationJaccardDedupThreshold != nil {
		r.VerificationJaccardDedupThreshold = *raw.VerificationJaccardDedupThreshold
	}
	if raw.PendingSignalRetentionDays != nil {
		r.PendingSignalRetentionDays = *raw.PendingSignalRetentionDays
	}
	if raw.Preset != nil {
		r.Preset = *raw.Preset
	}
	if raw.Agents != nil {
		r.Agents = raw.Agents
	}

	r.SummaryDebounceSeconds = clampInt(r.SummaryDebounceSeconds, intClamps["summaryDebounceSeconds"].min, intClamps["summaryDebounceSeconds"].max)
	r.ProfileMaxTokens = clampInt(r.ProfileMaxTokens, intClamps["profileMaxTokens"].min, intClamps["profileMaxTokens"].max)
	r.ProfileRegenerateThreshold = clampInt(r.ProfileRegenerateThreshold, intClamps["profileRegenerateThreshold"].min, intClamps["profileRegenerateThreshold"].max)
	r.WorkingMemoryBudgetTokens = clampInt(r.WorkingMemoryBudgetTokens, intClamps["workingMemoryBudgetTokens"].min, intClamps["workingMemoryBudgetTokens"].max)
	r.SummaryRetentionDays = clampInt(r.SummaryRetentionDays, intClamps["summaryRetentionDays"].min, intClamps["summaryRetentionDays"].max)
	r.SummaryBudgetTokens = clampInt(r.SummaryBudgetTokens, intClamps["summaryBudgetTokens"].min, intClamps["summaryBudgetTokens"].max)
	r.ChunkBudgetTokens = clampInt(r.ChunkBudgetTokens, intClamps["chunkBudgetTokens"].min, intClamps["chunkBudgetTokens"].max)
	r.GraphBudgetTokens = clampInt(r.GraphBudgetTokens, intClamps["graphBudgetTokens"].min, intClamps["graphBudgetTokens"].max)
	r.RecallTopK = clampInt(r.RecallTopK, intClamps["recallTopK"].min, intClamps["recallTopK"].max)
	r.TemporalDecayHalfLifeDays = clampInt(r.TemporalDecayHalfLifeDays, intClamps["temporalDecayHalfLifeDays"].min, intClamps["temporalDecayHalfLifeDays"].max)
	r.MaxEntriesPerAgent = clampInt(r.MaxEntriesPerAgent, intClamps["maxEntriesPerAgent"].min, intClamps["maxEntriesPerAgent"].max)
	r.MMRLambda = clampFloat(r.MMRLambda, 0.0, 1.0)
	r.MMRFetchMultiplier = clampFloat(r.MMRFetchMultiplier, 1.0, 10.0)
	r.VerificationSemanticDedupThreshold = clampFloat(r.VerificationSemanticDedupThreshold, 0, 1)
	r.VerificationJaccardDedupThreshold = clampFloat(r.VerificationJaccardDedupThreshold, 0, 1)
	if r.PendingSignalRetentionDays < 0 {
		r.PendingSignalRetentionDays = 0
	}

	return overlayPreset(r)
}

func overlayPreset(r Resolved) Resolved {
	p, ok := presets[r.Preset]
	if !ok {
		r.Preset = "production"
		p = presets["production"]
	}
	r.RecallTopK = p.recallTopK
	r.MMRLambda = p.mmrLambda
	r.MMRFetchMultiplier = p.mmrFetchMultiplier
	r.WorkingMemoryBudgetTokens = p.workingMemoryBudgetTokens
	r.SummaryBudgetTokens = p.summaryBudgetTokens
	r.ChunkBudgetTokens = p.chunkBudgetTokens
	r.GraphBudgetTokens = p.graphBudgetTokens
	r.SummaryRetentionDays = p.summaryRetentionDays
	return r
}

// Load reads path as JSON into a Config and resolves it. Before reading the
// JSON file, it looks for a sibling memory-config.yaml in the same
// directory; any fields set there are used as a base that the JSON file's
// fields then overlay, letting a human-edited YAML override file coexist
// with the canonical JSON one. A missing JSON file resolves to Defaults()
// with the preset overlay applied, matching the teacher's tolerant-missing-
// file convention in pkg/cron/store.go. A present-but-malformed file also
// falls back to defaults rather than failing process startup; the caller is
// expected to log the parse error.
func Load(path string) (Resolved, error) {
	merged := &Config{}
	haveAny := false

	yamlPath := filepath.Join(filepath.Dir(path), "memory-config.yaml")
	if ydata, err := os.ReadFile(yamlPath); err == nil {
		var ym map[string]any
		if yerr := yaml.Unmarshal(ydata, &ym); yerr == nil {
			// Re-encode through JSON so the YAML keys match Config's json tags.
			var yc Config
			if jdata, jerr := json.Marshal(ym); jerr == nil && json.Unmarshal(jdata, &yc) == nil {
				mergeConfig(merged, &yc)
				haveAny = true
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if haveAny {
				return Resolve(merged), nil
			}
			return Resolve(nil), nil
		}
		return Resolve(nil), err
	}
	var raw Config
	if err := json.Unmarshal(data, &raw); err != nil {
		return Resolve(nil), err
	}
	mergeConfig(merged, &raw)
	return Resolve(merged), nil
}

// mergeConfig overlays every non-nil field of src onto dst in place.
func mergeConfig(dst, src *Config) {
	if src.Enabled != nil {
		dst.Enabled = src.Enabled
	}
	if src.CoreModelProvider != nil {
		dst.CoreModelProvider = src.CoreModelProvider
	}
	if src.CoreModelName != nil {
		dst.CoreModelName = src.CoreModelName
	}
	if src.EmbeddingBackend != nil {
		dst.EmbeddingBackend = src.EmbeddingBackend
	}
	if src.EmbeddingModel != nil {
		dst.EmbeddingModel = src.EmbeddingModel
	}
	if src.SummaryDebounceSeconds != nil {
		dst.SummaryDebounceSeconds = src.SummaryDebounceSeconds
	}
	if src.ProfileMaxTokens != nil {
		dst.ProfileMaxTokens = src.ProfileMaxTokens
	}
	if src.ProfileRegenerateThreshold != nil {
		dst.ProfileRegenerateThreshold = src.ProfileRegenerateThreshold
	}
	if src.WorkingMemoryBudgetTokens != nil {
		dst.WorkingMemoryBudgetTokens = src.WorkingMemoryBudgetTokens
	}
	if src.SummaryRetentionDays != nil {
		dst.SummaryRetentionDays = src.SummaryRetentionDays
	}
	if src.SummaryBudgetTokens != nil {
		dst.SummaryBudgetTokens = src.SummaryBudgetTokens
	}
	if src.ChunkBudgetTokens != nil {
		dst.ChunkBudgetTokens = src.ChunkBudgetTokens
	}
	if src.GraphBudgetTokens != nil {
		dst.GraphBudgetTokens = src.GraphBudgetTokens
	}
	if src.RecallTopK != nil {
		dst.RecallTopK = src.RecallTopK
	}
	if src.TemporalDecayHalfLifeDays != nil {
		dst.TemporalDecayHalfLifeDays = src.TemporalDecayHalfLifeDays
	}
	if src.MMRLambda != nil {
		dst.MMRLambda = src.MMRLambda
	}
	if src.MMRFetchMultiplier != nil {
		dst.MMRFetchMultiplier = src.MMRFetchMultiplier
	}
	if src.MaxEntriesPerAgent != nil {
		dst.MaxEntriesPerAgent = src.MaxEntriesPerAgent
	}
	if src.VerificationEnabled != nil {
		dst.VerificationEnabled = src.VerificationEnabled
	}
	if src.VerificationSemanticDedupThreshold != nil {
		dst.VerificationSemanticDedupThreshold = src.VerificationSemanticDedupThreshold
	}
	if src.VerificationJaccardDedupThreshold != nil {
		dst.VerificationJaccardDedupThreshold = src.VerificationJaccardDedupThreshold
	}
	if src.PendingSignalRetentionDays != nil {
		dst.PendingSignalRetentionDays = src.PendingSignalRetentionDays
	}
	if src.Preset != nil {
		dst.Preset = src.Preset
	}
	if src.Agents != nil {
		dst.Agents = src.Agents
	}
}

// Save pretty-prints the resolved configuration back to path with sorted
// keys. The struct is marshaled once and decoded into a generic map, which
// encoding/json then writes back out in sorted key order.
func Save(path string, r Resolved) error {
	flat, err := json.Marshal(toConfig(r))
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(flat, &m); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func toConfig(r Resolved) Config {
	b := func(v bool) *bool { return &v }
	s := func(v string) *string { return &v }
	i := func(v int) *int { return &v }
	f := func(v float64) *float64 { return &v }
	return Config{
		Enabled:                            b(r.Enabled),
		CoreModelProvider:                  s(r.CoreModelProvider),
		CoreModelName:                      s(r.CoreModelName),
		EmbeddingBackend:                   s(r.EmbeddingBackend),
		EmbeddingModel:                     s(r.EmbeddingModel),
		SummaryDebounceSeconds:             i(r.SummaryDebounceSeconds),
		ProfileMaxTokens:                   i(r.ProfileMaxTokens),
		ProfileRegenerateThreshold:         i(r.ProfileRegenerateThreshold),
		WorkingMemoryBudgetTokens:          i(r.WorkingMemoryBudgetTokens),
		SummaryRetentionDays:               i(r.SummaryRetentionDays),
		SummaryBudgetTokens:                i(r.SummaryBudgetTokens),
		ChunkBudgetTokens:                  i(r.ChunkBudgetTokens),
		GraphBudgetTokens:                  i(r.GraphBudgetTokens),
		RecallTopK:                         i(r.RecallTopK),
		TemporalDecayHalfLifeDays:          i(r.TemporalDecayHalfLifeDays),
		MMRLambda:                          f(r.MMRLambda),
		MMRFetchMultiplier:                 f(r.MMRFetchMultiplier),
		MaxEntriesPerAgent:                 i(r.MaxEntriesPerAgent),
		VerificationEnabled:                b(r.VerificationEnabled),
		VerificationSemanticDedupThreshold: f(r.VerificationSemanticDedupThreshold),
		VerificationJaccardDedupThreshold:  f(r.VerificationJaccardDedupThreshold),
		PendingSignalRetentionDays:         i(r.PendingSignalRetentionDays),
		Preset:                             s(r.Preset),
		Agents:                             r.Agents,
	}
}

// CharsPerToken is the heuristic the ContextAssembler uses to convert a
// token budget into a character budget when no tokenizer is in play.
const CharsPerToken = 4
