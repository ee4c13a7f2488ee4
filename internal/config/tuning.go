package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the retrieval and text-processing knobs. It is loaded once,
// treated as immutable, and threaded through constructors so tests can vary
// thresholds per case.
type Tuning struct {
	Fusion    FusionTuning    `yaml:"fusion"`
	Boosts    BoostTuning     `yaml:"boosts"`
	Validator ValidatorTuning `yaml:"validator"`
	Chunker   ChunkerTuning   `yaml:"chunker"`
	Cache     CacheTuning     `yaml:"cache"`
	Golden    GoldenTuning    `yaml:"golden"`
}

type FusionTuning struct {
	K       int                `yaml:"k"`
	Weights map[string]float64 `yaml:"weights"`
}

type BoostTuning struct {
	Sources map[string]float64 `yaml:"sources"`
	Types   map[string]float64 `yaml:"types"`
}

type ValidatorTuning struct {
	MinLength        int      `yaml:"min_length"`
	BoilerplateRatio float64  `yaml:"boilerplate_ratio"`
	AlnumRatio       float64  `yaml:"alnum_ratio"`
	Patterns         []string `yaml:"patterns"`
}

type ChunkerTuning struct {
	TokenBudget     int      `yaml:"token_budget"`
	OverlapFraction float64  `yaml:"overlap_fraction"`
	CharsPerToken   float64  `yaml:"chars_per_token"`
	MinQuality      float64  `yaml:"min_quality"`
	Abbreviations   []string `yaml:"abbreviations"`
}

type CacheTuning struct {
	SimilarityFloor float64 `yaml:"similarity_floor"`
	MaxAgeHours     int     `yaml:"max_age_hours"`
}

type GoldenTuning struct {
	SimilarityFloor  float64 `yaml:"similarity_floor"`
	AutoPublishScore float64 `yaml:"auto_publish_score"`
	ReviewFloor      float64 `yaml:"review_floor"`
}

// DefaultTuning is the baseline for the Italian regulatory corpus.
func DefaultTuning() Tuning {
	return Tuning{
		Fusion: FusionTuning{
			K: 60,
			Weights: map[string]float64{
				"lexical":      0.30,
				"vector":       0.35,
				"hypothetical": 0.25,
				"authority":    0.20,
				"web":          0.30,
			},
		},
		Boosts: BoostTuning{
			Sources: map[string]float64{
				"gazzetta_ufficiale": 1.30,
				"agenzia_entrate":    1.20,
				"inps":               1.10,
			},
			Types: map[string]float64{
				string(TypeStatuteKey):  1.25,
				string(TypeRulingKey):   1.15,
				string(TypeCircularKey): 1.08,
				string(TypeGuideKey):    1.00,
			},
		},
		Validator: ValidatorTuning{
			MinLength:        200,
			BoilerplateRatio: 0.40,
			AlnumRatio:       0.45,
			Patterns: []string{
				"cookie", "accetta tutti", "informativa privacy", "menu",
				"vai al contenuto", "seguici su", "iscriviti alla newsletter",
				"javascript", "tutti i diritti riservati", "mappa del sito",
			},
		},
		Chunker: ChunkerTuning{
			TokenBudget:     450,
			OverlapFraction: 0.12,
			CharsPerToken:   3.5,
			MinQuality:      0.5,
			Abbreviations: []string{
				"art", "artt", "c.c", "c.p", "c.p.c", "d.l", "d.lgs", "d.m",
				"d.p.r", "dott", "e.g", "ecc", "lett", "n", "on", "pag", "par",
				"prof", "sig", "ss", "v",
			},
		},
		Cache: CacheTuning{
			SimilarityFloor: 0.95,
			MaxAgeHours:     72,
		},
		Golden: GoldenTuning{
			SimilarityFloor:  0.90,
			AutoPublishScore: 0.85,
			ReviewFloor:      0.50,
		},
	}
}

// Type keys kept as locals to avoid importing domain from config.
const (
	TypeStatuteKey  = "statute"
	TypeRulingKey   = "ruling"
	TypeCircularKey = "circular"
	TypeGuideKey    = "guide"
)

// LoadTuning returns defaults overlaid with the YAML file at path, if any.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &tuning); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning yaml: %w", err)
	}
	return tuning.normalize(), nil
}

func (t Tuning) normalize() Tuning {
	def := DefaultTuning()
	if t.Fusion.K <= 0 {
		t.Fusion.K = def.Fusion.K
	}
	// a partial weights map gets the defaults merged in, so listing one
	// source never hands every other source an implicit weight
	if t.Fusion.Weights == nil {
		t.Fusion.Weights = make(map[string]float64, len(def.Fusion.Weights))
	}
	for source, weight := range def.Fusion.Weights {
		if _, ok := t.Fusion.Weights[source]; !ok {
			t.Fusion.Weights[source] = weight
		}
	}
	if len(t.Boosts.Sources) == 0 {
		t.Boosts.Sources = def.Boosts.Sources
	}
	if len(t.Boosts.Types) == 0 {
		t.Boosts.Types = def.Boosts.Types
	}
	if t.Validator.MinLength <= 0 {
		t.Validator.MinLength = def.Validator.MinLength
	}
	if t.Validator.BoilerplateRatio <= 0 || t.Validator.BoilerplateRatio > 1 {
		t.Validator.BoilerplateRatio = def.Validator.BoilerplateRatio
	}
	if t.Validator.AlnumRatio <= 0 || t.Validator.AlnumRatio > 1 {
		t.Validator.AlnumRatio = def.Validator.AlnumRatio
	}
	if len(t.Validator.Patterns) == 0 {
		t.Validator.Patterns = def.Validator.Patterns
	}
	if t.Chunker.TokenBudget <= 0 {
		t.Chunker.TokenBudget = def.Chunker.TokenBudget
	}
	if t.Chunker.OverlapFraction < 0 || t.Chunker.OverlapFraction >= 1 {
		t.Chunker.OverlapFraction = def.Chunker.OverlapFraction
	}
	if t.Chunker.CharsPerToken <= 0 {
		t.Chunker.CharsPerToken = def.Chunker.CharsPerToken
	}
	if t.Chunker.MinQuality <= 0 {
		t.Chunker.MinQuality = def.Chunker.MinQuality
	}
	if len(t.Chunker.Abbreviations) == 0 {
		t.Chunker.Abbreviations = def.Chunker.Abbreviations
	}
	if t.Cache.SimilarityFloor <= 0 || t.Cache.SimilarityFloor > 1 {
		t.Cache.SimilarityFloor = def.Cache.SimilarityFloor
	}
	if t.Cache.MaxAgeHours <= 0 {
		t.Cache.MaxAgeHours = def.Cache.MaxAgeHours
	}
	if t.Golden.SimilarityFloor <= 0 || t.Golden.SimilarityFloor > 1 {
		t.Golden.SimilarityFloor = def.Golden.SimilarityFloor
	}
	if t.Golden.AutoPublishScore <= 0 {
		t.Golden.AutoPublishScore = def.Golden.AutoPublishScore
	}
	if t.Golden.ReviewFloor <= 0 {
		t.Golden.ReviewFloor = def.Golden.ReviewFloor
	}
	return t
}
