package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SodiumBank/Datum/pkg/profiles"
)

// industryProfileFile mirrors profiles.IndustryProfile's JSON shape in
// YAML, authored as one fixture file per industry code.
type industryProfileFile struct {
	IndustryID        string   `yaml:"industry_id"`
	DefaultPacks      []string `yaml:"default_packs"`
	RiskPosture       string   `yaml:"risk_posture"`
	TraceabilityDepth string   `yaml:"traceability_depth"`
	EvidenceRetention int      `yaml:"evidence_retention"`
}

// LoadIndustryProfile loads a single industry_<code>.yaml fixture from
// profilesDir.
func LoadIndustryProfile(profilesDir, code string) (*profiles.IndustryProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("industry_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load industry profile %q: %w", code, err)
	}

	var f industryProfileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse industry profile %q: %w", code, err)
	}
	if f.IndustryID == "" {
		f.IndustryID = code
	}

	return &profiles.IndustryProfile{
		IndustryID:        f.IndustryID,
		DefaultPacks:      f.DefaultPacks,
		RiskPosture:       f.RiskPosture,
		TraceabilityDepth: f.TraceabilityDepth,
		EvidenceRetention: f.EvidenceRetention,
	}, nil
}

// LoadAllIndustryProfiles loads every industry_*.yaml fixture from
// profilesDir.
func LoadAllIndustryProfiles(profilesDir string) (map[string]*profiles.IndustryProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "industry_*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("config: glob industry profiles: %w", err)
	}

	out := make(map[string]*profiles.IndustryProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		var f industryProfileFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if f.IndustryID == "" {
			base := filepath.Base(path)
			f.IndustryID = strings.TrimSuffix(strings.TrimPrefix(base, "industry_"), ".yaml")
		}
		out[f.IndustryID] = &profiles.IndustryProfile{
			IndustryID:        f.IndustryID,
			DefaultPacks:      f.DefaultPacks,
			RiskPosture:       f.RiskPosture,
			TraceabilityDepth: f.TraceabilityDepth,
			EvidenceRetention: f.EvidenceRetention,
		}
	}
	return out, nil
}
