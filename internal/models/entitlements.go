package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Feature names one field of the Entitlements shape. The set is closed.
type Feature string

const (
	FeatureMaxProjects       Feature = "maxProjects"
	FeatureMaxQueries        Feature = "maxQueries"
	FeatureFigmaIntegration  Feature = "figmaIntegration"
	FeatureMasterMode        Feature = "masterMode"
	FeaturePrioritySupport   Feature = "prioritySupport"
	FeatureAdvancedAnalytics Feature = "advancedAnalytics"
	FeatureCustomBranding    Feature = "customBranding"
	FeatureExportToPDF       Feature = "exportToPDF"
	FeaturePremiumAnalyzers  Feature = "premiumAnalyzers"
	FeatureAIModel           Feature = "aiModel"
)

// Features lists every valid feature key.
var Features = []Feature{
	FeatureMaxProjects,
	FeatureMaxQueries,
	FeatureFigmaIntegration,
	FeatureMasterMode,
	FeaturePrioritySupport,
	FeatureAdvancedAnalytics,
	FeatureCustomBranding,
	FeatureExportToPDF,
	FeaturePremiumAnalyzers,
	FeatureAIModel,
}

// ParseFeature validates a feature key.
func ParseFeature(raw string) (Feature, error) {
	f := Feature(raw)
	if !f.Valid() {
		return "", fmt.Errorf("unknown feature %q", raw)
	}
	return f, nil
}

// Valid reports whether f is one of the known feature keys.
func (f Feature) Valid() bool {
	for _, known := range Features {
		if f == known {
			return true
		}
	}
	return false
}

// IsLimit reports whether f is a numeric limit supporting the Unlimited sentinel.
func (f Feature) IsLimit() bool {
	return f == FeatureMaxProjects || f == FeatureMaxQueries
}

// Entitlements is the resolved set of limits and flags for a user at a point
// in time. It is derived and never stored.
type Entitlements struct {
	MaxProjects       int      `json:"maxProjects"`
	MaxQueries        int      `json:"maxQueries"`
	FigmaIntegration  bool     `json:"figmaIntegration"`
	MasterMode        bool     `json:"masterMode"`
	PrioritySupport   bool     `json:"prioritySupport"`
	AdvancedAnalytics bool     `json:"advancedAnalytics"`
	CustomBranding    bool     `json:"customBranding"`
	ExportToPDF       bool     `json:"exportToPDF"`
	PremiumAnalyzers  []string `json:"premiumAnalyzers"`
	AIModel           string   `json:"aiModel"`
}

// FreeTierDefaults are the built-in entitlements used when a user has no
// active subscription or the free plan row cannot be read.
func FreeTierDefaults() Entitlements {
	return Entitlements{
		MaxProjects:      3,
		MaxQueries:       10,
		PremiumAnalyzers: []string{},
		AIModel:          "basic",
	}
}

// Apply replaces a single field with an override payload. The payload type
// must match the field: a number for limits, a bool for flags, a list of
// strings for premiumAnalyzers and a string for aiModel. A null payload is
// rejected since it would decode to the zero value.
func (e *Entitlements) Apply(feature Feature, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("override %s: value must not be null", feature)
	}
	switch feature {
	case FeatureMaxProjects, FeatureMaxQueries:
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("override %s: expected integer: %w", feature, err)
		}
		if v < Unlimited {
			return fmt.Errorf("override %s: limit %d below %d", feature, v, Unlimited)
		}
		if feature == FeatureMaxProjects {
			e.MaxProjects = v
		} else {
			e.MaxQueries = v
		}
	case FeatureFigmaIntegration, FeatureMasterMode, FeaturePrioritySupport,
		FeatureAdvancedAnalytics, FeatureCustomBranding, FeatureExportToPDF:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("override %s: expected boolean: %w", feature, err)
		}
		*e.flag(feature) = v
	case FeaturePremiumAnalyzers:
		var v []string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("override %s: expected list of strings: %w", feature, err)
		}
		if v == nil {
			v = []string{}
		}
		e.PremiumAnalyzers = v
	case FeatureAIModel:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("override %s: expected string: %w", feature, err)
		}
		e.AIModel = v
	default:
		return fmt.Errorf("unknown feature %q", feature)
	}
	return nil
}

// Enabled reports whether the feature is usable at all under these
// entitlements. Limits count as enabled unless they are zero.
func (e Entitlements) Enabled(feature Feature) bool {
	switch feature {
	case FeatureMaxProjects:
		return e.MaxProjects != 0
	case FeatureMaxQueries:
		return e.MaxQueries != 0
	case FeaturePremiumAnalyzers:
		return len(e.PremiumAnalyzers) > 0
	case FeatureAIModel:
		return e.AIModel != "" && e.AIModel != "none"
	}
	if p := e.flag(feature); p != nil {
		return *p
	}
	return false
}

func (e *Entitlements) flag(feature Feature) *bool {
	switch feature {
	case FeatureFigmaIntegration:
		return &e.FigmaIntegration
	case FeatureMasterMode:
		return &e.MasterMode
	case FeaturePrioritySupport:
		return &e.PrioritySupport
	case FeatureAdvancedAnalytics:
		return &e.AdvancedAnalytics
	case FeatureCustomBranding:
		return &e.CustomBranding
	case FeatureExportToPDF:
		return &e.ExportToPDF
	}
	return nil
}
