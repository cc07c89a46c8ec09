package models

import "time"

// FreePlanID identifies the plan every user falls back to when no paid
// subscription is active.
const FreePlanID = "free"

// Unlimited is the sentinel stored in numeric limits that have no cap.
const Unlimited = -1

// Plan is a static catalog entry. Plans are immutable at runtime and only
// written by the seeding command.
type Plan struct {
	ID                string    `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	MaxProjects       int       `json:"max_projects" yaml:"max_projects"`
	MaxQueries        int       `json:"max_queries" yaml:"max_queries"`
	FigmaIntegration  bool      `json:"figma_integration" yaml:"figma_integration"`
	MasterMode        bool      `json:"master_mode" yaml:"master_mode"`
	PrioritySupport   bool      `json:"priority_support" yaml:"priority_support"`
	AdvancedAnalytics bool      `json:"advanced_analytics" yaml:"advanced_analytics"`
	CustomBranding    bool      `json:"custom_branding" yaml:"custom_branding"`
	ExportToPDF       bool      `json:"export_to_pdf" yaml:"export_to_pdf"`
	PremiumAnalyzers  []string  `json:"premium_analyzers" yaml:"premium_analyzers"`
	AIModel           string    `json:"ai_model" yaml:"ai_model"`
	ExternalPriceID   *string   `json:"external_price_id,omitempty" yaml:"external_price_id,omitempty"`
	CreatedAt         time.Time `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"-"`
}

// Entitlements returns the plan defaults as an Entitlements value.
func (p Plan) Entitlements() Entitlements {
	analyzers := make([]string, len(p.PremiumAnalyzers))
	copy(analyzers, p.PremiumAnalyzers)

	return Entitlements{
		MaxProjects:       p.MaxProjects,
		MaxQueries:        p.MaxQueries,
		FigmaIntegration:  p.FigmaIntegration,
		MasterMode:        p.MasterMode,
		PrioritySupport:   p.PrioritySupport,
		AdvancedAnalytics: p.AdvancedAnalytics,
		CustomBranding:    p.CustomBranding,
		ExportToPDF:       p.ExportToPDF,
		PremiumAnalyzers:  analyzers,
		AIModel:           p.AIModel,
	}
}
