package models

import (
	"encoding/json"
	"time"
)

// FeatureOverride patches one entitlement field for one user. There is at
// most one override per (user, feature); writes upsert.
type FeatureOverride struct {
	UserID    string          `json:"user_id"`
	Feature   Feature         `json:"feature"`
	Value     json.RawMessage `json:"value"`
	Reason    string          `json:"reason"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ActiveAt reports whether the override still applies at now.
func (o FeatureOverride) ActiveAt(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}
