package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// UpsertOverride creates or replaces the override for (user, feature).
func (s *Store) UpsertOverride(ctx context.Context, o models.FeatureOverride) error {
	if !o.Feature.Valid() {
		return fmt.Errorf("store: upsert override: unknown feature %q", o.Feature)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO feature_overrides (user_id, feature, value, reason, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, feature) DO UPDATE SET
	value = EXCLUDED.value,
	reason = EXCLUDED.reason,
	expires_at = EXCLUDED.expires_at,
	updated_at = now()`,
		o.UserID,
		string(o.Feature),
		string(o.Value),
		o.Reason,
		o.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert override: %w", err)
	}
	return nil
}

// ActiveOverrides returns the user's overrides that have not expired at now.
func (s *Store) ActiveOverrides(ctx context.Context, userID string, now time.Time) ([]models.FeatureOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, feature, value, reason, expires_at, created_at, updated_at
FROM feature_overrides
WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
ORDER BY feature`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("store: active overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.FeatureOverride
	for rows.Next() {
		var (
			o         models.FeatureOverride
			feature   string
			value     []byte
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&o.UserID, &feature, &value, &o.Reason, &expiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan override: %w", err)
		}
		o.Feature = models.Feature(feature)
		o.Value = value
		o.ExpiresAt = nullTimePtr(expiresAt)
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate overrides: %w", err)
	}
	return overrides, nil
}

// DeleteOverride removes an override. It reports whether a row existed.
func (s *Store) DeleteOverride(ctx context.Context, userID string, feature models.Feature) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feature_overrides WHERE user_id = $1 AND feature = $2`, userID, string(feature))
	if err != nil {
		return false, fmt.Errorf("store: delete override: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}
