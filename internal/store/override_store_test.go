package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

func TestUpsertOverride(t *testing.T) {
	s, mock := newMockStore(t)
	expires := fixedNow.AddDate(0, 1, 0)
	mock.ExpectExec(`INSERT INTO feature_overrides`).
		WithArgs("u1", "maxProjects", "50", "beta partner", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertOverride(context.Background(), models.FeatureOverride{
		UserID:    "u1",
		Feature:   models.FeatureMaxProjects,
		Value:     json.RawMessage("50"),
		Reason:    "beta partner",
		ExpiresAt: &expires,
	})
	require.NoError(t, err)
}

func TestUpsertOverrideRejectsUnknownFeature(t *testing.T) {
	s, _ := newMockStore(t)
	err := s.UpsertOverride(context.Background(), models.FeatureOverride{UserID: "u1", Feature: "teleport", Value: json.RawMessage("true")})
	assert.Error(t, err)
}

func TestActiveOverrides(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"user_id", "feature", "value", "reason", "expires_at", "created_at", "updated_at"}).
		AddRow("u1", "figmaIntegration", []byte("true"), "trial", nil, fixedNow, fixedNow)
	mock.ExpectQuery(`FROM feature_overrides\s+WHERE user_id = \$1 AND \(expires_at IS NULL OR expires_at > \$2\)`).
		WithArgs("u1", fixedNow).
		WillReturnRows(rows)

	overrides, err := s.ActiveOverrides(context.Background(), "u1", fixedNow)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, models.FeatureFigmaIntegration, overrides[0].Feature)
	assert.JSONEq(t, "true", string(overrides[0].Value))
	assert.Nil(t, overrides[0].ExpiresAt)
	assert.True(t, overrides[0].ActiveAt(fixedNow))
}

func TestDeleteOverrideReportsMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM feature_overrides`).WithArgs("u1", "masterMode").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := s.DeleteOverride(context.Background(), "u1", models.FeatureMasterMode)
	require.NoError(t, err)
	assert.False(t, deleted)
}
