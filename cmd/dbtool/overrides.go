package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/store"
)

var (
	overrideReasonFlag  string
	overrideExpiresFlag string
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage per-user entitlement overrides",
}

var overrideSetCmd = &cobra.Command{
	Use:   "set <user> <feature> <json-value>",
	Short: "Create or replace an override",
	Long: `Sets one entitlement field for one user.

Examples:
  dbtool override set user_123 maxProjects 50 --reason "beta partner" --expires 720h
  dbtool override set user_123 figmaIntegration true --expires 2027-01-01T00:00:00Z
  dbtool override set user_123 premiumAnalyzers '["accessibility"]'
`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := buildOverride(args[0], args[1], args[2], overrideReasonFlag, overrideExpiresFlag, time.Now())
		if err != nil {
			return err
		}
		st, err := store.New(db)
		if err != nil {
			return err
		}
		if err := st.UpsertOverride(cmd.Context(), o); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "override %s set for %s\n", o.Feature, o.UserID)
		return nil
	},
}

var overrideClearCmd = &cobra.Command{
	Use:   "clear <user> <feature>",
	Short: "Remove an override",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		feature, err := models.ParseFeature(args[1])
		if err != nil {
			return err
		}
		st, err := store.New(db)
		if err != nil {
			return err
		}
		return clearOverride(cmd, st, args[0], feature)
	},
}

type overrideDeleter interface {
	DeleteOverride(ctx context.Context, userID string, feature models.Feature) (bool, error)
}

func clearOverride(cmd *cobra.Command, st overrideDeleter, userID string, feature models.Feature) error {
	deleted, err := st.DeleteOverride(cmd.Context(), userID, feature)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("no %s override for %s", feature, userID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "override %s cleared for %s\n", feature, userID)
	return nil
}

// buildOverride validates CLI input the same way the admin API does. expires
// is either empty, an RFC 3339 timestamp or a duration from now.
func buildOverride(userID, rawFeature, rawValue, reason, expires string, now time.Time) (models.FeatureOverride, error) {
	if strings.TrimSpace(userID) == "" {
		return models.FeatureOverride{}, fmt.Errorf("user id is required")
	}
	feature, err := models.ParseFeature(rawFeature)
	if err != nil {
		return models.FeatureOverride{}, err
	}

	value := json.RawMessage(rawValue)
	if !json.Valid(value) {
		return models.FeatureOverride{}, fmt.Errorf("value must be JSON, got %q", rawValue)
	}
	check := models.FreeTierDefaults()
	if err := check.Apply(feature, value); err != nil {
		return models.FeatureOverride{}, err
	}

	o := models.FeatureOverride{UserID: userID, Feature: feature, Value: value, Reason: reason}
	if expires != "" {
		at, err := parseExpiry(expires, now)
		if err != nil {
			return models.FeatureOverride{}, err
		}
		if !at.After(now) {
			return models.FeatureOverride{}, fmt.Errorf("expiry %s is not in the future", at.Format(time.RFC3339))
		}
		o.ExpiresAt = &at
	}
	return o, nil
}

func parseExpiry(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --expires %q: want RFC 3339 time or duration", raw)
	}
	return now.Add(d).UTC(), nil
}

func init() {
	overrideSetCmd.Flags().StringVar(&overrideReasonFlag, "reason", "", "Why the override exists")
	overrideSetCmd.Flags().StringVar(&overrideExpiresFlag, "expires", "", "Expiry as RFC 3339 time or duration from now (default: never)")
	overrideCmd.AddCommand(overrideSetCmd, overrideClearCmd)
	rootCmd.AddCommand(overrideCmd)
}
