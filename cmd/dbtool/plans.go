package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PortNumber53/design-feedback/backend/internal/catalog"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/store"
)

var planFileFlag string

type planUpserter interface {
	UpsertPlan(ctx context.Context, p models.Plan) error
}

var seedPlansCmd = &cobra.Command{
	Use:   "seed-plans",
	Short: "Write the plan catalog to the plans table",
	Long: `Upserts every plan in the catalog. Without --file the built-in catalog
is used. Running servers pick up changes once their plan cache expires.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plans, err := loadPlans(planFileFlag)
		if err != nil {
			return err
		}
		st, err := store.New(db)
		if err != nil {
			return err
		}
		if err := seedPlans(cmd.Context(), st, plans); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d plans\n", len(plans))
		return nil
	},
}

func loadPlans(path string) ([]models.Plan, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func seedPlans(ctx context.Context, st planUpserter, plans []models.Plan) error {
	for _, p := range plans {
		if err := st.UpsertPlan(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	seedPlansCmd.Flags().StringVar(&planFileFlag, "file", "", "Path to a plans YAML file (default: built-in catalog)")
	rootCmd.AddCommand(seedPlansCmd)
}
