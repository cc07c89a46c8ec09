// Package catalog loads the plan catalog written to the plans table by the
// seeding command.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

//go:embed plans.yaml
var defaultCatalog []byte

type file struct {
	Plans []models.Plan `yaml:"plans"`
}

// Default returns the embedded catalog.
func Default() ([]models.Plan, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a catalog from path.
func LoadFile(path string) ([]models.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a YAML catalog. The free plan must be present.
func Load(r io.Reader) ([]models.Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc file
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog: empty document")
		}
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	seen := make(map[string]bool, len(doc.Plans))
	for i := range doc.Plans {
		p := &doc.Plans[i]
		if err := validate(*p); err != nil {
			return nil, fmt.Errorf("catalog: plan %d: %w", i, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("catalog: duplicate plan id %q", p.ID)
		}
		seen[p.ID] = true
		if p.PremiumAnalyzers == nil {
			p.PremiumAnalyzers = []string{}
		}
	}
	if !seen[models.FreePlanID] {
		return nil, fmt.Errorf("catalog: plan %q is required", models.FreePlanID)
	}
	return doc.Plans, nil
}

func validate(p models.Plan) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%s: name is required", p.ID)
	}
	if p.MaxProjects < models.Unlimited || p.MaxQueries < models.Unlimited {
		return fmt.Errorf("%s: limits must be >= %d", p.ID, models.Unlimited)
	}
	if p.AIModel == "" {
		return fmt.Errorf("%s: ai_model is required", p.ID)
	}
	if p.ID == models.FreePlanID && p.ExternalPriceID != nil {
		return fmt.Errorf("%s: the free plan cannot have a price", p.ID)
	}
	return nil
}
