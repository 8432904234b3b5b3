package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecmigrate/model"
)

// RunConfig is the optional YAML file carrying the per-run settings that
// are too structured for flags, primarily filter derivation:
//
//	id_column: id
//	crowding_column: user_id
//	filters:
//	  - namespace: color
//	    allow_columns: [color]
//	    deny_columns: [banned_color]
//	numeric_filters:
//	  - namespace: price
//	    data_type: float
//	    source_column: price
type RunConfig struct {
	IDColumn       string                      `yaml:"id_column"`
	CrowdingColumn string                      `yaml:"crowding_column"`
	Filters        []model.NamespaceFilterSpec `yaml:"filters"`
	NumericFilters []model.NumericFilterSpec   `yaml:"numeric_filters"`
}

// loadRunConfig reads and validates a RunConfig. An empty path yields an
// empty config.
func loadRunConfig(path string) (*RunConfig, error) {
	cfg := &RunConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}

	if err := model.ValidateFilterSpecs(cfg.Filters, cfg.NumericFilters); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
