package pipeline

import (
	"testing"

	"github.com/rowforge/ingest/internal/model"
	"gopkg.in/yaml.v3"
)

// yamlMappingConfig mirrors model.MappingConfig with yaml tags, for loading
// hand-written fixture files describing a mapping the way an operator would
// check one into version control alongside a recurring import job.
type yamlMappingConfig struct {
	TableName      string            `yaml:"table_name"`
	Mappings       map[string]string `yaml:"mappings"`
	DuplicateCheck struct {
		Enabled           bool     `yaml:"enabled"`
		CheckFileLevel    bool     `yaml:"check_file_level"`
		UniquenessColumns []string `yaml:"uniqueness_columns"`
	} `yaml:"duplicate_check"`
}

func (y yamlMappingConfig) toMappingConfig() model.MappingConfig {
	return model.MappingConfig{
		TableName: y.TableName,
		Mappings:  y.Mappings,
		DuplicateCheck: model.DuplicateCheck{
			Enabled:           y.DuplicateCheck.Enabled,
			CheckFileLevel:    y.DuplicateCheck.CheckFileLevel,
			UniquenessColumns: y.DuplicateCheck.UniquenessColumns,
		},
	}
}

const customerImportFixture = `
table_name: customers
mappings:
  full_name: name
  email_address: email
duplicate_check:
  enabled: true
  check_file_level: true
  uniqueness_columns:
    - email_address
`

func TestMappingConfigLoadsFromYAMLFixture(t *testing.T) {
	var raw yamlMappingConfig
	if err := yaml.Unmarshal([]byte(customerImportFixture), &raw); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	cfg := raw.toMappingConfig()
	if cfg.TableName != "customers" {
		t.Fatalf("expected table_name customers, got %q", cfg.TableName)
	}
	if got := cfg.SourceColumn("full_name"); got != "name" {
		t.Fatalf("expected full_name to map from name, got %q", got)
	}
	if !cfg.DuplicateCheck.Enabled || !cfg.DuplicateCheck.CheckFileLevel {
		t.Fatalf("expected duplicate_check.enabled and check_file_level to be true")
	}
	if len(cfg.DuplicateCheck.UniquenessColumns) != 1 || cfg.DuplicateCheck.UniquenessColumns[0] != "email_address" {
		t.Fatalf("unexpected uniqueness_columns: %v", cfg.DuplicateCheck.UniquenessColumns)
	}
}

func TestMappingConfigYAMLFixtureRejectsMalformedInput(t *testing.T) {
	var raw yamlMappingConfig
	err := yaml.Unmarshal([]byte("table_name: [not, a, scalar]"), &raw)
	if err == nil {
		t.Fatal("expected a type error unmarshaling a sequence into a string field")
	}
}
