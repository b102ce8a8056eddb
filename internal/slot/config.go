package slot

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultModelsYAML []byte

// OutcomeConfig is one row of a slot paytable.
type OutcomeConfig struct {
	Key         string  `yaml:"key"`
	Label       string  `yaml:"label"`
	Probability float64 `yaml:"probability"`
	Multiplier  float64 `yaml:"multiplier"`
}

// ModelConfig describes one slot model before validation.
type ModelConfig struct {
	Name       string          `yaml:"name"`
	Volatility string          `yaml:"volatility"`
	Outcomes   []OutcomeConfig `yaml:"outcomes"`
}

type modelsFile struct {
	Models []ModelConfig `yaml:"models"`
}

// DefaultConfigs returns the built-in low, medium and high volatility models.
func DefaultConfigs() ([]ModelConfig, error) {
	return ParseConfigs(defaultModelsYAML)
}

// ParseConfigs decodes a YAML document with a top-level "models" list.
func ParseConfigs(data []byte) ([]ModelConfig, error) {
	var f modelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode slot models: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("%w: no models defined", ErrInvalidModel)
	}
	return f.Models, nil
}

// LoadConfigs reads slot models from path, or the built-in set when path is empty.
func LoadConfigs(path string) ([]ModelConfig, error) {
	if path == "" {
		return DefaultConfigs()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slot models %s: %w", path, err)
	}
	return ParseConfigs(data)
}
