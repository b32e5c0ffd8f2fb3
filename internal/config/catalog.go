package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultModel is the only model the shared server credential may use.
const DefaultModel = "black-forest-labs/FLUX.1-schnell-Free"

// ModelSpec describes one selectable image model.
type ModelSpec struct {
	Name         string `yaml:"name" json:"name"`
	DefaultSteps int    `yaml:"default_steps" json:"default_steps"`
	// RequiresKey marks models only reachable with a user-supplied key.
	RequiresKey bool `yaml:"requires_key" json:"requires_key"`
}

// ModelCatalog is the lookup table behind model selection plus the
// premade prompt list shown by the frontend.
type ModelCatalog struct {
	Models         []ModelSpec `yaml:"models" json:"models"`
	PremadePrompts []string    `yaml:"premade_prompts" json:"premade_prompts"`
}

// DefaultCatalog returns the built-in model table used when no YAML file
// is configured.
func DefaultCatalog() *ModelCatalog {
	return &ModelCatalog{
		Models: []ModelSpec{
			{Name: DefaultModel, DefaultSteps: 2},
			{Name: "black-forest-labs/FLUX.1-schnell", DefaultSteps: 4, RequiresKey: true},
			{Name: "black-forest-labs/FLUX.1.1-pro", DefaultSteps: 28, RequiresKey: true},
			{Name: "stabilityai/stable-diffusion-xl-base-1.0", DefaultSteps: 30, RequiresKey: true},
		},
		PremadePrompts: []string{
			"A red balloon drifting over a foggy harbor at dawn",
			"A watercolor fox curled up in autumn leaves",
			"An isometric cutaway of a tiny ramen shop at night",
			"A retro travel poster for a city on the rings of Saturn",
		},
	}
}

// LoadCatalog reads a YAML catalog from path, falling back to the
// built-in table when path is empty.
func LoadCatalog(path string) (*ModelCatalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}

	var catalog ModelCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	if len(catalog.Models) == 0 {
		return nil, fmt.Errorf("model catalog %s defines no models", path)
	}
	return &catalog, nil
}

// Lookup returns the spec for a model name, or false when unknown.
func (c *ModelCatalog) Lookup(name string) (ModelSpec, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// DefaultSteps returns the step count for a model, defaulting to 2 for
// unknown names so a missing catalog entry never blocks generation.
func (c *ModelCatalog) DefaultSteps(name string) int {
	if m, ok := c.Lookup(name); ok {
		return m.DefaultSteps
	}
	return 2
}
