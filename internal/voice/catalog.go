package voice

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"cosmconsole/internal/data/embedded"
	"cosmconsole/pkg/cosmtypes"
)

// Catalog is the embedded synthesis voice catalog.
type Catalog struct {
	Voices []cosmtypes.VoiceConfig `yaml:"voices"`
}

// LoadCatalog parses the embedded voice catalog.
func LoadCatalog() (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(embedded.VoicesData, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse voice catalog: %w", err)
	}
	return &catalog, nil
}

// Resolve looks up a voice by name.
func (c *Catalog) Resolve(name string) (cosmtypes.VoiceConfig, bool) {
	for _, v := range c.Voices {
		if v.Name == name {
			return v, true
		}
	}
	return cosmtypes.VoiceConfig{}, false
}

// ByProvider returns the catalog's voices for one provider.
func (c *Catalog) ByProvider(provider string) []cosmtypes.VoiceConfig {
	var out []cosmtypes.VoiceConfig
	for _, v := range c.Voices {
		if v.Provider == provider {
			out = append(out, v)
		}
	}
	return out
}
