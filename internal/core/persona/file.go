// Package persona loads the declarative persona template file and serves it as a read-only
// lookup table. Templates are validated once at load time; any problem is a configuration error
// and the process must not start.
package persona

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

type fileValidation struct {
	MinNamespaces int     `yaml:"min_namespaces"`
	MaxNamespaces int     `yaml:"max_namespaces"`
	MinThreshold  float64 `yaml:"min_threshold"`
	MaxThreshold  float64 `yaml:"max_threshold"`
}

type fileSelection struct {
	ConfidenceThreshold float64             `yaml:"confidence_threshold"`
	AutoDetect          *bool               `yaml:"auto_detect"`
	Patterns            map[string][]string `yaml:"patterns"`
}

type file struct {
	Version         int                                   `yaml:"version"`
	DefaultPersona  string                                `yaml:"default_persona"`
	KnownNamespaces []string                              `yaml:"known_namespaces"`
	Validation      fileValidation                        `yaml:"validation"`
	Selection       fileSelection                         `yaml:"selection"`
	Dictionaries    map[string]domain.ExpansionDictionary `yaml:"expansion_dictionaries"`
	Personas        yaml.Node                             `yaml:"personas"`
}

type namedTemplate struct {
	key      string
	template domain.PersonaTemplate
}

// Load reads and validates the persona file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "read persona file", err)
	}
	return Parse(data)
}

// Parse validates persona file contents and builds the registry.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "parse persona file", err)
	}

	templates, err := decodeTemplates(&f.Personas)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "parse persona file", err)
	}

	f.Validation = f.Validation.withDefaults()
	if problems := validateFile(f, templates); len(problems) > 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "validate persona file", errors.Join(problems...))
	}
	return newRegistry(f, templates)
}

// decodeTemplates walks the personas mapping node so file order and duplicate keys are visible.
func decodeTemplates(node *yaml.Node) ([]namedTemplate, error) {
	if node.Kind == 0 {
		return nil, errors.New("personas section is missing")
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("personas must be a mapping (line %d)", node.Line)
	}

	seen := make(map[string]struct{}, len(node.Content)/2)
	out := make([]namedTemplate, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("persona %q is defined more than once (line %d)", key, keyNode.Line)
		}
		seen[key] = struct{}{}

		var tpl domain.PersonaTemplate
		if err := valueNode.Decode(&tpl); err != nil {
			return nil, fmt.Errorf("persona %q: %w", key, err)
		}
		tpl.Key = domain.PersonaKey(key)
		out = append(out, namedTemplate{key: key, template: tpl})
	}
	return out, nil
}

func (v fileValidation) withDefaults() fileValidation {
	if v.MinNamespaces <= 0 {
		v.MinNamespaces = 1
	}
	if v.MaxNamespaces <= 0 {
		v.MaxNamespaces = 6
	}
	if v.MinThreshold <= 0 {
		v.MinThreshold = 0.5
	}
	if v.MaxThreshold <= 0 {
		v.MaxThreshold = 0.95
	}
	return v
}
