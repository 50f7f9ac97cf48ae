// Package config defines the structures to configure a pibot robot and reads them from disk.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// AttributeMap is a convenience wrapper for pulling out typed information from a map.
type AttributeMap map[string]interface{}

// Has returns whether the key exists in the map.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String attempts to return a string present in the map with the given name; returns an empty
// string otherwise.
func (am AttributeMap) String(name string) string {
	if am == nil {
		return ""
	}
	if s, ok := am[name].(string); ok {
		return s
	}
	return ""
}

// Bool attempts to return a boolean present in the map with the given name; returns the given
// default otherwise.
func (am AttributeMap) Bool(name string, def bool) bool {
	if am == nil {
		return def
	}
	if b, ok := am[name].(bool); ok {
		return b
	}
	return def
}

// A Component describes one configured part of the robot. Type selects the registered
// constructor (e.g. "ultrasonic") and Attributes holds its model specific settings.
type Component struct {
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	Attributes AttributeMap `json:"attributes,omitempty"`

	// ConvertedAttributes is the typed form of Attributes, filled in by the registered
	// attribute map converter before construction.
	ConvertedAttributes interface{} `json:"-"`
}

// Validate ensures all parts of the config are valid.
func (config *Component) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	return nil
}

// A Board describes which board implementation to open.
type Board struct {
	Model      string       `json:"model"`
	Attributes AttributeMap `json:"attributes,omitempty"`

	ConvertedAttributes interface{} `json:"-"`
}

// Validate ensures all parts of the config are valid.
func (config *Board) Validate(path string) error {
	if config.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	return nil
}

// Config describes a whole robot: the single board everything is wired to and the parts
// attached to it.
type Config struct {
	ConfigFilePath string      `json:"-"`
	Board          Board       `json:"board"`
	Components     []Component `json:"components,omitempty"`
	Debug          bool        `json:"debug,omitempty"`
}

// Ensure ensures all parts of the config are valid and that component names are unique.
func (c *Config) Ensure() error {
	if err := c.Board.Validate("board"); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Components))
	for idx := range c.Components {
		path := fmt.Sprintf("components.%d", idx)
		if err := c.Components[idx].Validate(path); err != nil {
			return err
		}
		name := c.Components[idx].Name
		if _, ok := seen[name]; ok {
			return utils.NewConfigValidationError(path, errors.Errorf("duplicate component name %q", name))
		}
		seen[name] = struct{}{}
	}
	return nil
}

// FindComponent finds a particular component by name.
func (c *Config) FindComponent(name string) *Component {
	for idx := range c.Components {
		if c.Components[idx].Name == name {
			return &c.Components[idx]
		}
	}
	return nil
}

// ComponentsOfType returns the names of the configured components of the given type, in config order.
func (c *Config) ComponentsOfType(typ string) []string {
	var names []string
	for _, comp := range c.Components {
		if comp.Type == typ {
			names = append(names, comp.Name)
		}
	}
	return names
}
