package mutate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Enabled selects the mutation kinds the mutator may propose.
//
// Decoding an Enabled from YAML or JSON replaces every flag: kinds missing
// from the document are disabled, even when decoding over a value that had
// them enabled.
type Enabled struct {
	Append   bool `yaml:"append" json:"append"`
	Position bool `yaml:"position" json:"position"`
	Color    bool `yaml:"color" json:"color"`
	Rotation bool `yaml:"rotation" json:"rotation"`
	Delete   bool `yaml:"delete" json:"delete"`
}

// AllEnabled enables every mutation kind.
func AllEnabled() Enabled {
	return Enabled{Append: true, Position: true, Color: true, Rotation: true, Delete: true}
}

// enabledFields is Enabled without its decoding methods.
type enabledFields Enabled

var enabledKeys = map[string]bool{
	"append": true, "position": true, "color": true, "rotation": true, "delete": true,
}

// UnmarshalYAML implements yaml.Unmarshaler. Unknown keys are rejected.
func (e *Enabled) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i < len(value.Content); i += 2 {
			if k := value.Content[i]; !enabledKeys[k.Value] {
				return fmt.Errorf("line %d: unknown mutation kind %q", k.Line, k.Value)
			}
		}
	}
	var f enabledFields
	if err := value.Decode(&f); err != nil {
		return err
	}
	*e = Enabled(f)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Unknown keys are rejected.
func (e *Enabled) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f enabledFields
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("mutate: enabled mutations: %w", err)
	}
	*e = Enabled(f)
	return nil
}
