// Package condition implements the guards that decide whether an install
// step runs. Conditions are selected by their "type" field.
package condition

import (
	"encoding/json"

	"github.com/jamesainslie/packman/pkg/packman/plugin"
)

// Condition is evaluated against a fetched package before a step runs.
type Condition interface {
	Evaluate(packagePath, rootDir string) (bool, error)
}

// Registry holds every condition type, keyed on "type".
var Registry = plugin.NewRegistry[Condition]("condition", "type")

// Decode decodes one condition entry.
func Decode(raw json.RawMessage) (Condition, error) {
	return Registry.Decode(raw)
}

// All reports whether every condition holds. An empty list holds.
func All(conds []Condition, packagePath, rootDir string) (bool, error) {
	for _, c := range conds {
		ok, err := c.Evaluate(packagePath, rootDir)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
