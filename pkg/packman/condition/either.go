package condition

import (
	"encoding/json"
	"errors"

	"github.com/jamesainslie/packman/pkg/packman/plugin"
)

func init() {
	Registry.Register("either", plugin.Strict(func(cfg struct {
		Conditions []json.RawMessage `json:"conditions"`
	}) (Condition, error) {
		if len(cfg.Conditions) == 0 {
			return nil, errors.New("either needs at least one condition")
		}
		conds, err := Registry.DecodeAll(cfg.Conditions)
		if err != nil {
			return nil, err
		}
		return Either(conds), nil
	}))

	Registry.Register("not", plugin.Strict(func(cfg struct {
		Condition json.RawMessage `json:"condition"`
	}) (Condition, error) {
		if len(cfg.Condition) == 0 {
			return nil, errors.New("not needs a condition")
		}
		inner, err := Registry.Decode(cfg.Condition)
		if err != nil {
			return nil, err
		}
		return Not{inner}, nil
	}))
}

// Either holds when any of its conditions holds.
type Either []Condition

// Evaluate implements Condition.
func (e Either) Evaluate(packagePath, rootDir string) (bool, error) {
	for _, c := range e {
		ok, err := c.Evaluate(packagePath, rootDir)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Not inverts a condition.
type Not struct {
	Condition Condition
}

// Evaluate implements Condition.
func (n Not) Evaluate(packagePath, rootDir string) (bool, error) {
	ok, err := n.Condition.Evaluate(packagePath, rootDir)
	return !ok && err == nil, err
}
