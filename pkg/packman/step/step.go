// Package step implements install steps: actions applied to a fetched
// package that write its files into the install root through an
// operation.Operation. Steps are selected by their "action" field and may
// carry guard conditions.
package step

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jamesainslie/packman/pkg/packman/condition"
	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

var logger = logging.Get("step")

// Action performs the work of a step.
type Action interface {
	Execute(ctx context.Context, op *operation.Operation, packagePath, rootDir string, onProgress progress.Func) error
}

// Registry holds every action, keyed on "action".
var Registry = plugin.NewRegistry[Action]("step", "action")

// Step is an action guarded by conditions.
type Step struct {
	Name       string
	Conditions []condition.Condition
	Action     Action
}

// Decode decodes one step entry: the action fields plus an optional
// "conditions" list.
func Decode(raw json.RawMessage) (*Step, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding step: %w", err)
	}

	s := &Step{}
	if rawConds, ok := fields["conditions"]; ok {
		var list []json.RawMessage
		if err := json.Unmarshal(rawConds, &list); err != nil {
			return nil, fmt.Errorf("decoding step conditions: %w", err)
		}
		conds, err := condition.Registry.DecodeAll(list)
		if err != nil {
			return nil, err
		}
		s.Conditions = conds
		delete(fields, "conditions")
	}

	rest, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if _, s.Name, err = plugin.SplitTag(rest, Registry.Tag()); err != nil {
		return nil, fmt.Errorf("decoding step: %w", err)
	}
	if s.Action, err = Registry.Decode(rest); err != nil {
		return nil, err
	}
	return s, nil
}

// UnmarshalJSON lets definitions embed steps directly.
func (s *Step) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

// Execute runs the action when every condition holds. A skipped step
// completes its progress immediately.
func (s *Step) Execute(ctx context.Context, op *operation.Operation, packagePath, rootDir string, onProgress progress.Func) error {
	onProgress = progress.OrNoop(onProgress)
	ok, err := condition.All(s.Conditions, packagePath, rootDir)
	if err != nil {
		return fmt.Errorf("evaluating conditions of %s: %w", s.Name, err)
	}
	if !ok {
		logger.Info("conditions not met, skipping step", "action", s.Name)
		onProgress(1)
		return nil
	}
	return s.Action.Execute(ctx, op, packagePath, rootDir, onProgress)
}
