package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/dshills/quickflux/internal/dispatcher"
)

// parseDispatchFlag parses TYPE or TYPE=JSON into an action.
func parseDispatchFlag(s string) (dispatcher.Action, error) {
	actionType, raw, hasPayload := strings.Cut(s, "=")
	actionType = strings.TrimSpace(actionType)
	if actionType == "" {
		return dispatcher.Action{}, fmt.Errorf("dispatch %q: missing action type", s)
	}

	action := dispatcher.Action{Type: actionType}
	if !hasPayload || strings.TrimSpace(raw) == "" {
		return action, nil
	}

	if !gjson.Valid(raw) {
		return dispatcher.Action{}, fmt.Errorf("dispatch %q: payload is not valid JSON", actionType)
	}
	action.Payload = gjson.Parse(raw).Value()
	return action, nil
}

// actionsFile is the YAML layout of --actions:
//
//	- type: todo.add
//	  payload:
//	    title: write docs
//	- type: todo.clear
type actionsFile []struct {
	Type    string `yaml:"type"`
	Payload any    `yaml:"payload"`
}

// loadActionsFile reads actions from a YAML file.
func loadActionsFile(path string) ([]dispatcher.Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading actions: %w", err)
	}

	var file actionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing actions %s: %w", path, err)
	}

	actions := make([]dispatcher.Action, 0, len(file))
	for i, a := range file {
		if a.Type == "" {
			return nil, fmt.Errorf("parsing actions %s: entry %d has no type", path, i+1)
		}
		actions = append(actions, dispatcher.Action{Type: a.Type, Payload: a.Payload})
	}
	return actions, nil
}
