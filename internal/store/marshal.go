package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/report"
	"github.com/roach88/interlock/internal/rules"
)

// marshalJSON encodes v as compact JSON TEXT with HTML escaping disabled so
// stored values match golden traces byte for byte.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func marshalRules(t *rules.Table) (string, error) {
	data, err := marshalJSON(t)
	if err != nil {
		return "", fmt.Errorf("marshal rules: %w", err)
	}
	return data, nil
}

func unmarshalRules(data string) (*rules.Table, error) {
	t := rules.NewTable()
	if err := json.Unmarshal([]byte(data), t); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return t, nil
}

// marshalEffects stores an empty effect list as "[]", never "null".
func marshalEffects(effects []report.Effect) (string, error) {
	if effects == nil {
		effects = []report.Effect{}
	}
	data, err := marshalJSON(effects)
	if err != nil {
		return "", fmt.Errorf("marshal effects: %w", err)
	}
	return data, nil
}

func unmarshalEffects(data string) ([]report.Effect, error) {
	effects := []report.Effect{}
	if err := json.Unmarshal([]byte(data), &effects); err != nil {
		return nil, fmt.Errorf("unmarshal effects: %w", err)
	}
	return effects, nil
}

func marshalKeys(keys []keycode.Keycode) (string, error) {
	if keys == nil {
		keys = []keycode.Keycode{}
	}
	data, err := marshalJSON(keys)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

func unmarshalKeys(data string) ([]keycode.Keycode, error) {
	keys := []keycode.Keycode{}
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return keys, nil
}
