package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/interlock/internal/keycode"
)

// Scenario defines a conformance test scenario.
// Scenarios drive a key sequence through a fresh engine and assert on the
// resulting trace, host report, ledger and flags.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Keymap is an optional path to a CUE keymap file. Relative paths are
	// resolved against the scenario file location.
	// Mutually exclusive with Rules.
	Keymap string `yaml:"keymap,omitempty"`

	// Rules is an inline rule table. If both Rules and Keymap are empty the
	// default table is used.
	Rules []RuleSpec `yaml:"rules,omitempty"`

	// Features sets the initial flags. Omitted fields default to true.
	Features *FeatureSpec `yaml:"features,omitempty"`

	// Capacity overrides the ledger capacity (default: 10).
	Capacity int `yaml:"capacity,omitempty"`

	// Steps are the key transitions, one per tick.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// SessionID is an optional fixed session id.
	// If empty, defaults to "test-session-default" for golden comparison.
	SessionID string `yaml:"session_id,omitempty"`
}

// RuleSpec is one rule as written in a scenario.
type RuleSpec struct {
	Trigger    string `yaml:"trigger"`
	Suppressed string `yaml:"suppressed"`
}

// FeatureSpec sets the initial feature flags.
type FeatureSpec struct {
	Enabled  *bool `yaml:"enabled,omitempty"`
	Recovery *bool `yaml:"recovery,omitempty"`
}

// Step is a single key transition. Exactly one of Press and Release is set.
type Step struct {
	Press   string `yaml:"press,omitempty"`
	Release string `yaml:"release,omitempty"`

	// Forwarded, if set, is the expected forwarding decision.
	Forwarded *bool `yaml:"forwarded,omitempty"`

	// Report, if set, is the expected host report after the step.
	// An empty list asserts an empty report.
	Report *[]string `yaml:"report,omitempty"`
}

// Key returns the step's key name and direction.
func (s Step) Key() (name string, pressed bool) {
	if s.Press != "" {
		return s.Press, true
	}
	return s.Release, false
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an effect appears in the trace
	// - "trace_order": Check effects appear in order
	// - "trace_count": Check an effect appears exactly N times
	// - "final_report": Compare the final host report
	// - "final_ledger": Compare the final ledger entries
	// - "final_flags": Compare the final (and persisted) flags
	Type string `yaml:"type"`

	// Effect is an effect string like "withdraw KC_A"
	// (used by trace_contains and trace_count).
	Effect string `yaml:"effect,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	// Zero is a valid expectation.
	Count int `yaml:"count,omitempty"`

	// Effects is the expected effect order (used by trace_order).
	Effects []string `yaml:"effects,omitempty"`

	// Keys are key names (used by final_report and final_ledger).
	// final_ledger entries may carry a "!" prefix to mean withdrawn.
	Keys []string `yaml:"keys,omitempty"`

	// Enabled and Recovery are the expected flags (used by final_flags).
	Enabled  *bool `yaml:"enabled,omitempty"`
	Recovery *bool `yaml:"recovery,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalReport   = "final_report"
	AssertFinalLedger   = "final_ledger"
	AssertFinalFlags    = "final_flags"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative keymap path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the keymap path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Keymap != "" && !filepath.IsAbs(scenario.Keymap) && basePath != "" {
		scenario.Keymap = filepath.Join(basePath, scenario.Keymap)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating file references.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Keymap != "" && len(s.Rules) > 0 {
		return fmt.Errorf("keymap and rules are mutually exclusive")
	}

	if s.Keymap != "" {
		if _, err := os.Stat(s.Keymap); os.IsNotExist(err) {
			return fmt.Errorf("keymap file not found: %s", s.Keymap)
		}
	}

	if s.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, r := range s.Rules {
		if _, err := keycode.Parse(r.Trigger); err != nil {
			return fmt.Errorf("rules[%d].trigger: %w", i, err)
		}
		if _, err := keycode.Parse(r.Suppressed); err != nil {
			return fmt.Errorf("rules[%d].suppressed: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if (step.Press == "") == (step.Release == "") {
			return fmt.Errorf("steps[%d]: exactly one of press or release is required", i)
		}
		name, _ := step.Key()
		if _, err := keycode.Parse(name); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Report != nil {
			if err := validateKeys(fmt.Sprintf("steps[%d].report", i), *step.Report); err != nil {
				return err
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Effect == "" {
			return fmt.Errorf("assertions[%d]: effect is required for trace_contains", index)
		}
		if _, err := canonicalEffect(a.Effect); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertTraceOrder:
		if len(a.Effects) == 0 {
			return fmt.Errorf("assertions[%d]: effects list is required for trace_order", index)
		}
		for _, e := range a.Effects {
			if _, err := canonicalEffect(e); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertTraceCount:
		if a.Effect == "" {
			return fmt.Errorf("assertions[%d]: effect is required for trace_count", index)
		}
		if _, err := canonicalEffect(a.Effect); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must not be negative", index)
		}
	case AssertFinalReport:
		return validateKeys(fmt.Sprintf("assertions[%d].keys", index), a.Keys)
	case AssertFinalLedger:
		for _, k := range a.Keys {
			if _, _, err := parseLedgerKey(k); err != nil {
				return fmt.Errorf("assertions[%d].keys: %w", index, err)
			}
		}
	case AssertFinalFlags:
		if a.Enabled == nil && a.Recovery == nil {
			return fmt.Errorf("assertions[%d]: enabled or recovery is required for final_flags", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validateKeys(field string, names []string) error {
	for _, n := range names {
		if _, err := keycode.Parse(n); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}
