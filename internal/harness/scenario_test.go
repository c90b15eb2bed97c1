package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/name and returns the path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "test.yaml", `
name: test_scenario
description: "Test scenario for validation"
rules:
  - {trigger: KC_D, suppressed: KC_A}
features:
  recovery: false
capacity: 4
steps:
  - press: KC_A
    report: [KC_A]
  - release: KC_A
    forwarded: true
assertions:
  - type: trace_contains
    effect: "withdraw KC_A"
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, []RuleSpec{{Trigger: "KC_D", Suppressed: "KC_A"}}, scenario.Rules)
	require.NotNil(t, scenario.Features)
	assert.Nil(t, scenario.Features.Enabled)
	require.NotNil(t, scenario.Features.Recovery)
	assert.False(t, *scenario.Features.Recovery)
	assert.Equal(t, 4, scenario.Capacity)
	require.Len(t, scenario.Steps, 2)
	assert.Len(t, scenario.Assertions, 1)

	name, pressed := scenario.Steps[0].Key()
	assert.Equal(t, "KC_A", name)
	assert.True(t, pressed)
	require.NotNil(t, scenario.Steps[0].Report)
	assert.Equal(t, []string{"KC_A"}, *scenario.Steps[0].Report)

	name, pressed = scenario.Steps[1].Key()
	assert.Equal(t, "KC_A", name)
	assert.False(t, pressed)
	assert.Nil(t, scenario.Steps[1].Report)
}

func TestLoadScenario_EmptyReportIsExpectation(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "empty.yaml", `
name: empty_report
description: "d"
steps:
  - press: KC_A
    report: []
assertions:
  - type: final_report
    keys: [KC_A]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	require.NotNil(t, scenario.Steps[0].Report)
	assert.Empty(t, *scenario.Steps[0].Report)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "typo.yaml", `
name: typo
description: "d"
step:
  - press: KC_A
assertions:
  - type: final_report
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_ResolvesKeymapRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keymaps"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keymaps", "km.cue"),
		[]byte(`rules: [{trigger: "KC_D", suppressed: "KC_A"}]`), 0644))

	path := writeScenario(t, dir, "s.yaml", `
name: with_keymap
description: "d"
keymap: keymaps/km.cue
steps:
  - press: KC_A
assertions:
  - type: final_report
    keys: [KC_A]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "keymaps", "km.cue"), scenario.Keymap)
}

func TestValidateScenario_Errors(t *testing.T) {
	base := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Steps:       []Step{{Press: "KC_A"}},
			Assertions:  []Assertion{{Type: AssertFinalReport}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"keymap and rules", func(s *Scenario) {
			s.Keymap = "x.cue"
			s.Rules = []RuleSpec{{Trigger: "KC_D", Suppressed: "KC_A"}}
		}, "mutually exclusive"},
		{"keymap missing", func(s *Scenario) { s.Keymap = "/nonexistent/x.cue" }, "keymap file not found"},
		{"negative capacity", func(s *Scenario) { s.Capacity = -1 }, "capacity must not be negative"},
		{"bad rule key", func(s *Scenario) {
			s.Rules = []RuleSpec{{Trigger: "KC_NOPE", Suppressed: "KC_A"}}
		}, "rules[0].trigger"},
		{"step without key", func(s *Scenario) { s.Steps = []Step{{}} }, "exactly one of press or release"},
		{"step with both", func(s *Scenario) {
			s.Steps = []Step{{Press: "KC_A", Release: "KC_A"}}
		}, "exactly one of press or release"},
		{"step unknown key", func(s *Scenario) { s.Steps = []Step{{Press: "KC_NOPE"}} }, "steps[0]"},
		{"step bad report", func(s *Scenario) {
			s.Steps = []Step{{Press: "KC_A", Report: &[]string{"KC_NOPE"}}}
		}, "steps[0].report"},
		{"assertion without type", func(s *Scenario) {
			s.Assertions = []Assertion{{}}
		}, "type is required"},
		{"unknown assertion", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: "final_state"}}
		}, "unknown assertion type"},
		{"trace_contains without effect", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceContains}}
		}, "effect is required"},
		{"trace_contains bad op", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceContains, Effect: "press KC_A"}}
		}, "unknown op"},
		{"trace_order empty", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceOrder}}
		}, "effects list is required"},
		{"trace_count negative", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceCount, Effect: "assert KC_A", Count: -1}}
		}, "count must not be negative"},
		{"final_ledger bad key", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFinalLedger, Keys: []string{"!KC_NOPE"}}}
		}, "assertions[0].keys"},
		{"final_flags empty", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFinalFlags}}
		}, "enabled or recovery is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	require.NoError(t, validateScenario(base()))
}

func TestLoadScenario_TestdataScenarios(t *testing.T) {
	paths, err := DiscoverScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		_, err := LoadScenario(p)
		assert.NoError(t, err, p)
	}
}
