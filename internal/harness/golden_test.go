package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interlock/internal/feature"
)

func TestRunWithGolden_TestdataScenarios(t *testing.T) {
	for _, name := range []string{
		"recovery_round_trip",
		"basic_last_pressed_wins",
		"recovery_off_clears_ledger",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			// First run with -update to create golden file:
			//   go test ./internal/harness -run TestRunWithGolden -update
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/recovery_round_trip.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	require.NoError(t, AssertGolden(t, "recovery_round_trip", result))
}

func TestTraceSnapshot_Marshal(t *testing.T) {
	snap := TraceSnapshot{
		ScenarioName: "s",
		Trace: []TraceEvent{{
			Seq:       1,
			Tick:      1,
			Event:     "+KC_A",
			Forwarded: true,
			Effects:   []string{"withdraw KC_D"},
			Report:    []string{"KC_A"},
		}},
		FinalReport: []string{"KC_A"},
		FinalLedger: []string{},
		FinalFlags:  feature.Flags{Enabled: true},
	}

	data, err := snap.Marshal()
	require.NoError(t, err)

	want := `{
  "scenario_name": "s",
  "trace": [
    {
      "seq": 1,
      "tick": 1,
      "event": "+KC_A",
      "forwarded": true,
      "effects": [
        "withdraw KC_D"
      ],
      "report": [
        "KC_A"
      ]
    }
  ],
  "final_report": [
    "KC_A"
  ],
  "final_ledger": [],
  "final_flags": {
    "enabled": true,
    "recovery": false
  }
}
`
	assert.Equal(t, want, string(data))

	var back TraceSnapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, snap, back)
}

func TestTraceSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/recovery_off_clears_ledger.yaml")
	require.NoError(t, err)

	var outputs [][]byte
	for i := 0; i < 3; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		data, err := NewSnapshot(scenario.Name, result).Marshal()
		require.NoError(t, err)
		outputs = append(outputs, data)
	}

	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[1], outputs[2])
}
