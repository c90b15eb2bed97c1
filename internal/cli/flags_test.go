package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interlock/internal/store"
)

func TestFlagsMissingDatabase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.db")

	_, _, err := execute(NewFlagsCommand(&RootOptions{Format: "text"}), "", "--db", missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestFlagsShowUninitialized(t *testing.T) {
	dbPath := emptyDB(t)

	out, _, err := execute(NewFlagsCommand(&RootOptions{Format: "text"}), "", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "enabled=false recovery=false (word 0x0000)")
	assert.Contains(t, out, "not initialized")
}

func TestFlagsMutations(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"enable", []string{"enable"}, "enabled=true recovery=true (word 0x3000)"},
		{"disable", []string{"disable"}, "enabled=false recovery=true (word 0x2000)"},
		{"toggle", []string{"toggle"}, "enabled=false recovery=true (word 0x2000)"},
		{"recovery disable", []string{"disable", "--recovery"}, "enabled=true recovery=false (word 0x1000)"},
		{"recovery toggle", []string{"toggle", "--recovery"}, "enabled=true recovery=false (word 0x1000)"},
		{"recovery enable", []string{"enable", "--recovery"}, "enabled=true recovery=true (word 0x3000)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A database that doesn't exist yet is created by a mutation.
			dbPath := filepath.Join(t.TempDir(), "test.db")

			out, _, err := execute(NewFlagsCommand(&RootOptions{Format: "text"}), "",
				append(tt.args, "--db", dbPath)...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
			assert.NotContains(t, out, "not initialized")
		})
	}
}

func TestFlagsPreservesUnrelatedBits(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.WriteWord(ctx, 0x0042))
	require.NoError(t, st.Close())

	out, _, err := execute(NewFlagsCommand(&RootOptions{Format: "text"}), "", "enable", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "enabled=true recovery=false (word 0x1042)")

	st, err = store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	word, err := st.ReadWord(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1042), word)
}

func TestFlagsSequence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	run := func(args ...string) string {
		out, _, err := execute(NewFlagsCommand(&RootOptions{Format: "text"}), "", append(args, "--db", dbPath)...)
		require.NoError(t, err)
		return out
	}

	run("disable")
	run("toggle", "--recovery")
	assert.Contains(t, run(), "enabled=false recovery=false (word 0x0000)")
	assert.Contains(t, run("toggle"), "enabled=true recovery=false (word 0x1000)")
}

func TestFlagsUnknownAction(t *testing.T) {
	dbPath := emptyDB(t)

	_, _, err := execute(NewFlagsCommand(&RootOptions{Format: "text"}), "", "flip", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown action "flip"`)
}

func TestFlagsJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	out, _, err := execute(NewFlagsCommand(&RootOptions{Format: "json"}), "", "disable", "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   FlagsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, FlagsResult{Enabled: false, Recovery: true, Word: "0x2000", Initialized: true}, resp.Data)
}
