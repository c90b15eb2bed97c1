package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interlock/internal/engine"
	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/rules"
	"github.com/roach88/interlock/internal/scan"
	"github.com/roach88/interlock/internal/store"
)

const wasdKeymap = `
rules: [
	{trigger: "KC_D", suppressed: "KC_A"},
	{trigger: "KC_A", suppressed: "KC_D"},
	{trigger: "KC_W", suppressed: "KC_S"},
	{trigger: "KC_S", suppressed: "KC_W"},
]
features: {enabled: true, recovery: true}
ledger: capacity: 4
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and stdin, returning stdout and stderr.
func execute(cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// emptyDB creates an initialized but empty database file.
func emptyDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	return dbPath
}

// seedSession logs one session under the default table, one transition per
// tick.
func seedSession(t *testing.T, dbPath, sessionID string, events ...string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	flags := feature.Flags{Enabled: true, Recovery: true}
	word := flags.Pack(0)
	require.NoError(t, st.WriteWord(ctx, word))

	table := rules.DefaultTable()
	id, err := scan.StartSession(ctx, st, scan.NewFixedGenerator(sessionID), scan.SessionConfig{
		Rules:       table,
		Capacity:    10,
		InitialWord: word,
		StartedAt:   time.UnixMilli(0), // ties resolve by id, so later ids are newer
	})
	require.NoError(t, err)

	host := scan.NewHost()
	eng := engine.New(table, host.Reporter(), feature.NewState(flags, st.Persister(ctx), nil), engine.WithCapacity(10))
	loop := scan.NewLoop(eng, host, scan.Config{}, scan.WithSink(scan.StoreSink{Store: st, SessionID: id}))

	for _, e := range events {
		k := keycode.MustParse(e[1:])
		tr := scan.Release(k)
		if e[0] == '+' {
			tr = scan.Press(k)
		}
		require.NoError(t, loop.Send(tr))
		_, err := loop.Step(ctx)
		require.NoError(t, err)
	}
}
