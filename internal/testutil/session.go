package testutil

// FixedSessionGenerator returns the same session id every time.
//
// Scenario runs with the same id produce byte-identical session logs and
// golden traces. Unlike scan.FixedGenerator it never runs out.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator for id.
// If id is empty, Generate returns "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session id. Implements scan.IDGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
