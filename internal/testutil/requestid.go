package testutil

// StaticRequestIDs returns the same request id for every request.
//
// Golden results embed the request id; a static id keeps them
// byte-identical across runs. Unlike engine.FixedGenerator, which returns
// ids in sequence and panics when exhausted, this generator never runs out.
//
// Thread-safety: StaticRequestIDs is stateless and safe for concurrent use.
type StaticRequestIDs struct {
	id string
}

// NewStaticRequestIDs creates a generator returning id.
//
// The id is typically set in the scenario YAML:
//
//	request_id: "req-00000000-0000-0000-0000-000000000001"
//
// If id is empty, Generate() returns "test-request".
func NewStaticRequestIDs(id string) *StaticRequestIDs {
	if id == "" {
		id = "test-request"
	}
	return &StaticRequestIDs{id: id}
}

// Generate returns the static id.
//
// Implements engine.RequestIDGenerator.
func (g *StaticRequestIDs) Generate() string {
	return g.id
}
