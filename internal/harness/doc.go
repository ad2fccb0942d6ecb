// Package harness provides conformance testing for qgraph projects.
//
// The harness loads a CUE project, seeds a private database from a
// fixture file, runs each request of a scenario through the engine and
// validates the shaped rows and the statements issued.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	project: ../library
//	fixtures: ../library/fixtures.yaml
//	steps:
//	  - name: novels
//	    request:
//	      entity: Author
//	      select: [name, {books: [title]}]
//	      where: {books: {genre: NOVEL}}
//	    expect:
//	      rows: 2
//	assertions:
//	  - type: rows_contain
//	    step: novels
//	    row: {name: Ann}
//	  - type: query_count
//	    step: novels
//	    count: 3
//
// Step names must be unique. A step whose request is expected to be
// rejected sets expect.error to the compile error code.
//
// # Assertion Types
//
//   - row_count: Verifies the number of root rows
//   - rows_contain: Verifies some root row matches (subset match)
//   - query_count: Verifies the number of statements issued
//   - query_contains: Verifies some statement contains a fragment
//   - field_error: Verifies a batch failure was reported at a result path
//   - warning: Verifies a warning code was reported
//
// # Deterministic Testing
//
// Every scenario runs in its own in-memory SQLite database and every
// request gets the scenario's fixed request id, so results and statements
// are identical across runs and can be compared against golden snapshots.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/novels.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
