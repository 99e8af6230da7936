// Package harness runs scripted collaboration scenarios against a real
// engine and compares the outcome with golden snapshots.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: paint_and_echo
//	description: "A paint is applied locally, upserted, and echoed back"
//	size: 4
//	default_color: "#FFFFFF"
//	seed:
//	  - { x: 1, y: 0, color: "#FF4500" }
//	faults:
//	  fail_fetch: false
//	  fail_upsert: false
//	  fail_delete: false
//	steps:
//	  - select: "#2450A4"
//	  - paint: 5
//	  - paint_at: { x: 0, y: 0 }
//	  - remote: { x: 3, y: 3, color: "#00A368" }
//	  - remote_clear: true
//	  - clear: { confirm: true }
//	  - reload: true
//	  - faults: { fail_upsert: true }
//	expect:
//	  state: synced
//	  remote_rows: 3
//	  cells:
//	    - { x: 0, y: 0, color: "#000000" }
//	  errors: [WRITE_FAILED]
//
// Each step sets exactly one key. remote writes to the gateway directly,
// as another collaborator would; remote_clear deletes every remote row the
// same way, which collaborators observe as a single clear change.
//
// # Deterministic Execution
//
// Every run uses a fresh in-memory gateway wrapped in a
// testutil.FaultyGateway, a fixed session id, and a testutil.StepClock for
// UpdatedAt. After each step the runner flushes queued writes and waits
// until every published change has been applied or ignored, so the trace
// is identical across runs.
//
// # Golden Files
//
// RunWithGolden stores the trace and final grid in
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
