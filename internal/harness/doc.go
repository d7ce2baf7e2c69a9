// Package harness runs conformance scenarios against a fresh inventory
// engine.
//
// Each scenario runs in a private in-memory store with a deterministic
// clock, so two runs of the same scenario produce identical state. Steps
// call the real engine operations; expect clauses are checked against
// what the engine returned.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  - op: add
//	    args: { name: Widget, quantity: 5 }
//	steps:
//	  - op: remove
//	    args: { name: Widget, quantity: 2 }
//	    expect:
//	      case: ok
//	      result: { remaining: 3 }
//	assertions:
//	  - type: history_count
//	    name: Widget
//	    action: REMOVE
//	    count: 1
//	  - type: final_state
//	    table: items
//	    where: { name: Widget }
//	    expect: { quantity: 3 }
//
// Setup steps must succeed. A step's case is "ok" or the model.Code the
// engine reported (NOT_FOUND, INSUFFICIENT_QUANTITY, INVALID_ARGUMENT).
// Result fields are matched as a subset.
//
// # Supported Operations
//
//	add               name, quantity, group?, attributes?
//	remove            name, quantity
//	delete            name
//	get               name
//	set_group         name, group?
//	update_attributes name, attributes, merge?
//	create_group      name, description?
//	rename_group      from, to
//	delete_group      name
//	set_price         name, price, supplier?, total?
//	get_price         name, supplier?, total?
//	delete_price      name, supplier?
//	cheapest          name
//	low_stock         threshold?
//
// # Assertion Types
//
//   - history_contains: an audit entry for name with action (and expect fields) exists
//   - history_order: actions appear in name's history in the given order
//   - history_count: action appears exactly count times (for name, or overall)
//   - final_state: exactly one row of table matches where, with expect values;
//     with absent: true, no row matches
//
// # Golden Files
//
// RunWithGolden snapshots the steps, the final records, and the full audit
// trail (without timestamps) as canonical JSON under testdata/golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
