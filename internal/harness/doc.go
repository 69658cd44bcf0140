// Package harness runs reconciliation scenarios described in YAML against
// in-memory Source and Target stores.
//
// # Scenario Format
//
//	name: target_edit_wins
//	description: "A Target edit since the last pass is carried back"
//	options:
//	  task_strategy: snapshot
//	source:
//	  tasks:
//	    - content: Buy milk
//	      labels: [home]
//	steps:
//	  - pass: {}
//	  - edit_target: { item: Buy milk, content: Buy oat milk }
//	  - add_target: { content: Call mom }
//	  - pass: {}
//	assertions:
//	  - type: source_task
//	    content: Buy oat milk
//	    expect: { linked: true, completed: false }
//	  - type: report
//	    expect: { source.tasks.update: 1, source.tasks.add: 1 }
//
// Tasks and items are addressed by their content. The Target always starts
// with the inbox project.
//
// # Steps
//
//   - pass: run one pass (dry_run optional); the clock advances a minute first
//   - edit_source / edit_target: change a task or item as a user would
//   - add_target: create an item as a user would
//   - complete_target: check an item
//   - drop_source / delete_target: remove a task or item
//   - pause: set the pause flag
//
// Target edits advance the clock thirty seconds so they fall inside the
// next pass window.
//
// # Assertion Types
//
//   - target_item / no_target_item: an item with the content exists or not
//   - source_task / no_source_task: the same for Source tasks
//   - report: counters of a pass report (pass 0 is the last one)
//   - report_empty: the pass planned nothing
//   - call_count: the number of Source writes of one kind
//
// Every run uses a fixed clock and sequential temp ids, so repeated runs
// produce identical stores.
package harness
