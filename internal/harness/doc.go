// Package harness runs reconciliation conformance scenarios.
//
// A scenario is a YAML file holding a batch of log entries, an optional
// inline CUE schema and the expected outcome: either the exact ordered list
// of operations or the anomaly that must abort the batch.
//
//	name: modify-last-writer-wins
//	description: the newest modification of a field wins
//	entries:
//	  - {operation: modify, collection: lists, pk: list-one, field: title, value: second, created_on: 2}
//	  - {operation: modify, collection: lists, pk: list-one, field: title, value: first, created_on: 1}
//	expect:
//	  operations:
//	    - {operation: updateOneObject, collection: lists, where: {pk: list-one}, patch: {title: second}}
//
// Successful batches are also executed against a fresh in-memory object
// store so that final_state assertions can check the resulting objects.
// RunWithGolden additionally snapshots the outcome as canonical JSON under
// testdata/golden.
package harness
