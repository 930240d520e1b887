// Package harness runs sync scenarios against the real intake and feed
// services and checks their outcomes.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: walk_in_order
//	description: "What this scenario validates"
//	fixtures: fixtures.yaml        # optional, relative to the scenario file
//	start: "2026-10-15T03:00:00Z"  # optional clock start
//	steps:
//	  - name: create
//	    push:
//	      actor: { tenant: t1, user: cashier1 }
//	      device_id: dev-1
//	      mutations:
//	        - mutation_id: m1
//	          type: ORDER_CREATE
//	          outlet_id: o1
//	          payload: { ... }
//	    expect:
//	      outcomes: [applied]
//	  - advance: 1h
//	  - pull:
//	      actor: { tenant: t1, user: owner1 }
//	      device_id: dev-2
//	      cursor: 0
//	      scope: { mode: all_outlets }
//	    expect:
//	      changes: 3
//	assertions:
//	  - type: outcome
//	    tenant: t1
//	    mutation_id: m1
//	    expect: { status: applied }
//
// A step does exactly one of push, pull, claim or advance. Step outcomes
// are written as "applied", "duplicate" or "rejected:<REASON_CODE>".
//
// # Assertion Types
//
//   - outcome: the journaled outcome of a mutation
//   - order_state: fields of an order, found by order_code or by the
//     mutation that created it
//   - change_count: number of change records, optionally per entity type
//   - quota: the tenant quota snapshot for a period
//   - notifications: the templates dispatched, in order
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory SQLite store with a pinned
// clock and sequential ids, so traces are identical across runs and can be
// compared against golden files (see RunWithGolden).
package harness
