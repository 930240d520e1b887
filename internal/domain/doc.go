// Package domain holds the types shared by every layer of the sync core:
// mutation envelopes, reason codes, entity snapshots, the per-mutation
// Result value, canonical JSON for payload hashing and id generation.
//
// domain imports nothing internal. All other internal packages import it.
//
// Key design constraints:
//   - Rejections are values (Result with a Reject), never Go errors
//   - Go errors are reserved for infrastructure faults
//   - Every repository call takes the tenant id explicitly
//   - All JSON tags use snake_case
package domain
