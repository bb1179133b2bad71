// Package planner handles the planning phase of a dual-target build.
//
// The planner turns a manifest into the deterministic sequence of filesystem
// operations preparation would perform, without touching the tree. It flags
// problems that would fail preparation and derives the order restoration
// would unwind the operations in.
//
// Key responsibilities:
//   - Generate PreparePlan with ordered quarantine and stub operations
//   - Detect problems (missing required paths and missing stubs)
//   - Note skips for absent optional paths and warnings for stale quarantine
//   - Derive the restore sequence (reverse order, stub removal first)
package planner
