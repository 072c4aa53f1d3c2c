// Package engine turns repository and platform state into release decisions.
//
// # Overview
//
// A deploy session loops over three steps:
//
//  1. Collect - a Collector reads the local branches synchronously and both
//     deployment targets concurrently into an immutable Snapshot.
//  2. Classify - Classify maps the Snapshot to a Phase.
//  3. Act - LegalActions lists what the operator may do in that Phase.
//
// # Snapshots
//
// A Snapshot is keyed by pointer name: develop, origin/develop, master,
// release/<tag>, staging and production. The release pointer is absent when
// the branch does not exist. A target that could not be read is present with
// a zero commit, never with a value from an earlier pass.
//
// # Phases
//
// Classification priority:
//
//	develop == master == production != staging  -> ambiguous_state (terminal)
//	release branch != staging                   -> release_branch_staged
//	release branch == staging                   -> release_branch_live_on_staging
//	no release branch, production != staging    -> final_staging_verification
//	otherwise                                   -> no_actionable_difference
//
// # Errors
//
// EngineError carries an ErrorClass (config, resolution, ambiguous, script,
// platform, policy, transient) and optional remediation text for the
// operator. Use the Is* helpers or ClassOf to inspect a chain.
package engine
