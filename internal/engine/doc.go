// Package engine runs reconciliation passes between the Source and Target
// stores.
//
// A pass is a straight pipeline:
//
//  1. Skip when the pause flag is set (checked before any fetch).
//  2. Read the last sync boundary.
//  3. Fetch Source projects, Source tasks, the Target state and the Target
//     mutation log since the boundary, concurrently.
//  4. Mirror missing labels onto the Target.
//  5. Diff and resolve projects and their goals, queueing mutations.
//  6. Diff and resolve tasks, walking the Source hierarchy parent-first.
//  7. Commit: Source queue, then stamps for Source-born tasks, then the
//     Target queue, then back-links onto Source records, then the boundary.
//
// Queues are owned by the pass and discarded with it. Mutations are never
// interleaved with diffing: everything is planned first and committed at the
// end, so a malformed input aborts the pass before either store is touched.
//
// Thread-safety: RunPass and Rehash serialize on the Engine. Two engines
// sharing one state store must be serialized externally (the CLI holds a
// file lock).
package engine
