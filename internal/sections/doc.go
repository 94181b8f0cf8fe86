// Package sections provides two-level (section, row) sequences built from
// one-level lazy caches.
//
// A Sequence is an outer lazy.Cache whose elements are row caches, one per
// section. Each row cache is bound to its section index, so a section that
// shifts position is rebound before being moved.
//
// # Applying a Transaction
//
// Apply reflects one txn.Transaction in three steps:
//  1. Row operations are grouped by section: deletions and updates by their
//     pre-batch section, insertions by their post-batch section.
//  2. Every materialized section that survives the batch gets its row diff,
//     after being rebound when its index changes.
//  3. The section-level diff is applied to the outer cache, moving the
//     already updated row caches to their new positions.
//
// Everything is validated and prepared before anything is committed; an
// error leaves the sequence exactly as it was.
//
// View is the uncached counterpart. It implements Reader only.
package sections
