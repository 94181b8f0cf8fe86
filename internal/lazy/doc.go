// Package lazy provides one-level sequences whose elements are produced on
// demand by a generator.
//
// # Sequence Kinds
//
// Two concrete kinds share the read interface Seq:
//   - **Cache:** memoizes every materialized element in a sparse slot map and
//     implements Diffable, so a batch of index-level changes can be replayed
//     onto the slots without dropping unaffected values.
//   - **Generated:** never stores anything; every Get runs the generator.
//     It has no diff capability because there is nothing to remap.
//
// The split is resolved by the type at construction time. Callers that need
// to apply a diff hold a Diffable; callers that only read hold a Seq.
//
// # Generators
//
// A Generator pairs a live Count function with a per-index Generate
// function. Count is never cached. Generate may report absent (ok == false)
// when the backing data raced out from under it; absent is returned to the
// caller as "no value" and is not memoized.
//
// # Remapping
//
// ApplyDiff follows the list-diff convention: deletions and updates refer to
// pre-batch positions, insertions to post-batch positions. Updated and deleted
// slots are evicted, every surviving slot is re-keyed to its post-batch
// index. A malformed diff is rejected with a *DiffError before any slot is
// touched.
package lazy
