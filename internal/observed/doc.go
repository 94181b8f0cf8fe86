// Package observed provides sequences that follow an external data source and
// can be composed into map pipelines.
//
// # Entry Point
//
// A Sequence embeds a txn.Batcher, so it is itself a txn.Receiver: a data
// source drives it with Begin, row and section operations and Commit, or
// with FullReload. On Commit the coalesced transaction is first applied to
// the sequence's own two-level cache and then forwarded, unchanged, to every
// listener. A transaction the cache rejects is not forwarded; the error is
// returned from Commit.
//
// # Pipelines
//
// Map and MapMaybe derive a new Sequence whose elements are computed from the
// upstream elements. A cached derivation memoizes per element and keeps
// identities stable across transactions; an uncached one recomputes on every
// access. Because a map never changes cardinality or order, forwarded
// transactions are valid for every stage.
//
// # Lifetime
//
// Every Sequence owns a lifetime.Chain. A derived sequence's chain is its
// upstream's chain plus a handle on the upstream itself, so a pipeline stage
// keeps everything above it alive. The upstream only refers back to derived
// sequences through weak pointers: once a derived sequence is unreachable its
// forwarder goes inert, it is pruned on the next delivery, and its chain is
// released by a runtime cleanup. Release does the same deterministically.
package observed
