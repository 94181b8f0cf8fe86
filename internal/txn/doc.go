// Package txn defines the batched change protocol between a data source and
// the sequences observing it.
//
// A data source drives a Receiver: Begin, any number of row and section
// operations, then Commit. Deletions and updates name pre-batch positions,
// insertions name post-batch positions. FullReload is sent instead of a batch
// when a change cannot be expressed as index operations.
//
// The Batcher is the Receiver every observed sequence exposes. It queues
// operations while collecting, coalesces them into one Transaction on Commit
// and hands that Transaction to a Sink in a single call, so nothing downstream
// ever sees a half-applied batch.
package txn
