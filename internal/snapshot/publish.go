package snapshot

import (
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Publish sends ops to r as one batch. swap installs the new state; it runs
// after the operations are queued and before Commit, so readers never see
// the new state ahead of the batch that describes it. If the batch is
// rejected r is fully reloaded and the error returned.
func Publish(r txn.Receiver, ops []txn.Op, swap func()) error {
	err := queue(r, ops)
	swap()
	if err == nil {
		if err = r.Commit(); err == nil {
			return nil
		}
	}
	r.FullReload()
	return err
}

func queue(r txn.Receiver, ops []txn.Op) error {
	if err := r.Begin(); err != nil {
		return err
	}
	for _, op := range ops {
		if err := txn.Dispatch(r, op); err != nil {
			return err
		}
	}
	return nil
}
