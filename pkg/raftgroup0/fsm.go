package raftgroup0

import (
	"io"

	"github.com/hashicorp/raft"
)

// membershipFSM is group 0's state machine. Raft already tracks the voter
// set internally (via AddVoter/RemoveServer, which themselves go through
// the log as configuration entries); this FSM exists only because raft.Raft
// requires one, and applies no business commands of its own, per spec.md
// §1's non-goal on schema-change content — group 0 here only serializes
// peer-exchange/config-change operations, it does not carry schema bytes.
type membershipFSM struct{}

// Apply is a no-op: every entry raft.Raft commits through this FSM is a
// configuration change, already handled internally by the library.
func (membershipFSM) Apply(*raft.Log) interface{} { return nil }

func (membershipFSM) Snapshot() (raft.FSMSnapshot, error) { return emptySnapshot{}, nil }

func (membershipFSM) Restore(rc io.ReadCloser) error {
	return rc.Close()
}

type emptySnapshot struct{}

func (emptySnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }

func (emptySnapshot) Release() {}
