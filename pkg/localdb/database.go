package localdb

import (
	"context"

	"github.com/cuisonghui/scylla/pkg/token"
)

// Database is the local database collaborator (spec.md §1, §6). Handler
// never interprets rows; it only asks Database which keyspaces exist and
// how each replicates, to keep pending ranges current (spec.md §4.1's
// update_pending_ranges).
//
// Database also satisfies pkg/join.SchemaAgreement and
// pkg/join.CDCGenerator by structural typing: WaitForAgreement and
// NewGeneration both concern state this collaborator already owns
// (schema version, CDC generation numbering), and spec.md §1 scopes both
// the agreement protocol and the generation-id math out as non-goals, so
// neither gets a dedicated package.
type Database interface {
	// Keyspaces lists the keyspace names pending ranges must be
	// recomputed for. Satisfies pkg/gossip.KeyspaceLister.
	Keyspaces() []string

	// ColumnFamilies lists ks's column family names, consulted by
	// pkg/nodeops's bootstrap/unbootstrap notifications (spec.md §4.4:
	// "notify all column families of bootstrap start/end").
	ColumnFamilies(ks string) []string

	// ReplicationStrategy returns the natural-replica-set strategy for
	// ks, passed straight through to token.Metadata.UpdatePendingRanges.
	ReplicationStrategy(ks string) token.ReplicationStrategy

	// WaitForAgreement blocks until every live peer's SCHEMA application
	// state agrees with this node's, or ctx is done. Satisfies
	// pkg/join.SchemaAgreement.
	WaitForAgreement(ctx context.Context) error

	// NewGeneration allocates and persists a new CDC generation id.
	// Satisfies pkg/join.CDCGenerator.
	NewGeneration(ctx context.Context) (int64, error)
}

// ColumnFamilyNotifier is notified around a bootstrap's streaming phase
// (spec.md §4.4: "notify all column families of bootstrap start/end
// around streaming"). Separate from Database because only pkg/streaming's
// bootstrap path needs it, not every Database consumer.
type ColumnFamilyNotifier interface {
	NotifyBootstrapStart(ctx context.Context, ks, cf string) error
	NotifyBootstrapEnd(ctx context.Context, ks, cf string) error
}
