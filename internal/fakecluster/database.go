package fakecluster

import (
	"context"
	"sync"

	"github.com/cuisonghui/scylla/pkg/token"
	"github.com/cuisonghui/scylla/pkg/types"
)

// Database is an in-memory localdb.Database: a fixed keyspace/column-family
// catalog plus a counter standing in for CDC generation allocation.
// WaitForAgreement never blocks, since there is no real schema to disagree
// about in a fake cluster.
type Database struct {
	mu sync.Mutex

	keyspaces map[string][]string
	strategy  token.ReplicationStrategy
	nextGen   int64

	AgreementErr error
}

// NewDatabase builds a Database whose keyspaces map keyspace name to its
// column family names, replicated under strategy (a SimpleStrategy if nil).
func NewDatabase(keyspaces map[string][]string, strategy token.ReplicationStrategy) *Database {
	if strategy == nil {
		strategy = NewSimpleStrategy(1)
	}
	return &Database{keyspaces: keyspaces, strategy: strategy}
}

func (d *Database) Keyspaces() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.keyspaces))
	for ks := range d.keyspaces {
		out = append(out, ks)
	}
	return out
}

func (d *Database) ColumnFamilies(ks string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keyspaces[ks]
}

func (d *Database) ReplicationStrategy(ks string) token.ReplicationStrategy {
	return d.strategy
}

func (d *Database) WaitForAgreement(ctx context.Context) error {
	return d.AgreementErr
}

func (d *Database) NewGeneration(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextGen++
	return d.nextGen, nil
}

// SimpleStrategy replicates each range to the next N distinct endpoints
// walking clockwise from its owner, the in-memory stand-in for the
// keyspace-level replication strategies a real local database would load
// per spec.md §6.
type SimpleStrategy struct {
	ReplicationFactor int
}

// NewSimpleStrategy builds a SimpleStrategy with the given replication
// factor, clamped to at least 1.
func NewSimpleStrategy(replicationFactor int) *SimpleStrategy {
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	return &SimpleStrategy{ReplicationFactor: replicationFactor}
}

func (s *SimpleStrategy) NaturalEndpoints(md *token.Metadata, t types.Token) []types.Endpoint {
	sorted := md.SortedTokens()
	if len(sorted) == 0 {
		return nil
	}

	start := 0
	for i, candidate := range sorted {
		if candidate.Compare(t) >= 0 {
			start = i
			break
		}
		if i == len(sorted)-1 {
			start = 0
		}
	}

	seen := make(map[types.Endpoint]bool)
	out := make([]types.Endpoint, 0, s.ReplicationFactor)
	for i := 0; i < len(sorted) && len(out) < s.ReplicationFactor; i++ {
		tok := sorted[(start+i)%len(sorted)]
		ep, ok := md.OwnerOf(tok)
		if !ok || seen[ep] {
			continue
		}
		seen[ep] = true
		out = append(out, ep)
	}
	return out
}
