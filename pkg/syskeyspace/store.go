package syskeyspace

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuisonghui/scylla/pkg/types"
)

var (
	bucketLocal = []byte("local")
	bucketPeers = []byte("peers")
)

const (
	keyBootstrapState  = "bootstrap_state"
	keyLocalHostID     = "host_id"
	keyLocalTokens     = "tokens"
	keyCDCGenerationID = "cdc_generation_id"
	keyGeneration      = "generation"
)

// PeerRecord is the durable shadow of one peer's application state, written
// whenever handle_state_normal (pkg/gossip) observes a peer's tokens so a
// restart can recover them before the next full gossip round arrives.
type PeerRecord struct {
	Endpoint string   `json:"endpoint"`
	Tokens   []string `json:"tokens"`
	HostID   string   `json:"host_id,omitempty"`
	DC       string   `json:"dc,omitempty"`
	Rack     string   `json:"rack,omitempty"`
}

// Store is the BoltDB-backed system keyspace, one bucket per entity kind.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the system keyspace database under
// dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "system.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("syskeyspace: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketLocal, bucketPeers} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) putLocal(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("syskeyspace: marshal %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLocal).Put([]byte(key), data)
	})
}

func (s *Store) getLocal(key string, v any) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLocal).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

// SetBootstrapState persists the node's join-progress marker.
func (s *Store) SetBootstrapState(state types.BootstrapState) error {
	return s.putLocal(keyBootstrapState, state)
}

// BootstrapState returns the persisted marker, or BootstrapNeedsBootstrap
// if none has ever been written (a brand new data directory).
func (s *Store) BootstrapState() (types.BootstrapState, error) {
	var state types.BootstrapState
	found, err := s.getLocal(keyBootstrapState, &state)
	if err != nil {
		return "", fmt.Errorf("syskeyspace: read bootstrap_state: %w", err)
	}
	if !found {
		return types.BootstrapNeedsBootstrap, nil
	}
	return state, nil
}

// SetLocalHostID persists this node's host id.
func (s *Store) SetLocalHostID(id types.HostID) error {
	return s.putLocal(keyLocalHostID, id.String())
}

// LocalHostID returns the persisted host id, if any.
func (s *Store) LocalHostID() (types.HostID, bool, error) {
	var raw string
	found, err := s.getLocal(keyLocalHostID, &raw)
	if err != nil || !found {
		return types.HostID{}, false, err
	}
	id, err := types.ParseHostID(raw)
	if err != nil {
		return types.HostID{}, false, fmt.Errorf("syskeyspace: parse host_id: %w", err)
	}
	return id, true, nil
}

// SetLocalTokens persists the tokens this node has chosen to own.
func (s *Store) SetLocalTokens(tokens []types.Token) error {
	raw := make([]string, len(tokens))
	for i, t := range tokens {
		raw[i] = t.String()
	}
	return s.putLocal(keyLocalTokens, raw)
}

// LocalTokens returns the persisted token set, if any.
func (s *Store) LocalTokens() ([]types.Token, error) {
	var raw []string
	found, err := s.getLocal(keyLocalTokens, &raw)
	if err != nil || !found {
		return nil, err
	}
	out := make([]types.Token, 0, len(raw))
	for _, r := range raw {
		t, err := types.ParseToken(r)
		if err != nil {
			return nil, fmt.Errorf("syskeyspace: parse token %q: %w", r, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// SetCDCGenerationID persists the CDC generation id this node is
// responsible for or has adopted. The coordinator never interprets the
// value (CDC generation math is a non-goal, spec.md §1); it is opaque
// here.
func (s *Store) SetCDCGenerationID(id int64) error {
	return s.putLocal(keyCDCGenerationID, id)
}

// CDCGenerationID returns the persisted CDC generation id, if any.
func (s *Store) CDCGenerationID() (int64, bool, error) {
	var id int64
	found, err := s.getLocal(keyCDCGenerationID, &id)
	return id, found, err
}

// SetGeneration persists this node's gossip generation counter, bumped once
// at the start of every process lifetime (spec.md §4.4 step "increment and
// persist a generation counter").
func (s *Store) SetGeneration(gen int64) error {
	return s.putLocal(keyGeneration, gen)
}

// Generation returns the persisted generation counter, or 0 if this node
// has never gossiped before.
func (s *Store) Generation() (int64, error) {
	var gen int64
	_, err := s.getLocal(keyGeneration, &gen)
	return gen, err
}

// SavePeerTokens implements gossip.PeerStore: it persists ep's
// gossip-observed tokens so a restart can recover peer state before the
// next full gossip round arrives (spec.md §4.3, handle_state_normal).
func (s *Store) SavePeerTokens(ep types.Endpoint, tokens []types.Token) error {
	raw := make([]string, len(tokens))
	for i, t := range tokens {
		raw[i] = t.String()
	}
	rec := PeerRecord{Endpoint: ep.String(), Tokens: raw}
	return s.savePeer(rec)
}

func (s *Store) savePeer(rec PeerRecord) error {
	existing, err := s.PeerRecord(rec.Endpoint)
	if err == nil && existing != nil {
		if rec.HostID == "" {
			rec.HostID = existing.HostID
		}
		if rec.DC == "" {
			rec.DC = existing.DC
		}
		if rec.Rack == "" {
			rec.Rack = existing.Rack
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("syskeyspace: marshal peer record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).Put([]byte(rec.Endpoint), data)
	})
}

// PeerRecord returns the persisted record for endpoint addr, if any.
func (s *Store) PeerRecord(addr string) (*PeerRecord, error) {
	var rec PeerRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPeers).Get([]byte(addr))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("syskeyspace: read peer %s: %w", addr, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// ListPeers returns every persisted peer record.
func (s *Store) ListPeers() ([]PeerRecord, error) {
	var out []PeerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).ForEach(func(k, v []byte) error {
			var rec PeerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// DeletePeer removes the persisted record for addr, used once an endpoint
// is excised from token metadata.
func (s *Store) DeletePeer(addr string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).Delete([]byte(addr))
	})
}
