/*
Package join implements C4, the join sequencer that runs once at node
startup: prepare_to_join (shadow gossip rounds, initial application-state
announcement) followed by join_token_ring (Raft group 0 membership, token
selection, the STATUS=NORMAL announcement that makes this node a ring
member).

Sequencer depends on narrow collaborator interfaces for gossip transport,
the shadow round, Raft group 0, schema agreement, and bulk streaming, the
same pattern pkg/gossip uses for Bus/Replicator/PeerStore. It reads ring
state through a RingObserver rather than mutating token.Metadata directly;
its only write is this node's own tokens, installed through RingSeeder
(SeedNormalTokens) before gossiping on the restart-a-normal-node fast path
and before the STATUS=NORMAL announcement. Every other endpoint's ring
state arrives through the gossip handler.
*/
package join
