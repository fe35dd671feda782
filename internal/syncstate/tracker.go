// Package syncstate computes and applies per-peer graph deltas.
//
// The send side remembers, per receiver, the content hash of every node
// last sent; the receive side remembers, per sender, the full node set
// last reconstructed. Both sides are bounded caches: a peer idle for
// longer than the TTL, or pushed out by capacity, loses its state. A
// sender without a baseline marks its next delta Rebase so the
// receiver starts over instead of merging into stale nodes.
package syncstate

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/ual/internal/graph"
	"github.com/danmuck/ual/internal/observability"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
)

type Config struct {
	MaxPeers uint64
	PeerTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxPeers: 1024,
		PeerTTL:  30 * time.Minute,
	}
}

type sendState struct {
	mu       sync.Mutex
	hashes   map[string]graph.Hash
	lastHash string
}

type recvState struct {
	mu    sync.Mutex
	nodes map[string]graph.Node
	order []string
	// partial is set when deltas were applied without a baseline and
	// cleared by the next Rebase.
	partial bool
}

func (s *recvState) reset() {
	s.nodes = make(map[string]graph.Node)
	s.order = nil
	s.partial = false
}

func (s *recvState) remove(id string) {
	if _, ok := s.nodes[id]; !ok {
		return
	}
	delete(s.nodes, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *recvState) upsert(n graph.Node) {
	if _, ok := s.nodes[n.ID]; !ok {
		s.order = append(s.order, n.ID)
	}
	s.nodes[n.ID] = n
}

func (s *recvState) snapshot() []graph.Node {
	out := make([]graph.Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

// Tracker owns one agent's delta state for all of its peers. Calls for
// the same peer are serialized; calls for different peers run in
// parallel.
type Tracker struct {
	sent *ttlcache.Cache[string, *sendState]
	recv *ttlcache.Cache[string, *recvState]
}

func New(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.MaxPeers == 0 {
		cfg.MaxPeers = def.MaxPeers
	}
	if cfg.PeerTTL <= 0 {
		cfg.PeerTTL = def.PeerTTL
	}
	t := &Tracker{
		sent: ttlcache.New[string, *sendState](
			ttlcache.WithTTL[string, *sendState](cfg.PeerTTL),
			ttlcache.WithCapacity[string, *sendState](cfg.MaxPeers),
		),
		recv: ttlcache.New[string, *recvState](
			ttlcache.WithTTL[string, *recvState](cfg.PeerTTL),
			ttlcache.WithCapacity[string, *recvState](cfg.MaxPeers),
		),
	}
	go t.sent.Start()
	go t.recv.Start()
	return t
}

// Close stops the background expiry loops.
func (t *Tracker) Close() {
	t.sent.Stop()
	t.recv.Stop()
}

func (t *Tracker) sendFor(peer string) *sendState {
	item, _ := t.sent.GetOrSet(peer, &sendState{})
	return item.Value()
}

func (t *Tracker) recvFor(peer string) (*recvState, bool) {
	item, found := t.recv.GetOrSet(peer, &recvState{nodes: make(map[string]graph.Node)})
	return item.Value(), found
}

// ComputeDelta diffs g against what was last sent to receiver. The
// delta carries new or changed nodes, ids of nodes no longer present,
// and every edge of g. The receiver's baseline becomes g's full node
// set.
func (t *Tracker) ComputeDelta(g graph.Graph, receiver string) (graph.Graph, error) {
	var out graph.Graph
	err := t.SendDelta(g, receiver, "", func(delta graph.Graph, _ string) error {
		out = delta
		return nil
	})
	return out, err
}

// NextDelta is ComputeDelta plus the parent-hash chain in one step: it
// returns the hash recorded by the previous call and records hash for
// the next one.
func (t *Tracker) NextDelta(g graph.Graph, receiver, hash string) (graph.Graph, string, error) {
	var (
		out    graph.Graph
		parent string
	)
	err := t.SendDelta(g, receiver, hash, func(delta graph.Graph, p string) error {
		out, parent = delta, p
		return nil
	})
	if err != nil {
		return graph.Graph{}, "", err
	}
	return out, parent, nil
}

// SendDelta diffs g against receiver's baseline and hands the delta and
// the parent hash to send while receiver's lock is held, so frames for
// one receiver leave in baseline order. The baseline and the hash chain
// advance only when send returns nil; an empty hash leaves the chain as
// it was.
func (t *Tracker) SendDelta(g graph.Graph, receiver, hash string, send func(delta graph.Graph, parent string) error) error {
	st := t.sendFor(receiver)
	st.mu.Lock()
	defer st.mu.Unlock()

	delta, current, err := st.diff(g)
	if err != nil {
		return err
	}
	if err := send(delta, st.lastHash); err != nil {
		return err
	}
	st.hashes = current
	if hash != "" {
		st.lastHash = hash
	}

	observability.RecordDeltaNodes(len(delta.Nodes))
	log.Debug().
		Str("component", "syncstate").
		Str("peer", receiver).
		Int("nodes", len(delta.Nodes)).
		Int("removed", len(delta.RemovedNodeIDs)).
		Bool("rebase", delta.Rebase).
		Msg("delta computed")
	return nil
}

func (st *sendState) diff(g graph.Graph) (graph.Graph, map[string]graph.Hash, error) {
	delta := graph.Graph{
		ContextID: g.ContextID,
		Edges:     append([]graph.Edge(nil), g.Edges...),
		Rebase:    st.hashes == nil,
	}
	current := make(map[string]graph.Hash, len(g.Nodes))
	for _, n := range g.Nodes {
		h, err := graph.NodeHash(n)
		if err != nil {
			return graph.Graph{}, nil, err
		}
		current[n.ID] = h
		if prev, ok := st.hashes[n.ID]; !ok || prev != h {
			delta.Nodes = append(delta.Nodes, n.Clone())
		}
	}
	for id := range st.hashes {
		if _, ok := current[id]; !ok {
			delta.RemovedNodeIDs = append(delta.RemovedNodeIDs, id)
		}
	}
	sort.Strings(delta.RemovedNodeIDs)
	return delta, current, nil
}

// ApplyDelta merges delta into the nodes cached for sender and returns
// the reconstructed graph: every cached node plus those of the delta's
// edges whose endpoints are both present.
//
// complete is false when the cache for sender was lost (evicted or
// never built) and has not been rebuilt by a Rebase delta since. The
// delta's nodes are then applied as if they were a full graph, which
// yields a subset of what the sender holds.
func (t *Tracker) ApplyDelta(delta graph.Graph, sender string) (g graph.Graph, complete bool) {
	st, found := t.recvFor(sender)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case delta.Rebase:
		st.reset()
	case !found:
		st.partial = true
		log.Warn().
			Str("component", "syncstate").
			Str("peer", sender).
			Msg("no cached state for sender, applying delta as full graph")
	}
	for _, id := range delta.RemovedNodeIDs {
		st.remove(id)
	}
	for _, n := range delta.Nodes {
		st.upsert(n.Clone())
	}

	edges := make([]graph.Edge, 0, len(delta.Edges))
	for _, e := range delta.Edges {
		_, src := st.nodes[e.Source]
		_, tgt := st.nodes[e.Target]
		if src && tgt {
			edges = append(edges, e)
		}
	}
	if dangling := len(delta.Edges) - len(edges); dangling > 0 {
		log.Warn().
			Str("component", "syncstate").
			Str("peer", sender).
			Int("dangling", dangling).
			Msg("dropped edges to nodes missing from sender state")
	}
	return graph.Graph{
		ContextID: delta.ContextID,
		Nodes:     st.snapshot(),
		Edges:     edges,
	}, !st.partial
}

// LastHash returns the semantic hash last recorded for peer.
func (t *Tracker) LastHash(peer string) string {
	item := t.sent.Get(peer)
	if item == nil {
		return ""
	}
	st := item.Value()
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastHash
}

func (t *Tracker) SetLastHash(peer, hash string) {
	st := t.sendFor(peer)
	st.mu.Lock()
	st.lastHash = hash
	st.mu.Unlock()
}

// Forget drops both sides of the state kept for peer.
func (t *Tracker) Forget(peer string) {
	t.sent.Delete(peer)
	t.recv.Delete(peer)
}

// Peers reports how many peers hold send-side and receive-side state.
func (t *Tracker) Peers() (sent, received int) {
	return t.sent.Len(), t.recv.Len()
}
