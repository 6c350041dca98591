package cluster

import (
	"hash/fnv"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// replicasPerNode is the virtual-node count used to smooth load
// across a small node count; 100 is the figure consistently cited in
// consistent-hashing writeups and isn't otherwise exercised by any
// pack dependency, so it's a plain constant rather than a config
// knob.
const replicasPerNode = 100

// Ring is a consistent-hash ring over node identities, keyed by
// stdlib hash/fnv (spec.md §9: no consistent-hash library appears in
// the retrieval pack, so this one component is deliberately stdlib;
// see DESIGN.md). A user's home node is the ring successor of
// hash(user_id).
type Ring struct {
	mu      sync.RWMutex
	hashes  []uint32
	hashMap map[uint32]string
	nodes   map[string]Node
}

func NewRing() *Ring {
	return &Ring{hashMap: make(map[uint32]string), nodes: make(map[string]Node)}
}

// Set replaces the ring's membership wholesale; called on every
// Membership change.
func (r *Ring) Set(nodes []Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes = make(map[string]Node, len(nodes))
	r.hashMap = make(map[uint32]string, len(nodes)*replicasPerNode)
	r.hashes = r.hashes[:0]

	for _, n := range nodes {
		r.nodes[n.ID] = n
		for i := 0; i < replicasPerNode; i++ {
			h := hashKey(n.ID + "#" + strconv.Itoa(i))
			r.hashMap[h] = n.ID
			r.hashes = append(r.hashes, h)
		}
	}
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })
}

// Owner returns the node responsible for userID: the ring successor
// of hash(user_id), wrapping around to the first hash if userID's
// hash exceeds every node's.
func (r *Ring) Owner(userID uuid.UUID) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 {
		return Node{}, false
	}

	h := hashKey(string(userID[:]))
	idx := sort.Search(len(r.hashes), func(i int) bool { return r.hashes[i] >= h })
	if idx == len(r.hashes) {
		idx = 0
	}
	nodeID := r.hashMap[r.hashes[idx]]
	n, ok := r.nodes[nodeID]
	return n, ok
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
