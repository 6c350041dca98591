// Package cluster implements the cluster-wide actor registry
// (spec.md §4.3/§4.9): a consistent-hash ring over node identities,
// a Kubernetes-backed membership watcher, and a Router that dispatches
// a request to a user's actor wherever it lives, locally or over RPC.
package cluster

// Node is one addressable cluster member.
type Node struct {
	// ID is the stable identity used by the hash ring and by
	// conflict resolution (lowest ID wins). Typically the pod name.
	ID string
	// Address is host:port for the inter-node RPC surface.
	Address string
}

// Membership supplies the current set of live nodes and notifies the
// caller of changes, standing in for spec.md's "external service-
// discovery collaborator (e.g., orchestrator pod metadata) that emits
// join/leave events."
type Membership interface {
	// Snapshot returns the current membership set.
	Snapshot() []Node
	// Changes delivers a new snapshot each time membership changes.
	// Implementations must not block a slow receiver indefinitely;
	// the channel is buffered and drops/coalesces if the receiver
	// falls behind, since only the latest snapshot ever matters.
	Changes() <-chan []Node
}

// StaticMembership is a fixed membership set, useful for single-node
// deployments and tests where no Kubernetes API is available.
type StaticMembership struct {
	nodes []Node
	ch    chan []Node
}

func NewStaticMembership(nodes []Node) *StaticMembership {
	return &StaticMembership{nodes: nodes, ch: make(chan []Node)}
}

func (s *StaticMembership) Snapshot() []Node        { return s.nodes }
func (s *StaticMembership) Changes() <-chan []Node  { return s.ch }
