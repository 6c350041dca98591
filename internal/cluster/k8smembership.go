package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// K8sMembership watches one Service's EndpointSlice via
// k8s.io/client-go, satisfying spec.md §4.3's "orchestrator pod
// metadata" service-discovery collaborator. Each ready endpoint
// becomes a Node addressed at the cluster RPC port.
type K8sMembership struct {
	clientset *kubernetes.Clientset
	namespace string
	service   string
	rpcPort   int
	logger    zerolog.Logger

	mu   sync.RWMutex
	last []Node
	ch   chan []Node
}

func NewK8sMembership(clientset *kubernetes.Clientset, namespace, service string, rpcPort int, logger zerolog.Logger) *K8sMembership {
	return &K8sMembership{
		clientset: clientset,
		namespace: namespace,
		service:   service,
		rpcPort:   rpcPort,
		logger:    logger,
		ch:        make(chan []Node, 1),
	}
}

// Run watches the EndpointSlice until ctx is canceled, re-establishing
// the watch on any error: a dropped connection is "sleep and retry",
// not fatal.
func (m *K8sMembership) Run(ctx context.Context) {
	selector := fmt.Sprintf("kubernetes.io/service-name=%s", m.service)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if snapshot, ok := m.list(ctx, selector); ok {
			m.publish(snapshot)
		}

		w, err := m.clientset.DiscoveryV1().EndpointSlices(m.namespace).Watch(ctx, metav1.ListOptions{
			LabelSelector: selector,
		})
		if err != nil {
			m.logger.Error().Err(err).Msg("cluster: endpointslice watch failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		m.drain(ctx, w, selector)
	}
}

func (m *K8sMembership) drain(ctx context.Context, w watch.Interface, selector string) {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.ResultChan():
			if !ok {
				return
			}
			if snapshot, ok := m.list(ctx, selector); ok {
				m.publish(snapshot)
			}
		}
	}
}

func (m *K8sMembership) list(ctx context.Context, selector string) ([]Node, bool) {
	slices, err := m.clientset.DiscoveryV1().EndpointSlices(m.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("cluster: endpointslice list failed")
		return nil, false
	}

	var nodes []Node
	for _, slice := range slices.Items {
		for _, ep := range slice.Endpoints {
			if ep.Conditions.Ready != nil && !*ep.Conditions.Ready {
				continue
			}
			if len(ep.Addresses) == 0 {
				continue
			}
			id := ep.TargetRef
			nodeID := ep.Addresses[0]
			if id != nil && id.Name != "" {
				nodeID = id.Name
			}
			nodes = append(nodes, Node{
				ID:      nodeID,
				Address: fmt.Sprintf("%s:%d", ep.Addresses[0], m.rpcPort),
			})
		}
	}
	return nodes, true
}

func (m *K8sMembership) publish(nodes []Node) {
	m.mu.Lock()
	m.last = nodes
	m.mu.Unlock()

	select {
	case m.ch <- nodes:
	default:
		select {
		case <-m.ch:
		default:
		}
		m.ch <- nodes
	}
}

func (m *K8sMembership) Snapshot() []Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *K8sMembership) Changes() <-chan []Node { return m.ch }
