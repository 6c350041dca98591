package cluster

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/actor"
	"ledger/internal/apperr"
	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Router is this node's view of the cluster actor registry: resolve a
// user's home node from the hash ring, dispatch locally via the
// node's actor.Supervisor, or forward over RPC to whichever node owns
// the user (spec.md §4.3). It satisfies internal/pipeline.ActorRouter.
type Router struct {
	localNodeID    string
	ring           *Ring
	membership     Membership
	supervisor     *actor.Supervisor
	rpcClient      *RPCClient
	requestTimeout time.Duration
	logger         zerolog.Logger
}

func NewRouter(localNodeID string, membership Membership, supervisor *actor.Supervisor, rpcClient *RPCClient, requestTimeout time.Duration, logger zerolog.Logger) *Router {
	r := &Router{
		localNodeID:    localNodeID,
		ring:           NewRing(),
		membership:     membership,
		supervisor:     supervisor,
		rpcClient:      rpcClient,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
	r.ring.Set(membership.Snapshot())
	return r
}

// Watch applies every membership change to the ring until ctx is
// canceled. Run in its own goroutine by the caller.
func (r *Router) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case nodes, ok := <-r.membership.Changes():
			if !ok {
				return
			}
			r.ring.Set(nodes)
			r.reconcileLocalOwnership(nodes)
		}
	}
}

// reconcileLocalOwnership evicts any locally running actor whose home
// node, per the refreshed ring, is no longer this node — the
// "previous owner transfers custody by draining its mailbox and
// exiting" behavior from spec.md §9. Custody transfer reuses the
// conflict path: the evicted actor terminates without writing, and
// the next request re-hydrates state via the gateway on the new
// owner.
func (r *Router) reconcileLocalOwnership(nodes []Node) {
	for _, userID := range r.supervisor.ActiveUserIDs() {
		owner, ok := r.ring.Owner(userID)
		if !ok || owner.ID == r.localNodeID {
			continue
		}
		r.logger.Info().Str("user_id", userID.String()).Str("new_owner", owner.ID).
			Msg("cluster: ownership moved off this node, evicting local actor")
		r.supervisor.Evict(userID)
	}
}

func (r *Router) owner(userID uuid.UUID) (Node, error) {
	n, ok := r.ring.Owner(userID)
	if !ok {
		return Node{}, apperr.Transient(fmt.Errorf("cluster: no nodes in ring for user %s", userID))
	}
	return n, nil
}

func (r *Router) GetCredits(ctx context.Context, userID uuid.UUID) (credit.UserCredits, error) {
	node, err := r.owner(userID)
	if err != nil {
		return credit.UserCredits{}, err
	}
	if node.ID == r.localNodeID {
		return r.supervisor.GetCredits(ctx, userID)
	}
	resp, err := r.dispatchRemote(ctx, node, rpcRequest{Op: opGetCredits, UserID: userID})
	if err != nil {
		return credit.UserCredits{}, err
	}
	if resp.State == nil {
		return credit.UserCredits{UserID: userID}, nil
	}
	return *resp.State, nil
}

func (r *Router) Grant(ctx context.Context, userID uuid.UUID, grant credit.GrantMap) error {
	node, err := r.owner(userID)
	if err != nil {
		return err
	}
	if node.ID == r.localNodeID {
		return r.supervisor.Grant(ctx, userID, grant)
	}
	_, err = r.dispatchRemote(ctx, node, rpcRequest{Op: opGrant, UserID: userID, Grant: &grant})
	return err
}

func (r *Router) CompleteJob(ctx context.Context, job credit.JobCompletion) (int64, error) {
	node, err := r.owner(job.UserID)
	if err != nil {
		return 0, err
	}
	if node.ID == r.localNodeID {
		return r.supervisor.CompleteJob(ctx, job)
	}
	resp, err := r.dispatchRemote(ctx, node, rpcRequest{Op: opCompleteJob, UserID: job.UserID, Cost: job.Cost})
	return resp.Debited, err
}

func (r *Router) dispatchRemote(ctx context.Context, node Node, req rpcRequest) (rpcResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	resp, err := r.rpcClient.Dispatch(ctx, node, req)
	if err != nil {
		// Any RPC failure, a timeout included, is handled as spec.md §5
		// handles a timeout: the dispatcher does not assume success
		// nor failure — nack and let redelivery find the correct result
		// once placement has settled.
		return rpcResponse{}, apperr.Transient(fmt.Errorf("%w: %v", apperr.ErrRoutingTimeout, err))
	}
	if resp.Error != "" {
		return resp, apperr.TerminalActor(fmt.Errorf("%s", resp.Error))
	}
	return resp, nil
}

// LocalDispatch handles an inbound RPC request, invoking the
// supervisor directly. fromNode is the requesting node's id (from its
// signed JWT). If this node's own ring disagrees about who owns
// userID — the split-brain window from spec.md §4.3 — ownership is
// resolved deterministically by lowest node id: the loser evicts its
// local actor and returns an error so the caller redirects to the
// winner; the winner serves the request as if it were authoritative.
func (r *Router) LocalDispatch(ctx context.Context, fromNode string, req rpcRequest) rpcResponse {
	if owner, ok := r.ring.Owner(req.UserID); ok && owner.ID != r.localNodeID && owner.ID != fromNode {
		if !isWinner(r.localNodeID, fromNode) {
			r.supervisor.Evict(req.UserID)
			return rpcResponse{Error: fmt.Sprintf("%s: ring owner is %s", apperr.ErrNameConflict, owner.ID)}
		}
	}

	switch req.Op {
	case opGetCredits:
		state, err := r.supervisor.GetCredits(ctx, req.UserID)
		if err != nil {
			return rpcResponse{Error: err.Error()}
		}
		return rpcResponse{State: &state}
	case opGrant:
		if req.Grant == nil {
			return rpcResponse{Error: "missing grant payload"}
		}
		if err := r.supervisor.Grant(ctx, req.UserID, *req.Grant); err != nil {
			return rpcResponse{Error: err.Error()}
		}
		return rpcResponse{}
	case opCompleteJob:
		debited, err := r.supervisor.CompleteJob(ctx, credit.JobCompletion{UserID: req.UserID, Cost: req.Cost})
		if err != nil {
			return rpcResponse{Error: err.Error()}
		}
		return rpcResponse{Debited: debited}
	default:
		return rpcResponse{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}
