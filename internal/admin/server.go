// Package admin builds the ledger's operational HTTP surface: a
// health endpoint, a read-only credits lookup for support tooling,
// the inter-node cluster RPC target, and an optional websocket audit
// tail, routed with chi rather than a bare ServeMux since the cluster
// RPC handler already commits this codebase to chi for its internal
// surface. Prometheus metrics are served from a separate listener
// (see internal/pipeline.Metrics and cmd/ledgerd), matching the
// config's distinct admin/metrics ports.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"ledger/internal/apperr"
	"ledger/internal/credit"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// CreditReader is the read-only view of the cluster registry needed
// to serve GET /internal/users/{id}/credits. Implemented by
// internal/cluster.Router.
type CreditReader interface {
	GetCredits(ctx context.Context, userID uuid.UUID) (credit.UserCredits, error)
}

// DispatchHandler is the handler returned by cluster.RPCHandler,
// mounted at POST /internal/cluster/dispatch. Aliased to http.Handler
// so this package doesn't need to import internal/cluster's
// unexported request/response types.
type DispatchHandler = http.Handler

// Tail optionally serves a live websocket stream of change events.
// Implemented by internal/audit.Tail. Nil disables the endpoint.
type Tail interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// New builds the admin router. clusterDispatch is the handler
// returned by cluster.RPCHandler; tail may be nil.
func New(reader CreditReader, clusterDispatch DispatchHandler, tail Tail, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/internal/users/{id}/credits", func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		state, err := reader.GetCredits(r.Context(), userID)
		if err != nil {
			writeClassifiedError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state)
	})

	r.Mount("/internal/cluster/dispatch", clusterDispatch)

	if tail != nil {
		r.Get("/internal/audit/tail", tail.ServeHTTP)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// writeClassifiedError maps the apperr taxonomy onto HTTP status
// codes for the read-only lookup endpoint: transient failures are a
// 503 (retry later), everything else is a 502 (the cluster could not
// produce an authoritative answer).
func writeClassifiedError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if apperr.ClassOf(err) == apperr.ClassTransient {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
