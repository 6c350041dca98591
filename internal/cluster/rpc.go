package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ledger/internal/credit"

	dgjwt "github.com/dgrijalva/jwt-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// rpcRequest/rpcResponse are the inter-node wire shapes for the
// admin/RPC surface's POST /internal/cluster/dispatch target
// (spec.md §4.3's cross-node RPC, plain JSON bodies over HTTP rather
// than a binary RPC framework).
type rpcRequest struct {
	Op     string           `json:"op"`
	UserID uuid.UUID        `json:"user_id"`
	Cost   int64            `json:"cost,omitempty"`
	Grant  *credit.GrantMap `json:"grant,omitempty"`
}

type rpcResponse struct {
	Error   string              `json:"error,omitempty"`
	State   *credit.UserCredits `json:"state,omitempty"`
	Debited int64               `json:"debited,omitempty"`
}

const (
	opGetCredits  = "get_credits"
	opGrant       = "grant"
	opCompleteJob = "complete_job"
)

// RPCClient dispatches rpcRequests to remote nodes, signing each
// request with a shared-secret JWT (spec.md's node-to-node auth: the
// same Authorization-header bearer-token shape used for client-facing
// auth elsewhere, applied to the inter-node direction instead).
type RPCClient struct {
	httpClient *http.Client
	secret     []byte
	sourceNode string
}

func NewRPCClient(secret, sourceNode string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		httpClient: &http.Client{Timeout: timeout},
		secret:     []byte(secret),
		sourceNode: sourceNode,
	}
}

func (c *RPCClient) token() (string, error) {
	claims := dgjwt.StandardClaims{
		Issuer:    c.sourceNode,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
	}
	tok := dgjwt.NewWithClaims(dgjwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secret)
}

func (c *RPCClient) Dispatch(ctx context.Context, node Node, req rpcRequest) (rpcResponse, error) {
	var out rpcResponse

	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("cluster rpc: marshal request: %w", err)
	}

	signed, err := c.token()
	if err != nil {
		return out, fmt.Errorf("cluster rpc: sign request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/internal/cluster/dispatch", node.Address), bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("cluster rpc: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+signed)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return out, fmt.Errorf("cluster rpc: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("cluster rpc: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("cluster rpc: remote node %s returned %d: %s", node.ID, resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return out, fmt.Errorf("cluster rpc: decode response: %w", err)
	}
	return out, nil
}

// RPCHandler builds the chi handler serving POST
// /internal/cluster/dispatch, verifying the bearer JWT and passing
// its Issuer claim (the sending node's id) through to dispatch so the
// caller can resolve ownership conflicts deterministically.
func RPCHandler(secret string, dispatch func(ctx context.Context, fromNode string, req rpcRequest) rpcResponse, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		tokenString := auth[len(prefix):]
		var claims dgjwt.StandardClaims
		_, err := dgjwt.ParseWithClaims(tokenString, &claims, func(t *dgjwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*dgjwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			logger.Warn().Err(err).Msg("cluster rpc: rejected unauthenticated dispatch")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		resp := dispatch(r.Context(), claims.Issuer, req)
		w.Header().Set("Content-Type", "application/json")
		if resp.Error != "" {
			w.WriteHeader(http.StatusConflict)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return r
}
