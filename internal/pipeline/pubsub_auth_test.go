package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPubSubAuthMiddleware_BypassesInLocalDev(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	mw := PubSubAuthMiddleware(true, "", "", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/push/jobs", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPubSubAuthMiddleware_MisconfiguredDenies(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	mw := PubSubAuthMiddleware(false, "", "svc@project.iam.gserviceaccount.com", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/push/jobs", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	require.False(t, called)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPubSubAuthMiddleware_MissingAuthorizationHeaderRejected(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	mw := PubSubAuthMiddleware(false, "https://ledger.example.com/push", "svc@project.iam.gserviceaccount.com", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/push/jobs", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPubSubAuthMiddleware_MalformedAuthorizationHeaderRejected(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	mw := PubSubAuthMiddleware(false, "https://ledger.example.com/push", "svc@project.iam.gserviceaccount.com", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/push/jobs", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPubSubAuthMiddleware_InvalidTokenRejected(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	mw := PubSubAuthMiddleware(false, "https://ledger.example.com/push", "svc@project.iam.gserviceaccount.com", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/push/jobs", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-jwt")
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
