package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ledger/internal/apperr"
	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	state credit.UserCredits
	err   error
}

func (f *fakeReader) GetCredits(context.Context, uuid.UUID) (credit.UserCredits, error) {
	return f.state, f.err
}

func TestHealthz(t *testing.T) {
	h := New(&fakeReader{}, http.NotFoundHandler(), nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestCreditsLookup_Success(t *testing.T) {
	userID := uuid.New()
	reader := &fakeReader{state: credit.UserCredits{UserID: userID, Permanent: 500}}
	h := New(reader, http.NotFoundHandler(), nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/internal/users/"+userID.String()+"/credits", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"Permanent":500`)
}

func TestCreditsLookup_InvalidUserID(t *testing.T) {
	h := New(&fakeReader{}, http.NotFoundHandler(), nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/internal/users/not-a-uuid/credits", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreditsLookup_TransientErrorMapsTo503(t *testing.T) {
	reader := &fakeReader{err: apperr.Transient(errors.New("dial tcp: connection refused"))}
	h := New(reader, http.NotFoundHandler(), nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/internal/users/"+uuid.New().String()+"/credits", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreditsLookup_TerminalErrorMapsTo502(t *testing.T) {
	reader := &fakeReader{err: apperr.TerminalActor(apperr.ErrNameConflict)}
	h := New(reader, http.NotFoundHandler(), nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/internal/users/"+uuid.New().String()+"/credits", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestClusterDispatchMount(t *testing.T) {
	mounted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := New(&fakeReader{}, mounted, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/internal/cluster/dispatch", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestTailEndpoint_OmittedWhenNil(t *testing.T) {
	h := New(&fakeReader{}, http.NotFoundHandler(), nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/internal/audit/tail", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
