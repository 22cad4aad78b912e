package discounts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/rmadesk/rmadesk/internal/shared"
)

func newTestRouter(backend *memoryBackend) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kits := StaticKitSource{{KitSKU: "KIT-X", Components: []string{"A", "B", "Q"}}}
	h := NewHandler(logger, NewService(backend, kits, logger), kits)
	r := chi.NewRouter()
	r.Route("/discounts", h.MountRoutes)
	return r
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRegister(t *testing.T) {
	backend := newMemoryBackend()
	router := newTestRouter(backend)

	body := `{"orders":[{"id":"O1","channel":"shop","created_at":"2026-07-01T10:00:00Z","lines":[{"sku":"KIT-X","quantity":3}]}]}`
	rec := post(router, "/discounts/sales", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result RegisterResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 2, result.Submitted)
	require.Equal(t, int64(2), result.Inserted)

	rec = post(router, "/discounts/sales", `{"orders":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(router, "/discounts/sales", `{"orders":[{"id":"O1"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerKits(t *testing.T) {
	router := newTestRouter(newMemoryBackend())

	req := httptest.NewRequest(http.MethodGet, "/discounts/kits", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Kits     []KitRule    `json:"kits"`
		Problems []KitProblem `json:"problems"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Kits, 1)
	require.Len(t, payload.Problems, 1)
	require.Equal(t, "Q", payload.Problems[0].Component)
}

type recordingAuditor struct {
	records []shared.AuditLog
}

func (a *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.records = append(a.records, log)
	return nil
}

func TestHandlerCleanupIsAudited(t *testing.T) {
	backend := newMemoryBackend()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kits := StaticKitSource{{KitSKU: "KIT-X", Components: []string{"A", "B"}}}
	auditor := &recordingAuditor{}
	h := NewHandler(logger, NewService(backend, kits, logger), kits).WithAuditor(auditor)
	router := chi.NewRouter()
	router.Route("/discounts", h.MountRoutes)

	rec := post(router, "/discounts/sales", `{"orders":[{"id":"O1","channel":"shop","created_at":"2026-07-01T10:00:00Z","lines":[{"sku":"KIT-X","quantity":1}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Empty(t, auditor.records)

	rec = post(router, "/discounts/sales", `{"delete_cancelled":true,"orders":[{"id":"O1","channel":"shop","shipping_status":"cancelled","created_at":"2026-07-01T10:00:00Z","lines":[{"sku":"KIT-X","quantity":1}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result RegisterResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, int64(2), result.Removed)
	require.Len(t, auditor.records, 1)
	require.Equal(t, "sales.cleanup", auditor.records[0].Action)
	require.Equal(t, "O1", auditor.records[0].EntityID)
}
