package lots

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rmadesk/rmadesk/internal/shared"
)

// storeBackend keeps lots across requests so each handler call sees the
// previous one's writes.
type storeBackend struct {
	memoryBackend
	byID map[int64]*Lot
}

func newStoreBackend() *storeBackend {
	return &storeBackend{memoryBackend: memoryBackend{report: reportRows()}, byID: map[int64]*Lot{}}
}

func (s *storeBackend) InsertLot(ctx context.Context, items []Item) (Created, error) {
	created, err := s.memoryBackend.InsertLot(ctx, items)
	if err == nil {
		s.byID[created.ID] = &Lot{ID: created.ID, CreatedAt: created.CreatedAt, State: StatePending, Items: items}
	}
	return created, err
}

func (s *storeBackend) ConfirmLot(ctx context.Context, id int64) (time.Time, error) {
	at, err := s.memoryBackend.ConfirmLot(ctx, id)
	if err == nil {
		s.byID[id].State = StateConfirmed
		s.byID[id].ConfirmedAt = &at
	}
	return at, err
}

func (s *storeBackend) DeleteLot(ctx context.Context, id int64) error {
	err := s.memoryBackend.DeleteLot(ctx, id)
	if err == nil {
		delete(s.byID, id)
	}
	return err
}

func (s *storeBackend) Lots(context.Context) ([]Lot, error) {
	out := make([]Lot, 0, len(s.byID))
	for _, l := range s.byID {
		out = append(out, cloneLot(*l))
	}
	return out, nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type memoryAuditor struct {
	records []shared.AuditLog
}

func (m *memoryAuditor) Record(_ context.Context, log shared.AuditLog) error {
	m.records = append(m.records, log)
	return nil
}

type fixture struct {
	router      http.Handler
	backend     *storeBackend
	idempotency *memoryIdempotency
	auditor     *memoryAuditor
	renderer    *stubRenderer
}

type stubRenderer struct {
	html []byte
	err  error
}

func (s *stubRenderer) RenderHTML(_ context.Context, html []byte) ([]byte, error) {
	s.html = html
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.7"), nil
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := newStoreBackend()
	idem := &memoryIdempotency{keys: map[string]bool{}}
	auditor := &memoryAuditor{}
	renderer := &stubRenderer{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), backend, NewSelectionStore(client, time.Hour), idem).
		WithAuditor(auditor).
		WithPDFRenderer(renderer)
	r := chi.NewRouter()
	r.Route("/lots", h.MountRoutes)
	return fixture{router: r, backend: backend, idempotency: idem, auditor: auditor, renderer: renderer}
}

func (f fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLotScenario(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/lots", `{"rma_ids":[11,12,13]}`, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lot Lot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lot))
	require.Equal(t, StatePending, lot.State)

	rec = f.do(t, http.MethodPost, "/lots", `{"rma_ids":[11]}`, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, f.backend.inserted, 1)

	rec = f.do(t, http.MethodPost, "/lots/1/confirm", "", shared.OperatorHeader, "ana")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/lots/1/confirm", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/lots/selections", `{"lot_ids":[1]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sel struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))

	rec = f.do(t, http.MethodGet, "/lots/selections/"+sel.ID+"/matrix", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m Matrix
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.Equal(t, int64(8), m.GrandTotal)
	require.Equal(t, []string{"OP1", "OP2", NoOPLot}, m.OPs)

	rec = f.do(t, http.MethodGet, "/lots/selections/"+sel.ID+"/matrix.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "SKU,OP1,OP2,SIN OP,Total"))

	rec = f.do(t, http.MethodDelete, "/lots/1", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "acknowledge=true")

	rec = f.do(t, http.MethodDelete, "/lots/1?acknowledge=true", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/lots/1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Len(t, f.auditor.records, 2)
	require.Equal(t, "lot.confirm", f.auditor.records[0].Action)
	require.Equal(t, "ana", f.auditor.records[0].Actor)
	require.Equal(t, "1", f.auditor.records[0].EntityID)
	require.Equal(t, "lot.delete", f.auditor.records[1].Action)
	require.Equal(t, true, f.auditor.records[1].Meta["was_confirmed"])
}

func TestHandlerListPaginates(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`{"rma_ids":[11]}`, `{"rma_ids":[12]}`, `{"rma_ids":[13]}`} {
		rec := f.do(t, http.MethodPost, "/lots", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/lots?page=2&per_page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Lots       []Lot             `json:"lots"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Lots, 1)
	require.Equal(t, int64(3), payload.Lots[0].ID)
	require.Equal(t, shared.Pagination{Page: 2, PerPage: 2, Total: 3, TotalPages: 2}, payload.Pagination)
}

func TestHandlerCreateFailureReleasesKey(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/lots", `{"rma_ids":[99]}`, "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, f.idempotency.keys["k-2"])

	rec = f.do(t, http.MethodPost, "/lots", `{"rma_ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, f.backend.inserted)
}

func TestHandlerUnknownSelection(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/lots/selections/nope/matrix", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/lots/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerMatrixDropsDeletedLots(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/lots", `{"rma_ids":[11]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/lots", `{"rma_ids":[12,13]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/lots/selections", `{"lot_ids":[1,2]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sel struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))

	rec = f.do(t, http.MethodDelete, "/lots/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/lots/selections/"+sel.ID+"/matrix", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "1", rec.Header().Get(DroppedLotsHeader))
	var m Matrix
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.Equal(t, int64(6), m.GrandTotal)
	require.Equal(t, []string{"OP2", NoOPLot}, m.OPs)

	rec = f.do(t, http.MethodGet, "/lots/selections/"+sel.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var members struct {
		LotIDs []int64 `json:"lot_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	require.Equal(t, []int64{2}, members.LotIDs)

	rec = f.do(t, http.MethodGet, "/lots/selections/"+sel.ID+"/matrix.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(DroppedLotsHeader))
}

func TestHandlerMatrixPDF(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/lots", `{"rma_ids":[11,12]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/lots/selections", `{"lot_ids":[1]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sel struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))

	rec = f.do(t, http.MethodGet, "/lots/selections/"+sel.ID+"/matrix.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, "%PDF-1.7", rec.Body.String())
	require.Contains(t, string(f.renderer.html), "<table")

	f.renderer.err = errors.New("gotenberg down")
	rec = f.do(t, http.MethodGet, "/lots/selections/"+sel.ID+"/matrix.pdf", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerMatrixPDFWithoutRenderer(t *testing.T) {
	h := NewHandler(nil, newStoreBackend(), nil, nil)
	r := chi.NewRouter()
	r.Route("/lots", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lots/selections/any/matrix.pdf", nil))
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}
