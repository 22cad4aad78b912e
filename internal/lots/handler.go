package lots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rmadesk/rmadesk/internal/export"
	"github.com/rmadesk/rmadesk/internal/platform/httpx"
	"github.com/rmadesk/rmadesk/internal/shared"
)

const idempotencyModule = "lots"

// Store is what the handler needs from persistence.
type Store interface {
	Backend
	Source
}

// Selections manages working selections.
type Selections interface {
	Create(ctx context.Context, ids []int64) (string, error)
	Add(ctx context.Context, selectionID string, ids ...int64) error
	Remove(ctx context.Context, selectionID string, id int64) error
	Members(ctx context.Context, selectionID string) ([]int64, error)
}

// Idempotency guards lot creation against double submits.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// PDFRenderer turns an HTML page into a PDF document.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// Handler exposes lot endpoints.
type Handler struct {
	logger      *slog.Logger
	store       Store
	selections  Selections
	idempotency Idempotency
	auditor     shared.Auditor
	renderer    PDFRenderer
	validate    *validator.Validate
	now         func() time.Time
}

// NewHandler constructs the lots handler.
func NewHandler(logger *slog.Logger, store Store, selections Selections, idempotency Idempotency) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		store:       store,
		selections:  selections,
		idempotency: idempotency,
		auditor:     shared.NopAuditor{},
		validate:    validator.New(),
		now:         time.Now,
	}
}

// WithAuditor records confirm, revert and delete in the audit trail.
func (h *Handler) WithAuditor(auditor shared.Auditor) *Handler {
	if auditor != nil {
		h.auditor = auditor
	}
	return h
}

// WithPDFRenderer enables the matrix.pdf download.
func (h *Handler) WithPDFRenderer(renderer PDFRenderer) *Handler {
	h.renderer = renderer
	return h
}

// MountRoutes registers lot routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/report", h.handleReport)
	r.Route("/selections", func(r chi.Router) {
		r.Post("/", h.handleCreateSelection)
		r.Get("/{sid}", h.handleSelection)
		r.Post("/{sid}/lots", h.handleAddToSelection)
		r.Delete("/{sid}/lots/{id}", h.handleRemoveFromSelection)
		r.Get("/{sid}/matrix", h.handleMatrix)
		r.Get("/{sid}/matrix.xlsx", h.handleMatrixXLSX)
		r.Get("/{sid}/matrix.csv", h.handleMatrixCSV)
		r.Get("/{sid}/matrix.pdf", h.handleMatrixPDF)
	})
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/confirm", h.handleConfirm)
	r.Post("/{id}/revert", h.handleRevert)
	r.Delete("/{id}", h.handleDelete)
}

type createLotRequest struct {
	RMAIDs []int64 `json:"rma_ids" validate:"dive,gt=0"`
}

type selectionRequest struct {
	LotIDs []int64 `json:"lot_ids" validate:"dive,gt=0"`
}

func (h *Handler) registry(ctx context.Context) (*Registry, error) {
	reg := NewRegistry(h.store)
	if err := reg.LoadFrom(ctx, h.store); err != nil {
		return nil, err
	}
	return reg, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registry(r.Context())
	if err != nil {
		h.fail(w, "load lots", err)
		return
	}
	all := reg.List()
	page := shared.PaginationFromQuery(r.URL.Query(), len(all))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": all[start:end], "pagination": page})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.StockReport(r.Context())
	if err != nil {
		h.fail(w, "load stock report", shared.BackendFailure("lots.stock_report", err))
		return
	}
	if rows == nil {
		rows = []StockReportRow{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := r.Context()
	key := shared.RequestKey(r.Header.Get("Idempotency-Key"))
	if err := h.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		httpx.RespondError(w, err)
		return
	}

	lot, err := h.createLot(ctx, req.RMAIDs)
	if err != nil {
		if delErr := h.idempotency.Delete(ctx, key); delErr != nil {
			h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
		}
		h.fail(w, "create lot", err)
		return
	}
	h.logger.Info("lot created", slog.Int64("lot_id", lot.ID), slog.Int("items", len(lot.Items)))
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) createLot(ctx context.Context, rmaIDs []int64) (Lot, error) {
	if len(rmaIDs) == 0 {
		return Lot{}, shared.ErrEmptySelection
	}
	report, err := h.store.StockReport(ctx)
	if err != nil {
		return Lot{}, shared.BackendFailure("lots.stock_report", err)
	}
	rows, err := SelectRows(report, rmaIDs)
	if err != nil {
		return Lot{}, err
	}
	reg := NewRegistry(h.store)
	return reg.Create(ctx, rows)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lotID(w, r)
	if !ok {
		return
	}
	reg, err := h.registry(r.Context())
	if err != nil {
		h.fail(w, "load lots", err)
		return
	}
	lot, err := reg.Get(id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "lot.confirm", (*Registry).Confirm)
}

func (h *Handler) handleRevert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "lot.revert", (*Registry).Revert)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(*Registry, context.Context, int64) (Lot, error)) {
	id, ok := h.lotID(w, r)
	if !ok {
		return
	}
	reg, err := h.registry(r.Context())
	if err != nil {
		h.fail(w, "load lots", err)
		return
	}
	lot, err := fn(reg, r.Context(), id)
	if err != nil {
		h.fail(w, action, err)
		return
	}
	h.audit(r, action, id, map[string]any{"state": lot.State, "items": len(lot.Items)})
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lotID(w, r)
	if !ok {
		return
	}
	reg, err := h.registry(r.Context())
	if err != nil {
		h.fail(w, "load lots", err)
		return
	}
	warn, err := reg.NeedsDeleteWarning(id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if ack, _ := strconv.ParseBool(r.URL.Query().Get("acknowledge")); warn && !ack {
		httpx.RespondError(w, fmt.Errorf("%w: lot %d is confirmed; deleting it does not undo the confirmation, repeat with acknowledge=true", httpx.ErrConflict, id))
		return
	}
	if err := reg.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete lot", err)
		return
	}
	h.logger.Info("lot deleted", slog.Int64("lot_id", id), slog.Bool("was_confirmed", warn))
	h.audit(r, "lot.delete", id, map[string]any{"was_confirmed": warn})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sid, err := h.selections.Create(r.Context(), req.LotIDs)
	if err != nil {
		h.fail(w, "create selection", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": sid})
}

func (h *Handler) handleSelection(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	ids, err := h.selections.Members(r.Context(), sid)
	if err != nil {
		h.fail(w, "read selection", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": sid, "lot_ids": ids})
}

func (h *Handler) handleAddToSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.selections.Add(r.Context(), chi.URLParam(r, "sid"), req.LotIDs...); err != nil {
		h.fail(w, "add to selection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveFromSelection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lotID(w, r)
	if !ok {
		return
	}
	if err := h.selections.Remove(r.Context(), chi.URLParam(r, "sid"), id); err != nil {
		h.fail(w, "remove from selection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DroppedLotsHeader lists lot ids pruned from a selection because they no
// longer exist.
const DroppedLotsHeader = "X-Dropped-Lots"

// matrix projects the selection's lots. Ids of deleted lots are removed from
// the selection and reported in DroppedLotsHeader.
func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) (Matrix, error) {
	sid := chi.URLParam(r, "sid")
	ids, err := h.selections.Members(r.Context(), sid)
	if err != nil {
		return Matrix{}, err
	}
	reg, err := h.registry(r.Context())
	if err != nil {
		return Matrix{}, err
	}
	known, missing := reg.Partition(ids)
	if len(missing) > 0 {
		dropped := make([]string, len(missing))
		for i, id := range missing {
			dropped[i] = strconv.FormatInt(id, 10)
			if err := h.selections.Remove(r.Context(), sid, id); err != nil {
				h.logger.Warn("prune selection", slog.String("selection", sid), slog.Int64("lot_id", id), slog.Any("error", err))
			}
		}
		h.logger.Info("dropped deleted lots from selection", slog.String("selection", sid), slog.Any("lot_ids", missing))
		w.Header().Set(DroppedLotsHeader, strings.Join(dropped, ","))
	}
	return reg.Matrix(known)
}

func (h *Handler) handleMatrix(w http.ResponseWriter, r *http.Request) {
	m, err := h.matrix(w, r)
	if err != nil {
		h.fail(w, "build matrix", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleMatrixXLSX(w http.ResponseWriter, r *http.Request) {
	m, err := h.matrix(w, r)
	if err != nil {
		h.fail(w, "build matrix", err)
		return
	}
	w.Header().Set("Content-Type", export.XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="informe.xlsx"`)
	if err := export.WriteMatrixXLSX(w, m.Table()); err != nil {
		h.logger.Error("write matrix xlsx", slog.Any("error", err))
	}
}

func (h *Handler) handleMatrixCSV(w http.ResponseWriter, r *http.Request) {
	m, err := h.matrix(w, r)
	if err != nil {
		h.fail(w, "build matrix", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="informe.csv"`)
	if err := export.WriteMatrixCSV(w, m.Table()); err != nil {
		h.logger.Error("write matrix csv", slog.Any("error", err))
	}
}

func (h *Handler) handleMatrixPDF(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "pdf rendering is not configured")
		return
	}
	m, err := h.matrix(w, r)
	if err != nil {
		h.fail(w, "build matrix", err)
		return
	}
	var page bytes.Buffer
	title := "Informe " + chi.URLParam(r, "sid")
	if err := export.WriteMatrixHTML(&page, title, m.Table(), h.now()); err != nil {
		h.fail(w, "render matrix html", err)
		return
	}
	pdf, err := h.renderer.RenderHTML(r.Context(), page.Bytes())
	if err != nil {
		h.fail(w, "render matrix pdf", shared.BackendFailure("lots.matrix_pdf", err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="informe.pdf"`)
	_, _ = w.Write(pdf)
}

func (h *Handler) lotID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid lot id", httpx.ErrValidation))
		return 0, false
	}
	return id, true
}

func (h *Handler) audit(r *http.Request, action string, id int64, meta map[string]any) {
	err := h.auditor.Record(r.Context(), shared.AuditLog{
		Actor:    shared.Operator(r),
		Action:   action,
		Entity:   "lot",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, shared.ErrBackendUnavailable) {
		h.logger.Error(action, slog.Any("error", err))
	} else {
		h.logger.Warn(action, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
