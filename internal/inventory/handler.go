package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rmadesk/rmadesk/internal/export"
	"github.com/rmadesk/rmadesk/internal/platform/httpx"
	"github.com/rmadesk/rmadesk/internal/shared"
)

// Store is what the handler needs from persistence.
type Store interface {
	Backend
	ProductSource
}

// Handler wires HTTP endpoints for the stock ledger. Every request builds its
// own Ledger from a fresh product load.
type Handler struct {
	logger         *slog.Logger
	store          Store
	validate       *validator.Validate
	auditor        shared.Auditor
	maxImportBytes int64
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, store Store, maxImportBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxImportBytes <= 0 {
		maxImportBytes = 10 << 20
	}
	return &Handler{logger: logger, store: store, validate: validator.New(), auditor: shared.NopAuditor{}, maxImportBytes: maxImportBytes}
}

// WithAuditor records count resets and account clears in the audit trail.
func (h *Handler) WithAuditor(auditor shared.Auditor) *Handler {
	if auditor != nil {
		h.auditor = auditor
	}
	return h
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.handleSearch)
	r.Get("/products/{sku}", h.handleExact)
	r.Put("/counts", h.handleSaveCounts)
	r.Post("/counts/reset", h.handleResetCounts)
	r.Put("/accounts/{account}", h.handleApplyAccount)
	r.Post("/accounts/{account}/import", h.handleImportAccount)
	r.Delete("/accounts/{account}", h.handleClearAccount)
	r.Get("/variance", h.handleVariance)
	r.Get("/variance.xlsx", h.handleVarianceXLSX)
	r.Get("/variance.csv", h.handleVarianceCSV)
}

type countInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Count     *int64 `json:"count" validate:"omitempty,gte=0"`
	Packages  *int64 `json:"packages" validate:"omitempty,gte=0"`
	Loose     int64  `json:"loose" validate:"gte=0"`
}

type saveCountsRequest struct {
	Counts      []countInput `json:"counts" validate:"required,min=1,dive"`
	ChangedOnly bool         `json:"changed_only"`
}

type confirmRequest struct {
	Confirm bool `json:"confirm" validate:"required"`
}

type applyAccountRequest struct {
	Stock map[string]int64 `json:"stock" validate:"required"`
}

type importResponse struct {
	Result  ImportResult `json:"result"`
	Summary string       `json:"summary"`
	Sheet   *SheetStats  `json:"sheet,omitempty"`
	DryRun  bool         `json:"dry_run,omitempty"`
}

func (h *Handler) ledger(ctx context.Context) (*Ledger, error) {
	ledger := NewLedger(h.store)
	if err := ledger.LoadFrom(ctx, h.store); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.ledger(r.Context())
	if err != nil {
		h.fail(w, "load products", err)
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		httpx.JSON(w, http.StatusOK, map[string]any{"match": "all", "products": ledger.Products()})
		return
	}
	if p, ok := ledger.FindExact(q); ok {
		httpx.JSON(w, http.StatusOK, map[string]any{"match": "exact", "products": []Product{p}})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"match": "approx", "products": ledger.FindApprox(q)})
}

func (h *Handler) handleExact(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.ledger(r.Context())
	if err != nil {
		h.fail(w, "load products", err)
		return
	}
	sku := chi.URLParam(r, "sku")
	p, ok := ledger.FindExact(sku)
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("no product with sku %q", sku))
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleSaveCounts(w http.ResponseWriter, r *http.Request) {
	var req saveCountsRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ledger, err := h.ledger(r.Context())
	if err != nil {
		h.fail(w, "load products", err)
		return
	}
	for _, c := range req.Counts {
		var setErr error
		if c.Packages != nil {
			setErr = ledger.SetCountFromPackages(c.ProductID, *c.Packages, c.Loose)
		} else {
			setErr = ledger.SetPhysicalCount(c.ProductID, c.Count)
		}
		if setErr != nil {
			if errors.Is(setErr, ErrInvalidCount) {
				setErr = fmt.Errorf("%w: %v", httpx.ErrValidation, setErr)
			}
			httpx.RespondError(w, setErr)
			return
		}
	}
	saved, err := ledger.SaveCounts(r.Context(), req.ChangedOnly)
	if err != nil {
		h.fail(w, "save counts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"saved": saved})
}

func (h *Handler) handleResetCounts(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: resetting all counts must be confirmed", httpx.ErrValidation))
		return
	}
	ledger, err := h.ledger(r.Context())
	if err != nil {
		h.fail(w, "load products", err)
		return
	}
	if err := ledger.ResetAllCounts(r.Context()); err != nil {
		h.fail(w, "reset counts", err)
		return
	}
	h.logger.Info("physical counts reset", slog.Int("products", len(ledger.Products())))
	h.audit(r, "counts.reset", "all", map[string]any{"products": len(ledger.Products())})
	httpx.JSON(w, http.StatusOK, map[string]any{"reset": len(ledger.Products())})
}

func (h *Handler) handleApplyAccount(w http.ResponseWriter, r *http.Request) {
	account, err := ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	var req applyAccountRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ledger, err := h.ledger(r.Context())
	if err != nil {
		h.fail(w, "load products", err)
		return
	}
	result, err := ledger.ApplyAccountStock(r.Context(), account, req.Stock)
	if err != nil {
		h.fail(w, "apply account stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, importResponse{Result: result, Summary: result.Summary()})
}

func (h *Handler) handleImportAccount(w http.ResponseWriter, r *http.Request) {
	account, err := ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImportBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: workbook upload: %v", httpx.ErrValidation, err))
		return
	}
	defer file.Close()

	stock, stats, err := ParseStockSheet(file)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	result, err := ImportAccountStock(r.Context(), h.store, account, stock, dryRun)
	if err != nil {
		h.fail(w, "import account stock", err)
		return
	}
	h.logger.Info("account stock import",
		slog.String("account", string(account)),
		slog.Int("applied", result.Applied),
		slog.Int("skipped", result.Skipped),
		slog.Int("malformed", stats.Malformed),
		slog.Bool("dry_run", dryRun))
	httpx.JSON(w, http.StatusOK, importResponse{Result: result, Summary: result.Summary(), Sheet: &stats, DryRun: dryRun})
}

func (h *Handler) handleClearAccount(w http.ResponseWriter, r *http.Request) {
	account, err := ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		httpx.RespondError(w, fmt.Errorf("%w: clearing account %s must be confirmed", httpx.ErrValidation, account))
		return
	}
	ledger, err := h.ledger(r.Context())
	if err != nil {
		h.fail(w, "load products", err)
		return
	}
	if err := ledger.ClearAccount(r.Context(), account); err != nil {
		h.fail(w, "clear account", err)
		return
	}
	h.audit(r, "account.clear", string(account), nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) varianceRows(r *http.Request) ([]VarianceRow, error) {
	ledger, err := h.ledger(r.Context())
	if err != nil {
		return nil, err
	}
	q := r.URL.Query()
	counted, _ := strconv.ParseBool(q.Get("counted_only"))
	changed, _ := strconv.ParseBool(q.Get("changed_only"))
	return ledger.VarianceRows(VarianceFilter{Block: q.Get("block"), CountedOnly: counted, ChangedOnly: changed}), nil
}

func (h *Handler) handleVariance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.varianceRows(r)
	if err != nil {
		h.fail(w, "variance rows", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleVarianceXLSX(w http.ResponseWriter, r *http.Request) {
	rows, err := h.varianceRows(r)
	if err != nil {
		h.fail(w, "variance rows", err)
		return
	}
	w.Header().Set("Content-Type", export.XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="variance.xlsx"`)
	if err := export.WriteVarianceXLSX(w, toExportRows(rows)); err != nil {
		h.logger.Error("write variance xlsx", slog.Any("error", err))
	}
}

func (h *Handler) handleVarianceCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.varianceRows(r)
	if err != nil {
		h.fail(w, "variance rows", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="variance.csv"`)
	if err := export.WriteVarianceCSV(w, toExportRows(rows)); err != nil {
		h.logger.Error("write variance csv", slog.Any("error", err))
	}
}

func (h *Handler) audit(r *http.Request, action, entityID string, meta map[string]any) {
	err := h.auditor.Record(r.Context(), shared.AuditLog{
		Actor:    shared.Operator(r),
		Action:   action,
		Entity:   "stock",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	h.logger.Error(action, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func toExportRows(rows []VarianceRow) []export.VarianceRow {
	out := make([]export.VarianceRow, len(rows))
	for i, r := range rows {
		out[i] = export.VarianceRow{
			SKU:           r.SKU,
			Block:         r.Block,
			StockA:        r.StockA,
			StockB:        r.StockB,
			PhysicalCount: r.PhysicalCount,
			Variance:      r.Variance,
		}
	}
	return out
}
