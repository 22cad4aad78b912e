package discounts

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rmadesk/rmadesk/internal/platform/httpx"
	"github.com/rmadesk/rmadesk/internal/shared"
)

// Handler exposes discount sale registration.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	kits     KitSource
	auditor  shared.Auditor
	validate *validator.Validate
}

// NewHandler constructs the discounts handler.
func NewHandler(logger *slog.Logger, service *Service, kits KitSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, kits: kits, auditor: shared.NopAuditor{}, validate: validator.New()}
}

// WithAuditor records cancelled-order cleanups in the audit trail.
func (h *Handler) WithAuditor(auditor shared.Auditor) *Handler {
	if auditor != nil {
		h.auditor = auditor
	}
	return h
}

// MountRoutes registers discount routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleRegister)
	r.Get("/kits", h.handleKits)
}

type registerRequest struct {
	Orders []Order `json:"orders" validate:"required,min=1,dive"`
	// DeleteCancelled answers the cleanup prompt for sales already registered
	// under orders that are now cancelled.
	DeleteCancelled bool `json:"delete_cancelled"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Register(r.Context(), req.Orders, Always(req.DeleteCancelled))
	if err != nil {
		h.logger.Error("register discount sales", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if result.Removed > 0 {
		err := h.auditor.Record(r.Context(), shared.AuditLog{
			Actor:    shared.Operator(r),
			Action:   "sales.cleanup",
			Entity:   "discount_sales",
			EntityID: strings.Join(result.RegisteredCancelled, ","),
			Meta:     map[string]any{"removed": result.Removed},
		})
		if err != nil {
			h.logger.Warn("audit record", slog.String("action", "sales.cleanup"), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleKits(w http.ResponseWriter, r *http.Request) {
	rules, err := h.kits.KitRules(r.Context())
	if err != nil {
		h.logger.Error("load kit rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	catalog, err := h.service.LoadCatalog(r.Context())
	if err != nil {
		h.logger.Error("load catalog", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	problems := ValidateKitRules(rules, catalog)
	if problems == nil {
		problems = []KitProblem{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"kits": rules, "problems": problems})
}
