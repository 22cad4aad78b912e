package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/rmadesk/rmadesk/internal/audit/http"
	"github.com/rmadesk/rmadesk/internal/discounts"
	"github.com/rmadesk/rmadesk/internal/inventory"
	"github.com/rmadesk/rmadesk/internal/lots"
	"github.com/rmadesk/rmadesk/internal/observability"
	"github.com/rmadesk/rmadesk/internal/platform/httpx"
	"github.com/rmadesk/rmadesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	InventoryHandler *inventory.Handler
	LotsHandler      *lots.Handler
	DiscountsHandler *discounts.Handler
	JobHandler       *jobs.Handler
	AuditHandler     *audithttp.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with rmadesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.InventoryHandler != nil {
		r.Route("/stock", params.InventoryHandler.MountRoutes)
	}
	if params.LotsHandler != nil {
		r.Route("/lots", params.LotsHandler.MountRoutes)
	}
	if params.DiscountsHandler != nil {
		r.Route("/discounts", params.DiscountsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	return r
}
