package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/receipt-generator/api/controllers"
	"github.com/angelmondragon/receipt-generator/api/middleware"
	"github.com/angelmondragon/receipt-generator/pkg/config"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

// NewRouter wires the helpdesk API. metricsHandler is mounted on /metrics when
// non-nil. /api/v1 requires an operator token once cfg.Auth carries a secret.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	helpdeskService controllers.HelpdeskService,
	metricsHandler http.Handler,
	checks ...controllers.ReadinessCheck,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enabled() {
			r.Use(middleware.Auth(cfg.Auth, logg))
		}
		r.Route("/receipts", func(r chi.Router) {
			r.Post("/preview", controllers.ReceiptPreview(helpdeskService, logg))
			r.Get("/{receiptId}", controllers.ReceiptGet(helpdeskService, logg))
		})
		r.Route("/receipt-errors", func(r chi.Router) {
			r.Get("/", controllers.ReceiptErrorList(helpdeskService, logg))
			r.Get("/{bizEventId}", controllers.ReceiptErrorGet(helpdeskService, logg))
		})
	})

	return r
}
