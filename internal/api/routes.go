package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if h.cfg.RateLimitPerMinute > 0 {
			r.Use(RateLimit(h.cfg.RateLimitPerMinute))
		}
		if h.cfg.JWTSecret != "" {
			r.Use(JWTAuthenticator([]byte(h.cfg.JWTSecret)))
		}

		r.Get("/pipeline/stages", h.ListStages)
		r.Get("/work-orders", h.ListWorkOrders)
		r.Post("/work-orders", h.CreateWorkOrder)

		r.Route("/work-orders/{workOrderId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetWorkOrder(w, r, chi.URLParam(r, "workOrderId"))
			})
			r.Get("/pipeline", func(w http.ResponseWriter, r *http.Request) {
				h.GetPipeline(w, r, chi.URLParam(r, "workOrderId"))
			})
			r.Post("/advance", func(w http.ResponseWriter, r *http.Request) {
				h.AdvanceWorkOrder(w, r, chi.URLParam(r, "workOrderId"))
			})

			r.Post("/attachments", func(w http.ResponseWriter, r *http.Request) {
				h.UploadAttachment(w, r, chi.URLParam(r, "workOrderId"))
			})
			r.Get("/attachments/{attachmentId}/content", func(w http.ResponseWriter, r *http.Request) {
				h.DownloadAttachment(w, r, chi.URLParam(r, "workOrderId"), chi.URLParam(r, "attachmentId"))
			})
			r.Post("/attachments/{attachmentId}/approval", func(w http.ResponseWriter, r *http.Request) {
				h.SubmitApproval(w, r, chi.URLParam(r, "workOrderId"), chi.URLParam(r, "attachmentId"))
			})

			r.Put("/stations/{stage}", func(w http.ResponseWriter, r *http.Request) {
				h.UpdateStationStatus(w, r, chi.URLParam(r, "workOrderId"), chi.URLParam(r, "stage"))
			})

			r.Get("/checklist/{stage}", func(w http.ResponseWriter, r *http.Request) {
				h.ListChecklist(w, r, chi.URLParam(r, "workOrderId"), chi.URLParam(r, "stage"))
			})
			r.Post("/checklist/{stage}", func(w http.ResponseWriter, r *http.Request) {
				h.CreateChecklistItem(w, r, chi.URLParam(r, "workOrderId"), chi.URLParam(r, "stage"))
			})
			r.Post("/checklist/{stage}/items/{itemId}/toggle", func(w http.ResponseWriter, r *http.Request) {
				h.ToggleChecklistItem(w, r, chi.URLParam(r, "workOrderId"), chi.URLParam(r, "itemId"))
			})

			r.Get("/traveler", func(w http.ResponseWriter, r *http.Request) {
				h.ListTraveler(w, r, chi.URLParam(r, "workOrderId"))
			})
			r.Post("/traveler", func(w http.ResponseWriter, r *http.Request) {
				h.AddTravelerNote(w, r, chi.URLParam(r, "workOrderId"))
			})
		})
	})

	return r
}
