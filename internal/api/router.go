// Package api exposes a dashboard session over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/dashboard"
	"github.com/sells-group/riskgrid/internal/scoring"
)

type handler struct {
	session *dashboard.Session
}

// NewRouter returns the HTTP handler for session. allowedOrigins feeds the
// CORS policy; empty means any origin.
func NewRouter(session *dashboard.Session, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	h := &handler{session: session}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/districts/{name}/load", h.loadDistrict)
		r.Get("/snapshot", h.snapshot)
		r.Get("/scores", h.scores)
		r.Get("/top", h.top)
		r.Get("/stats", h.stats)
		r.Put("/weights", h.applyWeights)
		r.Put("/mode", h.setMode)
		r.Post("/highlight", h.highlight)
		r.Get("/styles", h.styles)
		r.Get("/legend", h.legend)
		r.Get("/features/{gid}/popup", h.popup)
	})

	return r
}

func (h *handler) loadDistrict(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, err := h.session.Load(r.Context(), name)
	if err != nil {
		zap.L().Error("api: load district failed", zap.String("district", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load failed", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *handler) scores(w http.ResponseWriter, _ *http.Request) {
	scores := h.session.Scores()
	if scores == nil {
		scores = []scoring.ScoredCell{}
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *handler) top(w http.ResponseWriter, _ *http.Request) {
	top := h.session.Snapshot().Top
	if top == nil {
		top = []scoring.RankedEntry{}
	}
	writeJSON(w, http.StatusOK, top)
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot().Summary)
}

func (h *handler) applyWeights(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	snap, err := h.session.ApplyWeights(r.Context(), scoring.ParseWeights(raw))
	if errors.Is(err, dashboard.ErrNoDistrict) {
		writeError(w, http.StatusConflict, "no district loaded", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "apply weights failed", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type modeRequest struct {
	Overall   *bool   `json:"overall"`
	Attribute *string `json:"attribute"`
}

func (h *handler) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Overall == nil && req.Attribute == nil {
		writeError(w, http.StatusBadRequest, "overall or attribute is required", nil)
		return
	}

	if req.Attribute != nil {
		if _, err := h.session.SetAttribute(*req.Attribute); err != nil {
			writeError(w, http.StatusBadRequest, "invalid attribute", err)
			return
		}
	}
	if req.Overall != nil {
		h.session.ShowOverall(*req.Overall)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.session.Snapshot().Mode,
		"legend": h.session.Legend(),
	})
}

func (h *handler) highlight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GID string `json:"gid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Highlight(req.GID))
}

func (h *handler) styles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Styles())
}

func (h *handler) legend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Legend())
}

func (h *handler) popup(w http.ResponseWriter, r *http.Request) {
	gid := chi.URLParam(r, "gid")
	text, ok := h.session.Popup(gid)
	if !ok {
		writeError(w, http.StatusNotFound, "feature not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"gid": gid, "popup": text})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]string{"error": msg}
	if err != nil {
		body["message"] = err.Error()
	}
	writeJSON(w, status, body)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
