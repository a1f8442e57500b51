// Package api exposes the engine's operations over a thin chi router.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/SuessVilliano/LIV8-OS-sub003/internal/agentstate"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/dispatch"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/orchestrator"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orch       *orchestrator.Orchestrator
	dispatcher *dispatch.Dispatcher
	agents     *agentstate.Agents
	logger     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(orch *orchestrator.Orchestrator, dispatcher *dispatch.Dispatcher, agents *agentstate.Agents, logger *zap.Logger) *Handler {
	return &Handler{orch: orch, dispatcher: dispatcher, agents: agents, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Post("/init", h.initTenant)
			r.Post("/chat", h.chat)
			r.Post("/plan", h.planAction)
			r.Get("/status", h.status)
			r.Get("/staff", h.staff)
			r.Route("/agents/{agentType}", func(r chi.Router) {
				r.Post("/chat", h.agentChat)
				r.Post("/execute", h.executeAction)
				r.Post("/configure", h.configureAgent)
				r.Post("/pause", h.pauseAgent)
				r.Post("/resume", h.resumeAgent)
				r.Get("/status", h.agentStatus)
				r.Get("/metrics", h.agentMetrics)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) initTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
		CRMType     string `json:"crm_type"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	welcome, err := h.orch.Init(r.Context(), chi.URLParam(r, "tenantID"), req.DisplayName, req.CRMType)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"message": welcome})
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string         `json:"message"`
		Context map[string]any `json:"context"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.orch.Chat(r.Context(), chi.URLParam(r, "tenantID"), req.Message, req.Context)
	if err != nil {
		h.fail(w, statusFor(err), err)
		return
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) planAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	plan, err := h.orch.PlanAction(r.Context(), chi.URLParam(r, "tenantID"), req.Action)
	if err != nil {
		h.fail(w, statusFor(err), err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"plan": plan})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	view, err := h.orch.Status(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, statusFor(err), err)
		return
	}
	h.respond(w, http.StatusOK, view)
}

func (h *Handler) staff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.dispatcher.StaffStatus(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"staff": staff})
}

func (h *Handler) agentChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string         `json:"message"`
		Context map[string]any `json:"context"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.dispatcher.Chat(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "agentType"), req.Message, req.Context)
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) executeAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string         `json:"action"`
		Params map[string]any `json:"params"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	res := h.dispatcher.ExecuteAction(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "agentType"), req.Action, req.Params)
	h.respond(w, http.StatusOK, res)
}

func (h *Handler) configureAgent(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.agents.Configure(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "agentType"), req); err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "configured"})
}

func (h *Handler) pauseAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.agents.Pause(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "agentType")); err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *Handler) resumeAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.agents.Resume(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "agentType")); err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "active"})
}

func (h *Handler) agentStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.agents.Status(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "agentType"))
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, view)
}

func (h *Handler) agentMetrics(w http.ResponseWriter, r *http.Request) {
	view, err := h.agents.Metrics(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "agentType"))
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	h.respond(w, http.StatusOK, view)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, err error) {
	h.respond(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrNoPlan):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
