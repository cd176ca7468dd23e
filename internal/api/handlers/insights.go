package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formguard/internal/billing"
	"formguard/internal/core"
	"formguard/internal/types"
)

// InsightRepo lists and counts stored insights.
type InsightRepo interface {
	ListByForm(ctx context.Context, formID, accountID string) ([]*types.Insight, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// InsightQueue accepts generation jobs.
type InsightQueue interface {
	Enqueue(ctx context.Context, accountID, formID string) (*types.InsightJob, error)
}

// InsightHandler lists insights and requests new ones.
type InsightHandler struct {
	forms    FormLookup
	insights InsightRepo
	queue    InsightQueue
	plans    billing.PlanRegistry
	logger   *slog.Logger
}

// NewInsightHandler creates an InsightHandler.
func NewInsightHandler(forms FormLookup, insights InsightRepo, queue InsightQueue, plans billing.PlanRegistry, logger *slog.Logger) *InsightHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if plans == nil {
		plans = billing.NewStaticPlanRegistry()
	}
	return &InsightHandler{forms: forms, insights: insights, queue: queue, plans: plans, logger: logger}
}

// RegisterRoutes mounts insight routes on the /v1 router.
func (h *InsightHandler) RegisterRoutes(r chi.Router) {
	r.Get("/forms/{formId}/insights", h.List)
	r.Post("/forms/{formId}/insights", h.Generate)
}

// List handles GET /v1/forms/{formId}/insights.
func (h *InsightHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	formID := chi.URLParam(r, "formId")
	form, err := h.forms.Get(r.Context(), formID, actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if form == nil {
		core.Error(w, r, formNotFound())
		return
	}

	list, err := h.insights.ListByForm(r.Context(), formID, actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]any{"insights": list})
}

// Generate handles POST /v1/forms/{formId}/insights. The plan gate runs
// here and again in the worker.
func (h *InsightHandler) Generate(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	ctx := r.Context()

	used, err := h.insights.CountByAccount(ctx, actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := billing.CheckInsightQuota(h.plans.LimitsFor(actor.Plan), used); err != nil {
		core.Error(w, r, err)
		return
	}

	formID := chi.URLParam(r, "formId")
	form, err := h.forms.Get(ctx, formID, actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if form == nil {
		core.Error(w, r, formNotFound())
		return
	}

	job, err := h.queue.Enqueue(ctx, actor.AccountID, form.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, map[string]any{"status": "queued", "job": job})
}
