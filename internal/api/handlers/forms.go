package handlers

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"formguard/internal/billing"
	"formguard/internal/core"
	"formguard/internal/types"
)

// maxEndpointAttempts bounds endpoint id regeneration on collision.
const maxEndpointAttempts = 3

// endpointAlphabet excludes look-alike characters so ids survive being read aloud.
const endpointAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const endpointIDLength = 10

// FormRepo is the form storage contract used by FormHandler.
type FormRepo interface {
	Create(ctx context.Context, accountID, endpointID, name string, settings types.FormSettings) (*types.Form, error)
	Get(ctx context.Context, formID, accountID string) (*types.Form, error)
	List(ctx context.Context, accountID string) ([]*types.Form, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	Update(ctx context.Context, formID, accountID string, patch types.FormPatch) (types.MutationResult, error)
	MergeSettings(ctx context.Context, formID, accountID string, patch map[string]any) (types.MutationResult, error)
	Delete(ctx context.Context, formID, accountID string) (types.MutationResult, error)
}

// EndpointIDGenerator produces public endpoint ids for new forms.
type EndpointIDGenerator func() (string, error)

// RandomEndpointID returns a random id over endpointAlphabet.
func RandomEndpointID() (string, error) {
	buf := make([]byte, endpointIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = endpointAlphabet[int(b)%len(endpointAlphabet)]
	}
	return string(buf), nil
}

// CreateFormRequest is the body of POST /v1/forms.
type CreateFormRequest struct {
	Name     string             `json:"name" validate:"required,max=120"`
	Settings types.FormSettings `json:"settings"`
}

// FormHandler serves form CRUD.
type FormHandler struct {
	forms      FormRepo
	plans      billing.PlanRegistry
	validator  *core.Validator
	endpointID EndpointIDGenerator
	logger     *slog.Logger
}

// NewFormHandler creates a FormHandler. A nil generator uses RandomEndpointID.
func NewFormHandler(forms FormRepo, plans billing.PlanRegistry, v *core.Validator, gen EndpointIDGenerator, logger *slog.Logger) *FormHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if gen == nil {
		gen = RandomEndpointID
	}
	if plans == nil {
		plans = billing.NewStaticPlanRegistry()
	}
	return &FormHandler{forms: forms, plans: plans, validator: v, endpointID: gen, logger: logger}
}

// RegisterRoutes mounts form routes on the /v1 router.
func (h *FormHandler) RegisterRoutes(r chi.Router) {
	r.Get("/forms", h.List)
	r.Post("/forms", h.Create)
	r.Get("/forms/{formId}", h.Get)
	r.Patch("/forms/{formId}", h.Update)
	r.With(core.RequireSession).Delete("/forms/{formId}", h.Delete)
	r.With(core.RequireSession).Patch("/forms/{formId}/settings", h.UpdateSettings)
}

// List handles GET /v1/forms.
func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	forms, err := h.forms.List(r.Context(), actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]any{"forms": forms})
}

// Create handles POST /v1/forms. The plan's form ceiling is checked against
// the current count before inserting.
func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateFormRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	limits := h.plans.LimitsFor(actor.Plan)
	if err := billing.CheckWebhookFeature(limits, req.Settings); err != nil {
		core.Error(w, r, err)
		return
	}

	count, err := h.forms.CountByAccount(r.Context(), actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := billing.CheckFormQuota(limits, count); err != nil {
		core.Error(w, r, err)
		return
	}

	form, err := h.createWithFreshEndpoint(r.Context(), actor.AccountID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "form created",
		"form_id", form.ID,
		"account_id", actor.AccountID,
	)
	core.JSON(w, r, http.StatusCreated, form)
}

func (h *FormHandler) createWithFreshEndpoint(ctx context.Context, accountID string, req CreateFormRequest) (*types.Form, error) {
	var lastErr error
	for attempt := 0; attempt < maxEndpointAttempts; attempt++ {
		endpointID, err := h.endpointID()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate endpoint id", err)
		}
		form, err := h.forms.Create(ctx, accountID, endpointID, req.Name, req.Settings)
		if err == nil {
			return form, nil
		}
		if !isCode(err, types.ErrCodeConflictEndpointCollision) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Get handles GET /v1/forms/{formId}.
func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	form, err := h.forms.Get(r.Context(), chi.URLParam(r, "formId"), actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if form == nil {
		core.Error(w, r, formNotFound())
		return
	}
	core.JSON(w, r, http.StatusOK, form)
}

// Update handles PATCH /v1/forms/{formId}.
func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var patch types.FormPatch
	if err := core.DecodeJSON(w, r, &patch); err != nil {
		core.Error(w, r, err)
		return
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}
	if err := h.validator.ValidateStruct(patch); err != nil {
		core.Error(w, r, err)
		return
	}
	if patch.IsEmpty() {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "nothing to update", nil))
		return
	}
	if patch.Settings != nil {
		if err := billing.CheckWebhookFeature(h.plans.LimitsFor(actor.Plan), *patch.Settings); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	formID := chi.URLParam(r, "formId")
	res, err := h.forms.Update(r.Context(), formID, actor.AccountID, patch)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !res.Applied() {
		core.Error(w, r, formNotFound())
		return
	}

	form, err := h.forms.Get(r.Context(), formID, actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if form == nil {
		core.Error(w, r, formNotFound())
		return
	}
	core.JSON(w, r, http.StatusOK, form)
}

// Delete handles DELETE /v1/forms/{formId}. Session only.
func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	formID := chi.URLParam(r, "formId")
	res, err := h.forms.Delete(r.Context(), formID, actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !res.Applied() {
		core.Error(w, r, formNotFound())
		return
	}

	h.logger.InfoContext(r.Context(), "form deleted",
		"form_id", formID,
		"account_id", actor.AccountID,
	)
	core.Success(w, r)
}

// UpdateSettings handles PATCH /v1/forms/{formId}/settings. The body is an
// arbitrary JSON object shallow-merged into the stored settings. A form that
// is absent or owned by someone else is reported as 403.
func (h *FormHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var patch map[string]any
	if err := core.DecodeJSON(w, r, &patch); err != nil {
		core.Error(w, r, err)
		return
	}
	if patch == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "settings patch must be a JSON object", nil))
		return
	}
	if err := h.checkSettingsPatch(actor, patch); err != nil {
		core.Error(w, r, err)
		return
	}

	formID := chi.URLParam(r, "formId")
	res, err := h.forms.MergeSettings(r.Context(), formID, actor.AccountID, patch)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !res.Applied() {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionNotOwner, "form not found or not owned by this account", nil))
		return
	}
	core.Success(w, r)
}

// checkSettingsPatch validates the known keys of a settings patch by
// decoding it into FormSettings. Unknown keys pass through untouched.
func (h *FormHandler) checkSettingsPatch(actor types.Actor, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "settings patch is not serializable", err)
	}
	var known types.FormSettings
	if err := json.Unmarshal(raw, &known); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "settings patch has invalid field types", err)
	}
	if err := h.validator.ValidateStruct(known); err != nil {
		return err
	}
	return billing.CheckWebhookFeature(h.plans.LimitsFor(actor.Plan), known)
}
