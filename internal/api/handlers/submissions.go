package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"formguard/internal/billing"
	"formguard/internal/core"
	"formguard/internal/metrics"
	"formguard/internal/types"
)

const (
	defaultSubmissionPage = 50
	maxSubmissionPage     = 500

	// Field names the hosted endpoint consumes itself and never stores.
	defaultHoneypotField = "_gotcha"
	turnstileField       = "cf-turnstile-response"

	maxMultipartMemory        = 1 << 20
	defaultMaxSubmissionBytes = 64 << 10
)

// SubmissionRepo is the submission storage contract used by the handlers.
type SubmissionRepo interface {
	Create(ctx context.Context, formID string, data types.SubmissionData, ipAddress, userAgent string) (*types.Submission, error)
	ListByForm(ctx context.Context, formID, accountID string, limit int) ([]*types.Submission, error)
	CountByForm(ctx context.Context, formID, accountID string) (int, error)
	CountForAccountSince(ctx context.Context, accountID string, since time.Time) (int, error)
}

// FormLookup resolves forms for the submission handlers.
type FormLookup interface {
	Get(ctx context.Context, formID, accountID string) (*types.Form, error)
	GetByEndpoint(ctx context.Context, endpointID string) (*types.Form, error)
}

// AccountLookup loads the owner of a form.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// CaptchaVerifier checks a Turnstile token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) types.VerificationResult
}

// SubmissionForwarder delivers an accepted submission to the form's webhook.
type SubmissionForwarder interface {
	Forward(ctx context.Context, form *types.Form, sub *types.Submission) error
}

// SubmissionMetrics counts hosted submission outcomes.
type SubmissionMetrics interface {
	RecordSubmission(outcome string)
}

// SubmissionHandler serves both the owner-facing submission list and the
// public hosted endpoint.
type SubmissionHandler struct {
	forms        FormLookup
	submissions  SubmissionRepo
	accounts     AccountLookup
	captcha      CaptchaVerifier
	plans        billing.PlanRegistry
	metrics      SubmissionMetrics
	forwarder    SubmissionForwarder
	maxBodyBytes int64
	logger       *slog.Logger
	now          func() time.Time
}

// SubmissionHandlerConfig groups SubmissionHandler dependencies.
type SubmissionHandlerConfig struct {
	Forms        FormLookup
	Submissions  SubmissionRepo
	Accounts     AccountLookup
	Captcha      CaptchaVerifier
	Plans        billing.PlanRegistry
	Metrics      SubmissionMetrics
	Forwarder    SubmissionForwarder // nil disables webhook delivery
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewSubmissionHandler creates a SubmissionHandler.
func NewSubmissionHandler(cfg SubmissionHandlerConfig) *SubmissionHandler {
	h := &SubmissionHandler{
		forms:        cfg.Forms,
		submissions:  cfg.Submissions,
		accounts:     cfg.Accounts,
		captcha:      cfg.Captcha,
		plans:        cfg.Plans,
		metrics:      cfg.Metrics,
		forwarder:    cfg.Forwarder,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       cfg.Logger,
		now:          time.Now,
	}
	if h.plans == nil {
		h.plans = billing.NewStaticPlanRegistry()
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = defaultMaxSubmissionBytes
	}
	if h.metrics == nil {
		h.metrics = metrics.Nop{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// RegisterRoutes mounts the owner-facing routes on the /v1 router.
func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/forms/{formId}/submissions", h.List)
}

// RegisterPublicRoutes mounts the hosted endpoint. limit wraps it with
// per-client rate limiting.
func (h *SubmissionHandler) RegisterPublicRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		r.Post("/f/{endpointId}", h.Submit)
		return
	}
	r.With(limit).Post("/f/{endpointId}", h.Submit)
}

// List handles GET /v1/forms/{formId}/submissions?limit=N.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit := defaultSubmissionPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 || n > maxSubmissionPage {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
				"limit must be between 1 and 500", nil, map[string]any{"fields": map[string]any{"limit": raw}}))
			return
		}
		limit = n
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

	subs, err := h.submissions.ListByForm(r.Context(), formID, actor.AccountID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	total, err := h.submissions.CountByForm(r.Context(), formID, actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]any{"submissions": subs, "total": total})
}

// Submit handles POST /f/{endpointId}, the public hosted form endpoint.
//
// Checks run cheapest first: form lookup, origin allow-list, honeypot,
// Turnstile, then the owner's monthly quota. Honeypot hits are answered
// as if accepted so bots learn nothing.
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	form, err := h.forms.GetByEndpoint(ctx, chi.URLParam(r, "endpointId"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if form == nil {
		core.Error(w, r, formNotFound())
		return
	}

	if !originAllowed(form.Settings.AllowedOrigins, r) {
		h.reject(w, r, metrics.SubmissionRejected, types.NewAppError(types.ErrCodePermissionOrigin, "origin is not allowed to submit to this form", nil))
		return
	}

	data, browser, err := h.readPayload(w, r)
	if err != nil {
		h.reject(w, r, metrics.SubmissionRejected, err)
		return
	}

	honeypot := form.Settings.HoneypotField
	if honeypot == "" {
		honeypot = defaultHoneypotField
	}
	if v, ok := data[honeypot]; ok && v != "" && v != nil {
		h.metrics.RecordSubmission(metrics.SubmissionSpam)
		h.logger.InfoContext(ctx, "honeypot triggered", "form_id", form.ID)
		h.respondAccepted(w, r, form, "", browser)
		return
	}

	clientIP := core.ClientIP(r)
	if form.Settings.CaptchaRequired {
		token, _ := data[turnstileField].(string)
		if err := h.verifyCaptcha(ctx, token, clientIP); err != nil {
			h.reject(w, r, metrics.SubmissionCaptchaFailed, err)
			return
		}
	}

	account, err := h.accounts.GetByID(ctx, form.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if account == nil {
		core.Error(w, r, formNotFound())
		return
	}
	used, err := h.submissions.CountForAccountSince(ctx, account.ID, billing.MonthStart(h.now()))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	limits := h.plans.LimitsFor(account.Plan)
	if err := billing.CheckSubmissionQuota(limits, used); err != nil {
		h.reject(w, r, metrics.SubmissionOverQuota, err)
		return
	}

	delete(data, honeypot)
	delete(data, turnstileField)

	sub, err := h.submissions.Create(ctx, form.ID, data, clientIP, r.UserAgent())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.metrics.RecordSubmission(metrics.SubmissionAccepted)
	if limits.Webhooks {
		h.forward(ctx, form, sub)
	}
	h.respondAccepted(w, r, form, sub.ID, browser)
}

// forward delivers to the form webhook. Failures are logged; the submission
// is already stored.
func (h *SubmissionHandler) forward(ctx context.Context, form *types.Form, sub *types.Submission) {
	if h.forwarder == nil || form.Settings.WebhookURL == "" {
		return
	}
	if err := h.forwarder.Forward(ctx, form, sub); err != nil {
		h.logger.WarnContext(ctx, "webhook delivery failed",
			"form_id", form.ID,
			"submission_id", sub.ID,
			"error", err,
		)
	}
}

func (h *SubmissionHandler) reject(w http.ResponseWriter, r *http.Request, outcome string, err error) {
	h.metrics.RecordSubmission(outcome)
	core.Error(w, r, err)
}

func (h *SubmissionHandler) verifyCaptcha(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return types.NewAppError(types.ErrCodeValidationCaptcha, "captcha token is missing", nil)
	}
	if h.captcha == nil {
		return types.NewAppError(types.ErrCodeValidationCaptcha, "captcha verification is not configured", nil)
	}
	res := h.captcha.Verify(ctx, token, remoteIP)
	if res.Success {
		return nil
	}
	if res.Kind == types.VerificationKindNetwork {
		return types.NewAppError(types.ErrCodeUpstreamTurnstile, "captcha service unavailable", nil)
	}
	h.logger.WarnContext(ctx, "captcha rejected",
		"kind", res.Kind,
		"error_codes", res.ErrorCodes,
	)
	return types.NewAppErrorWithDetails(types.ErrCodeValidationCaptcha, "captcha verification failed", nil,
		map[string]any{"error_codes": res.ErrorCodes})
}

// readPayload decodes JSON, urlencoded or multipart bodies into a flat map.
// browser reports whether the request came from a plain HTML form post.
func (h *SubmissionHandler) readPayload(w http.ResponseWriter, r *http.Request) (types.SubmissionData, bool, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json", "":
		var data types.SubmissionData
		if err := core.DecodeJSONLimit(w, r, &data, h.maxBodyBytes); err != nil {
			return nil, false, err
		}
		if len(data) == 0 {
			return nil, false, types.NewAppError(types.ErrCodeValidationMissingField, "submission is empty", nil)
		}
		return data, false, nil

	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxMultipartMemory)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, true, types.NewAppError(types.ErrCodeValidationPayloadSize, "submission is too large", err)
			}
			return nil, true, types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed form body", err)
		}
		data := flattenValues(r.PostForm)
		if len(data) == 0 {
			return nil, true, types.NewAppError(types.ErrCodeValidationMissingField, "submission is empty", nil)
		}
		return data, true, nil

	default:
		return nil, false, types.NewAppError(types.ErrCodeValidationInvalidJSON, "unsupported content type "+mediaType, nil)
	}
}

func (h *SubmissionHandler) respondAccepted(w http.ResponseWriter, r *http.Request, form *types.Form, submissionID string, browser bool) {
	if browser && form.Settings.RedirectURL != "" {
		http.Redirect(w, r, form.Settings.RedirectURL, http.StatusSeeOther)
		return
	}
	body := map[string]any{"success": true}
	if submissionID != "" {
		body["id"] = submissionID
	}
	core.JSON(w, r, http.StatusCreated, body)
}

// flattenValues keeps single values as strings and repeated keys as lists.
func flattenValues(values url.Values) types.SubmissionData {
	data := make(types.SubmissionData, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
		case 1:
			data[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			data[k] = list
		}
	}
	return data
}

// originAllowed checks Origin, falling back to Referer, against the form's
// allow-list. An empty list accepts everything.
func originAllowed(allowed []string, r *http.Request) bool {
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		if ref, err := url.Parse(r.Header.Get("Referer")); err == nil && ref.Host != "" {
			origin = ref.Scheme + "://" + ref.Host
		}
	}
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return true
		}
	}
	return false
}
