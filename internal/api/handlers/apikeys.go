package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formguard/internal/core"
	"formguard/internal/types"
)

// KeyManager issues and revokes API keys.
type KeyManager interface {
	CreateKey(ctx context.Context, accountID, name string) (*types.APIKey, string, error)
	ListKeys(ctx context.Context, accountID string) ([]*types.APIKey, error)
	RevokeKey(ctx context.Context, accountID, keyID string) (types.MutationResult, error)
}

// CreateAPIKeyRequest is the body of POST /v1/api-keys.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CreateAPIKeyResponse carries the plaintext token. It is returned once.
type CreateAPIKeyResponse struct {
	*types.APIKey
	Token string `json:"token"`
}

// APIKeyHandler manages an account's API keys. Every route requires a
// dashboard session; keys cannot mint keys.
type APIKeyHandler struct {
	keys      KeyManager
	validator *core.Validator
	logger    *slog.Logger
}

// NewAPIKeyHandler creates an APIKeyHandler.
func NewAPIKeyHandler(keys KeyManager, v *core.Validator, logger *slog.Logger) *APIKeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyHandler{keys: keys, validator: v, logger: logger}
}

// RegisterRoutes mounts API key routes on the /v1 router.
func (h *APIKeyHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api-keys", func(r chi.Router) {
		r.Use(core.RequireSession)
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/{keyId}", h.Revoke)
	})
}

// List handles GET /v1/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	keys, err := h.keys.ListKeys(r.Context(), actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]any{"api_keys": keys})
}

// Create handles POST /v1/api-keys.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateAPIKeyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	key, plaintext, err := h.keys.CreateKey(r.Context(), actor.AccountID, req.Name)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "api key created",
		"key_id", key.ID,
		"account_id", actor.AccountID,
		"prefix", key.TokenPrefix,
	)
	core.JSON(w, r, http.StatusCreated, CreateAPIKeyResponse{APIKey: key, Token: plaintext})
}

// Revoke handles DELETE /v1/api-keys/{keyId}.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	keyID := chi.URLParam(r, "keyId")
	res, err := h.keys.RevokeKey(r.Context(), actor.AccountID, keyID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !res.Applied() {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundAPIKey, "api key not found", nil))
		return
	}

	h.logger.InfoContext(r.Context(), "api key revoked",
		"key_id", keyID,
		"account_id", actor.AccountID,
	)
	core.Success(w, r)
}
