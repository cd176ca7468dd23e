// Package handlers contains the HTTP handlers of the FormGuard API.
//
// Handlers depend on small locally declared interfaces so they can be
// exercised with fakes; cmd/api binds them to the db, auth, billing and
// queue implementations.
package handlers

import (
	"errors"
	"net/http"

	"formguard/internal/types"
)

// accountActor returns the caller when it is bound to an account.
// Missing authentication yields auth_token_missing; a verified session
// without an account row yields not_found_account.
func accountActor(r *http.Request) (types.Actor, error) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil)
	}
	if actor.AccountID == "" {
		return actor, types.NewAppError(types.ErrCodeNotFoundAccount, "no account exists for this identity; call GET /v1/me first", nil)
	}
	return actor, nil
}

func formNotFound() error {
	return types.NewAppError(types.ErrCodeNotFoundForm, "form not found", nil)
}

func isCode(err error, code types.ErrorCode) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
