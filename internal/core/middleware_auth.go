package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"formguard/internal/types"
)

// Paths inside /v1 that never require credentials.
var authPublicPaths = map[string]bool{
	"/v1/billing/plans": true,
}

// AuthMiddleware resolves the request's credential to an Actor and stores it
// in the context. The token comes from "Authorization: Bearer" or, for the
// dashboard, the X-Stack-Access-Token header. Failures are 401 with
// auth_token_missing, auth_token_invalid or auth_token_expired. Upstream
// identity outages keep their own status.
//
// A nil Authenticator disables authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := requestToken(r)
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// requestToken reports false when neither header carries a token.
func requestToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token := extractBearerToken(header)
		return token, token != ""
	}
	token := strings.TrimSpace(r.Header.Get("X-Stack-Access-Token"))
	return token, token != ""
}

// extractBearerToken parses "Bearer <token>" with a case-insensitive scheme
// (RFC 7235).
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.WarnContext(r.Context(), "authentication failed: token expired", slog.String("path", r.URL.Path))
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid, types.ErrCodeAuthTokenMissing:
			s.Logger.WarnContext(r.Context(), "authentication failed: token invalid", slog.String("path", r.URL.Path))
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
		if strings.HasPrefix(string(appErr.Code), "upstream_") {
			s.Logger.ErrorContext(r.Context(), "authentication failed: identity provider unavailable",
				slog.String("error_code", string(appErr.Code)),
				slog.String("error", err.Error()),
			)
			Error(w, r, appErr)
			return
		}
	}

	s.Logger.ErrorContext(r.Context(), "authentication failed: unexpected error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	Error(w, r, err)
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// RequireSession rejects API key actors with 403 permission_actor_type.
// Dashboard-only operations such as key management and form deletion use it.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeAuthTokenMissing),
					Message:   "Authentication required",
					RequestID: types.GetRequestID(r.Context()),
				},
			})
			return
		}
		if actor.Type != types.ActorTypeUser {
			Error(w, r, types.NewAppError(types.ErrCodePermissionActorType,
				"this operation requires a dashboard session", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
