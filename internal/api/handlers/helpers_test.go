package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"formguard/internal/core"
	"formguard/internal/types"
)

var (
	sessionActor = types.Actor{
		ID:         "user_1",
		Type:       types.ActorTypeUser,
		AccountID:  "acct-1",
		IdentityID: "user_1",
		Plan:       types.PlanPro,
		Identity:   &types.Identity{ID: "user_1", Email: "ada@example.com"},
	}
	keyActor = types.Actor{
		ID:        "key-1",
		Type:      types.ActorTypeAPIKey,
		AccountID: "acct-1",
		Plan:      types.PlanPro,
	}
)

func testValidator() *core.Validator {
	return core.NewValidator(nil)
}

// serve routes req through a router built by register, with actor injected
// into the request context when non-nil.
func serve(t *testing.T, register func(chi.Router), actor *types.Actor, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if actor != nil {
				req = req.WithContext(types.WithActor(req.Context(), *actor))
			}
			next.ServeHTTP(w, req)
		})
	})
	register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorCode {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return types.ErrorCode(resp.Error.Code)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "body: %s", rec.Body.String())
}
