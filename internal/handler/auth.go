package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eyewear-store/internal/domain/auth"
)

// HeaderAPIKey is the alternative to a bearer token.
const HeaderAPIKey = "X-API-Key"

// apiKey extracts the raw key from Authorization: Bearer or X-API-Key.
func apiKey(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		scheme, token, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get(HeaderAPIKey))
}

// requireAdmin authenticates the request and requires the admin scope.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := apiKey(r)
		if raw == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			fail(w, r, errors.Wrap(auth.ErrUnauthorized, "missing api key"))
			return
		}
		p, err := h.Auth.Authenticate(r.Context(), raw)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin", error="invalid_token"`)
			}
			fail(w, r, err)
			return
		}
		if !p.HasScope(auth.ScopeAdmin) {
			fail(w, r, errors.Wrap(auth.ErrForbidden, "admin scope required"))
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("key_id", p.KeyID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
