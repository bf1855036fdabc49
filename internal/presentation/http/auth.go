package httppresentation

import (
	"fmt"
	"net/http"

	"github.com/brewtopia/cafepos/internal/infrastructure/auth"
	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/brewtopia/cafepos/internal/observability/logctx"
)

// Authenticator checks staff credentials and bearer tokens.
type Authenticator interface {
	Login(username, password string) (string, auth.Identity, error)
	Verify(token string) (auth.Identity, error)
}

// requireAuth rejects requests without a valid token before any handler runs.
// allowQuery also accepts ?token= for clients that cannot set headers (browser websockets).
func (h *Handler) requireAuth(allowQuery bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" && allowQuery {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeDomainError(w, r, fmt.Errorf("%w: missing bearer token", auth.ErrUnauthorized))
			return
		}
		id, err := h.auth.Verify(token)
		if err != nil {
			logctx.FromOr(r.Context(), h.log).Warn("auth_rejected", observability.F("error", err.Error()))
			writeDomainError(w, r, err)
			return
		}

		ctx, _ := logctx.Enrich(r.Context(), h.log, observability.F("user", id.Username))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
