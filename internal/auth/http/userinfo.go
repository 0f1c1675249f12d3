package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/httpx"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

// UserGetter loads the public view of a user.
type UserGetter interface {
	GetUser(ctx context.Context, userID string) (domain.Identity, error)
}

type UserInfoHandler struct {
	Users UserGetter
}

// ServeHTTP returns the authenticated user. It expects AuthnMiddleware to
// have run.
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
		return
	}

	user, err := h.Users.GetUser(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "unknown subject")
		return
	}
	if err != nil {
		log.Warn("failed to load user", "user_id", claims.Subject, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, UserInfoResponse{
		Identity:    user,
		Permissions: claims.Permissions,
	})
}
