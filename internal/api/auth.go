package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const viewerContextKey contextKey = "authenticatedViewer"

// SessionCookieName is the cookie the external auth frontend sets after
// exchanging credentials with the identity service.
const SessionCookieName = "reelcast_session"

// ContextWithViewer stores the authenticated user id in the provided context.
func ContextWithViewer(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, viewerContextKey, userID)
}

// ViewerFromContext retrieves the authenticated user id from context if
// present.
func ViewerFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(viewerContextKey).(string)
	return userID, ok && userID != ""
}

// AuthenticateRequest validates the session token on the request and returns
// the user id it belongs to.
func (h *Handler) AuthenticateRequest(r *http.Request) (string, error) {
	token := ExtractToken(r)
	if token == "" {
		return "", fmt.Errorf("missing session token")
	}
	userID, ok, err := h.sessionManager().Validate(token)
	if err != nil {
		return "", fmt.Errorf("validate session: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("invalid or expired session")
	}
	return userID, nil
}

func (h *Handler) requireViewer(w http.ResponseWriter, r *http.Request) (string, bool) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return "", false
	}
	return viewer, true
}

// ExtractToken pulls the session token from the Authorization header or the
// session cookie.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
