package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// Placeholder identity. Real deployments swap this for an authenticated
// user id; X-User-ID is honored as a stand-in when present.
const defaultUserID = "demo_user"

const sessionHeader = "X-Session-ID"

type ctxKey int

const (
	userIDKey ctxKey = iota
	sessionIDKey
)

// UserIDFromContext returns the request's user id, or "" outside a request.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// SessionIDFromContext returns the request's session id.
func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// sessionMiddleware resolves (user_id, session_id) for every request. A
// request without X-Session-ID gets a fresh UUID, echoed back on the
// response so the client can continue the conversation.
func sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			userID = defaultUserID
		}

		sessionID := r.Header.Get(sessionHeader)
		if sessionID == "" {
			sessionID = uuid.NewString()
			slog.Debug("generated session id", "session", sessionID)
		}
		// Echo even when the client supplied it; response headers must be
		// written before the handler starts the body.
		w.Header().Set(sessionHeader, sessionID)

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
