package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/interview-recorder/internal/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionFromContext extracts the session resolved by sessionContext
func SessionFromContext(ctx context.Context) *session.Controller {
	c, ok := ctx.Value(sessionContextKey).(*session.Controller)
	if !ok {
		return nil
	}
	return c
}

// ContextWithSession adds a session to context
func ContextWithSession(ctx context.Context, c *session.Controller) context.Context {
	return context.WithValue(ctx, sessionContextKey, c)
}

// sessionContext resolves {id} to a live session
func (s *Server) sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := s.manager.Get(chi.URLParam(r, "id"))
		if err != nil {
			respondSessionError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), c)))
	})
}
