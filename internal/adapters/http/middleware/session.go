package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/account-service/internal/domain"
	res "github.com/example/account-service/pkg/http"
)

// SessionSource reports the process session.
type SessionSource interface {
	Current() domain.Session
}

type SessionMiddleware struct {
	sessions SessionSource
}

func NewSessionMiddleware(sessions SessionSource) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// Handler rejects the request unless a user is signed in.
func (m *SessionMiddleware) Handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s := m.sessions.Current()
		if !s.Authenticated() {
			return res.ErrorJSON(c, http.StatusUnauthorized, string(domain.KindNotAuthenticated), "not signed in")
		}
		c.Set("user_id", s.Identity.ID)
		c.Set("email", s.Identity.Email)
		return next(c)
	}
}
