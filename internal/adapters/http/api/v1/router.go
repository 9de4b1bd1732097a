package v1

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/example/account-service/internal/adapters/http/api/v1/handlers"
)

type Router struct {
	handlers  *handlers.AccountHandler
	sessionMW echo.MiddlewareFunc
	limiter   echo.MiddlewareFunc
}

// NewRouter wires the account routes. Sign-in and sign-up are limited to
// perSecond requests per client IP with the given burst.
func NewRouter(h *handlers.AccountHandler, sessionMW echo.MiddlewareFunc, perSecond float64, burst int) *Router {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:  rate.Limit(perSecond),
		Burst: burst,
	})
	return &Router{handlers: h, sessionMW: sessionMW, limiter: middleware.RateLimiter(store)}
}

func (r *Router) Register(g *echo.Group) {
	auth := g.Group("/auth")
	auth.POST("/signup", r.handlers.SignUp, r.limiter)
	auth.POST("/signin", r.handlers.SignIn, r.limiter)
	auth.GET("/oauth/:provider", r.handlers.SignInWithProvider)
	auth.POST("/session", r.handlers.CompleteSession)
	auth.GET("/session", r.handlers.Session)
	auth.POST("/signout", r.handlers.SignOut)
	auth.POST("/password/reset", r.handlers.ResetPassword)
	auth.POST("/password/strength", r.handlers.PasswordStrength)

	protected := auth.Group("", r.sessionMW)
	protected.POST("/password/update", r.handlers.UpdatePassword)

	profiles := g.Group("/profiles")
	profiles.GET("/username-available", r.handlers.UsernameAvailable)
	profiles.GET("/me", r.handlers.MyProfile, r.sessionMW)
}
