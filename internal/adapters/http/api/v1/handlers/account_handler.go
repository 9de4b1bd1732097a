package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/account-service/internal/domain"
	"github.com/example/account-service/internal/usecase"
	res "github.com/example/account-service/pkg/http"
)

type AccountHandler struct {
	service usecase.Service
}

func NewAccountHandler(s usecase.Service) *AccountHandler { return &AccountHandler{service: s} }

type signupRequest struct {
	Username        string `json:"username"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phone_number"`
	Location        string `json:"location"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type signinRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Type         string `json:"type"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordUpdateRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type passwordStrengthRequest struct {
	Password string `json:"password"`
}

type profileResponse struct {
	*domain.Profile
	ProviderName string `json:"provider_name"`
}

func (h *AccountHandler) SignUp(c echo.Context) error {
	req := new(signupRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := usecase.ValidatePasswordConfirmation(req.Password, req.ConfirmPassword); err != nil {
		return errorJSON(c, err)
	}
	err := h.service.SignUp(c.Request().Context(), res.RequestID(c), usecase.SignUpInput{
		Username:    usecase.NormalizeUsername(req.Username),
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Location:    req.Location,
		Password:    req.Password,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return res.JSON(c, http.StatusCreated, map[string]string{"message": "Account created successfully! You can now sign in."})
}

func (h *AccountHandler) SignIn(c echo.Context) error {
	req := new(signinRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.SignIn(c.Request().Context(), res.RequestID(c), req.Identifier, req.Password); err != nil {
		return errorJSON(c, err)
	}
	return res.JSON(c, http.StatusOK, h.service.Current())
}

// SignInWithProvider answers with the authorize URL the browser should follow.
func (h *AccountHandler) SignInWithProvider(c echo.Context) error {
	url, err := h.service.SignInWithProvider(c.Request().Context(), res.RequestID(c), c.Param("provider"))
	if err != nil {
		return errorJSON(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"redirect_url": url})
}

// CompleteSession takes the token pair found in the redirect fragment.
func (h *AccountHandler) CompleteSession(c echo.Context) error {
	req := new(sessionRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	tokens := domain.Tokens{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken}
	identity, err := h.service.CompleteRedirect(c.Request().Context(), res.RequestID(c), tokens, req.Type == "recovery")
	if err != nil {
		return errorJSON(c, err)
	}
	return res.JSON(c, http.StatusOK, identity)
}

func (h *AccountHandler) SignOut(c echo.Context) error {
	if err := h.service.SignOut(c.Request().Context(), res.RequestID(c)); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AccountHandler) Session(c echo.Context) error {
	return res.JSON(c, http.StatusOK, h.service.Current())
}

func (h *AccountHandler) ResetPassword(c echo.Context) error {
	req := new(passwordResetRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.ResetPassword(c.Request().Context(), res.RequestID(c), req.Email); err != nil {
		return errorJSON(c, err)
	}
	return res.JSON(c, http.StatusAccepted, map[string]string{"message": "Password reset link sent to your email!"})
}

func (h *AccountHandler) UpdatePassword(c echo.Context) error {
	req := new(passwordUpdateRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := usecase.ValidatePasswordConfirmation(req.Password, req.ConfirmPassword); err != nil {
		return errorJSON(c, err)
	}
	if err := h.service.UpdatePassword(c.Request().Context(), res.RequestID(c), req.Password); err != nil {
		return errorJSON(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"message": "Password updated successfully!"})
}

func (h *AccountHandler) PasswordStrength(c echo.Context) error {
	req := new(passwordStrengthRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	score := usecase.PasswordStrength(req.Password)
	return res.JSON(c, http.StatusOK, map[string]interface{}{
		"score": score,
		"label": usecase.StrengthLabel(score),
	})
}

func (h *AccountHandler) MyProfile(c echo.Context) error {
	profile, found, err := h.service.Profile(c.Request().Context(), res.RequestID(c))
	if err != nil {
		return errorJSON(c, err)
	}
	if !found {
		return res.ErrorJSON(c, http.StatusNotFound, "not_found", "profile not found")
	}
	return res.JSON(c, http.StatusOK, profileResponse{Profile: profile, ProviderName: domain.ProviderDisplayName(profile.AuthProvider)})
}

func (h *AccountHandler) UsernameAvailable(c echo.Context) error {
	username := usecase.NormalizeUsername(c.QueryParam("username"))
	available, err := h.service.IsUsernameAvailable(c.Request().Context(), res.RequestID(c), username)
	if err != nil {
		return errorJSON(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]interface{}{"username": username, "available": available})
}

func badPayload(c echo.Context) error {
	return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload")
}

// errorJSON writes err in the error envelope with the status its kind maps to.
func errorJSON(c echo.Context, err error) error {
	status, code := StatusFor(err)
	return res.ErrorJSON(c, status, code, err.Error())
}

// StatusFor maps a domain error onto an HTTP status and envelope code.
func StatusFor(err error) (int, string) {
	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, "internal"
	}
	code := string(de.Kind)
	switch de.Kind {
	case domain.KindValidation, domain.KindProviderNotConfigured:
		return http.StatusBadRequest, code
	case domain.KindUsernameTaken, domain.KindConflict:
		return http.StatusConflict, code
	case domain.KindInvalidCredentials, domain.KindNotAuthenticated:
		return http.StatusUnauthorized, code
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable, code
	case domain.KindAuthService:
		if de.Status >= 400 && de.Status < 500 {
			return de.Status, code
		}
		return http.StatusBadGateway, code
	default:
		return http.StatusInternalServerError, code
	}
}
