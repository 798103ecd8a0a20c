package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/httpx"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

const maxAuthBodySize = 8 * 1024

// AuthHandlers front the account service: sign-in, sign-up, sign-out, password reset and
// the current session.
type AuthHandlers struct {
	authn    *auth.Authenticator
	accounts services.AccountService
	limiter  rateLimiter
}

// NewAuthHandlers constructs auth handlers. perMinute caps the credential endpoints per
// client IP; zero disables the limit.
func NewAuthHandlers(authn *auth.Authenticator, accounts services.AccountService, perMinute int) *AuthHandlers {
	return &AuthHandlers{
		authn:    authn,
		accounts: accounts,
		limiter:  newRateLimiter(perMinute, nil),
	}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/sign-in", rateLimited(h.limiter, h.signIn))
	r.Post("/sign-up", rateLimited(h.limiter, h.signUp))
	r.Post("/password-reset", rateLimited(h.limiter, h.passwordReset))

	if h.authn != nil {
		r.With(h.authn.RequireFirebaseAuth()).Post("/sign-out", h.signOut)
		r.With(h.authn.OptionalFirebaseAuth()).Get("/session", h.session)
	} else {
		r.Post("/sign-out", h.signOut)
		r.Get("/session", h.session)
	}
}

// MeRoutes registers GET /profile on the /me group.
func (h *AuthHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/profile", h.profile)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type profilePayload struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"isAdmin"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type signInResponse struct {
	UserID       string         `json:"userId"`
	IDToken      string         `json:"idToken"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresIn    int64          `json:"expiresIn"`
	Profile      profilePayload `json:"profile"`
	Cart         *cartPayload   `json:"cart,omitempty"`
}

type sessionResponse struct {
	State   string          `json:"state"`
	Profile *profilePayload `json:"profile,omitempty"`
}

func buildProfilePayload(profile services.Profile) profilePayload {
	return profilePayload{
		ID:        profile.ID,
		FullName:  profile.FullName,
		Email:     profile.Email,
		IsAdmin:   profile.IsAdmin,
		CreatedAt: formatTime(profile.CreatedAt),
		UpdatedAt: formatTime(profile.UpdatedAt),
	}
}

func (h *AuthHandlers) signIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	var req signInRequest
	if !decodeJSONBody(w, r, maxAuthBodySize, &req) {
		return
	}
	result, err := h.accounts.SignIn(ctx, services.SignInCommand{
		Email:         req.Email,
		Password:      req.Password,
		CartSessionID: r.Header.Get(CartSessionHeader),
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	resp := signInResponse{
		UserID:       result.UserID,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    int64(result.ExpiresIn.Seconds()),
		Profile:      buildProfilePayload(result.Profile),
	}
	if result.Cart != nil {
		cart := buildCartPayload(*result.Cart, "")
		resp.Cart = &cart
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AuthHandlers) signUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	var req signUpRequest
	if !decodeJSONBody(w, r, maxAuthBodySize, &req) {
		return
	}
	profile, err := h.accounts.SignUp(ctx, services.SignUpCommand{
		FullName:        req.FullName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"profile": buildProfilePayload(profile)})
}

func (h *AuthHandlers) passwordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	var req passwordResetRequest
	if !decodeJSONBody(w, r, maxAuthBodySize, &req) {
		return
	}
	if err := h.accounts.SendPasswordReset(ctx, req.Email); err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]any{"sent": true})
}

func (h *AuthHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.accounts.SignOut(ctx, identity.UID); err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)
	view, err := h.accounts.Session(ctx, identity)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	resp := sessionResponse{State: string(view.State)}
	if view.Profile != nil {
		profile := buildProfilePayload(*view.Profile)
		resp.Profile = &profile
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AuthHandlers) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	profile, err := h.accounts.Profile(ctx, identity)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"profile": buildProfilePayload(profile)})
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	code := "account_unavailable"
	switch {
	case errors.Is(err, services.ErrAccountInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, services.ErrAccountNotFound):
		status, code = http.StatusNotFound, "account_not_found"
	case errors.Is(err, services.ErrAccountInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, services.ErrAccountEmailInUse):
		status, code = http.StatusConflict, "email_in_use"
	case errors.Is(err, services.ErrAccountThrottled):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, services.ErrAccountDisabled):
		status, code = http.StatusForbidden, "account_disabled"
	}
	if writePublicError(ctx, w, err, code, status) {
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, "Não foi possível concluir a operação. Tente novamente.", status))
}
