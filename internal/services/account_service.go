package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

var (
	// ErrAccountInvalidInput indicates a sign-in or sign-up form failed validation.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates no account exists for the email.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountInvalidCredentials indicates a wrong email/password pair.
	ErrAccountInvalidCredentials = errors.New("account: invalid credentials")
	// ErrAccountEmailInUse indicates sign-up with an email that is already registered.
	ErrAccountEmailInUse = errors.New("account: email in use")
	// ErrAccountThrottled indicates the identity provider is rate limiting the account.
	ErrAccountThrottled = errors.New("account: too many attempts")
	// ErrAccountDisabled indicates the account was disabled.
	ErrAccountDisabled = errors.New("account: disabled")
	// ErrAccountUnavailable indicates the identity provider or profile store failed.
	ErrAccountUnavailable = errors.New("account: unavailable")
)

// Shopper-facing messages.
const (
	msgEmailRequired       = "E-mail é obrigatório."
	msgEmailInvalid        = "E-mail inválido."
	msgPasswordRequired    = "Senha é obrigatória."
	msgPasswordTooShort    = "A senha deve ter pelo menos 6 caracteres."
	msgPasswordMismatch    = "As senhas não conferem."
	msgFullNameRequired    = "Nome completo é obrigatório."
	msgAccountNotFound     = "Conta não encontrada. Cadastre-se primeiro."
	msgInvalidCredentials  = "E-mail ou senha incorretos."
	msgEmailInUse          = "Este e-mail já está em uso. Tente outro."
	msgTooManyAttempts     = "Muitas tentativas. Aguarde alguns minutos e tente novamente."
	msgAccountDisabled     = "Esta conta foi desativada."
	msgResetEmailRequired  = "E-mail Necessário"
	msgAccountUnavailable  = "Não foi possível concluir a operação. Tente novamente."
	minPasswordLength      = 6
	maxFullNameLength      = 120
	defaultSessionLifetime = time.Hour
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SessionState is the shopper's authentication state.
type SessionState string

const (
	// SessionLoading is reported by clients while the session is being resolved.
	SessionLoading SessionState = "loading"
	// SessionAnonymous means no identity is attached.
	SessionAnonymous SessionState = "anonymous"
	// SessionAuthenticated means a verified identity is attached.
	SessionAuthenticated SessionState = "authenticated"
)

// SessionView describes the current session. Profile is nil for anonymous sessions.
type SessionView struct {
	State   SessionState
	Profile *Profile
}

// SignInCommand carries the sign-in form and the guest cart session to discard.
type SignInCommand struct {
	Email         string
	Password      string
	CartSessionID string
}

// SignInResult holds the tokens issued by the identity provider.
type SignInResult struct {
	UserID       string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
	Profile      Profile
	Cart         *CartView
}

// SignUpCommand carries the registration form.
type SignUpCommand struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
}

type passwordAuthenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (auth.PasswordSession, error)
	SendPasswordResetEmail(ctx context.Context, email string) error
}

type accountAdmin interface {
	CreateUser(ctx context.Context, user auth.NewUser) (string, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// AccountServiceDeps wires identity provider clients and stores.
type AccountServiceDeps struct {
	Passwords passwordAuthenticator
	Admin     accountAdmin
	Profiles  repositories.ProfileRepository
	Carts     CartService
	Logger    func(context.Context, string, map[string]any)
}

type accountService struct {
	passwords passwordAuthenticator
	admin     accountAdmin
	profiles  repositories.ProfileRepository
	carts     CartService
	logger    func(context.Context, string, map[string]any)
}

var _ AccountService = (*accountService)(nil)

// NewAccountService constructs an AccountService. Carts is optional.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Passwords == nil {
		return nil, errors.New("account service: password client is required")
	}
	if deps.Admin == nil {
		return nil, errors.New("account service: admin client is required")
	}
	if deps.Profiles == nil {
		return nil, errors.New("account service: profile repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &accountService{
		passwords: deps.Passwords,
		admin:     deps.Admin,
		profiles:  deps.Profiles,
		carts:     deps.Carts,
		logger:    logger,
	}, nil
}

func (s *accountService) SignIn(ctx context.Context, cmd SignInCommand) (SignInResult, error) {
	email, err := validateEmail(cmd.Email, msgEmailRequired, ErrAccountInvalidInput)
	if err != nil {
		return SignInResult{}, err
	}
	if cmd.Password == "" {
		return SignInResult{}, publicError(ErrAccountInvalidInput, "password", msgPasswordRequired)
	}

	session, err := s.passwords.SignInWithPassword(ctx, email, cmd.Password)
	if err != nil {
		return SignInResult{}, s.translateProviderError(ctx, "account.sign_in_failed", err)
	}

	profile, err := s.ensureProfile(ctx, session.UID, session.DisplayName, chooseFirstNonEmpty(session.Email, email))
	if err != nil {
		s.logger(ctx, "account.profile_unavailable", map[string]any{"userId": session.UID, "error": err.Error()})
		profile = Profile{ID: session.UID, FullName: session.DisplayName, Email: strings.ToLower(chooseFirstNonEmpty(session.Email, email))}
	}

	result := SignInResult{
		UserID:       session.UID,
		IDToken:      session.IDToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
		Profile:      profile,
	}
	if result.ExpiresIn <= 0 {
		result.ExpiresIn = defaultSessionLifetime
	}
	if s.carts != nil {
		view, err := s.carts.AttachIdentity(ctx, cmd.CartSessionID, session.UID)
		if err != nil {
			s.logger(ctx, "account.cart_attach_failed", map[string]any{"userId": session.UID, "error": err.Error()})
		} else {
			result.Cart = &view
		}
	}
	s.logger(ctx, "account.signed_in", map[string]any{"userId": session.UID})
	return result, nil
}

func (s *accountService) SignUp(ctx context.Context, cmd SignUpCommand) (Profile, error) {
	fullName := sanitizePlain(cmd.FullName)
	if fullName == "" {
		return Profile{}, publicError(ErrAccountInvalidInput, "fullName", msgFullNameRequired)
	}
	fullName = truncateRunes(fullName, maxFullNameLength)
	email, err := validateEmail(cmd.Email, msgEmailRequired, ErrAccountInvalidInput)
	if err != nil {
		return Profile{}, err
	}
	if cmd.Password == "" {
		return Profile{}, publicError(ErrAccountInvalidInput, "password", msgPasswordRequired)
	}
	if len([]rune(cmd.Password)) < minPasswordLength {
		return Profile{}, publicError(ErrAccountInvalidInput, "password", msgPasswordTooShort)
	}
	if cmd.Password != cmd.ConfirmPassword {
		return Profile{}, publicError(ErrAccountInvalidInput, "confirmPassword", msgPasswordMismatch)
	}

	uid, err := s.admin.CreateUser(ctx, auth.NewUser{Email: email, Password: cmd.Password, DisplayName: fullName})
	if err != nil {
		return Profile{}, s.translateProviderError(ctx, "account.sign_up_failed", err)
	}

	profile, err := s.profiles.Upsert(ctx, Profile{ID: uid, FullName: fullName, Email: email})
	if err != nil {
		return Profile{}, fmt.Errorf("%w: store profile: %v", ErrAccountUnavailable, err)
	}
	s.logger(ctx, "account.signed_up", map[string]any{"userId": uid})
	return profile, nil
}

func (s *accountService) SignOut(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return publicError(ErrAccountInvalidInput, "userId", msgAccountUnavailable)
	}
	if err := s.admin.RevokeRefreshTokens(ctx, uid); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	if s.carts != nil {
		if err := s.carts.DetachIdentity(ctx, uid); err != nil {
			s.logger(ctx, "account.cart_detach_failed", map[string]any{"userId": uid, "error": err.Error()})
		}
	}
	s.logger(ctx, "account.signed_out", map[string]any{"userId": uid})
	return nil
}

// SendPasswordReset mails a reset link. Unknown addresses succeed silently so the endpoint
// cannot be used to probe for accounts.
func (s *accountService) SendPasswordReset(ctx context.Context, email string) error {
	address, err := validateEmail(email, msgResetEmailRequired, ErrAccountInvalidInput)
	if err != nil {
		return err
	}
	if err := s.passwords.SendPasswordResetEmail(ctx, address); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			s.logger(ctx, "account.password_reset_unknown_email", nil)
			return nil
		}
		return s.translateProviderError(ctx, "account.password_reset_failed", err)
	}
	return nil
}

func (s *accountService) Session(ctx context.Context, identity *auth.Identity) (SessionView, error) {
	if identity == nil || strings.TrimSpace(identity.UID) == "" {
		return SessionView{State: SessionAnonymous}, nil
	}
	profile, err := s.Profile(ctx, identity)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{State: SessionAuthenticated, Profile: &profile}, nil
}

// Profile returns the stored profile, creating it from the identity on first access.
func (s *accountService) Profile(ctx context.Context, identity *auth.Identity) (Profile, error) {
	if identity == nil || strings.TrimSpace(identity.UID) == "" {
		return Profile{}, publicError(ErrAccountInvalidInput, "userId", msgAccountUnavailable)
	}
	profile, err := s.ensureProfile(ctx, identity.UID, identity.Name, identity.Email)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	profile.IsAdmin = profile.IsAdmin || identity.IsAdmin()
	return profile, nil
}

// IsAdmin reports the stored admin flag. Users without a profile are not admins.
func (s *accountService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	profile, err := s.profiles.FindByID(ctx, strings.TrimSpace(userID))
	if err != nil {
		if isRepoNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return profile.IsAdmin, nil
}

func (s *accountService) ensureProfile(ctx context.Context, uid, name, email string) (Profile, error) {
	profile, err := s.profiles.FindByID(ctx, uid)
	if err == nil {
		return profile, nil
	}
	if !isRepoNotFound(err) {
		return Profile{}, err
	}
	created, err := s.profiles.Upsert(ctx, domain.Profile{
		ID:       uid,
		FullName: sanitizePlain(name),
		Email:    strings.ToLower(strings.TrimSpace(email)),
	})
	if err != nil {
		return Profile{}, err
	}
	s.logger(ctx, "account.profile_created", map[string]any{"userId": uid})
	return created, nil
}

func (s *accountService) translateProviderError(ctx context.Context, event string, err error) error {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return publicError(ErrAccountNotFound, "email", msgAccountNotFound)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return publicError(ErrAccountInvalidCredentials, "password", msgInvalidCredentials)
	case errors.Is(err, auth.ErrEmailAlreadyExists):
		return publicError(ErrAccountEmailInUse, "email", msgEmailInUse)
	case errors.Is(err, auth.ErrTooManyAttempts):
		return publicError(ErrAccountThrottled, "", msgTooManyAttempts)
	case errors.Is(err, auth.ErrUserDisabled):
		return publicError(ErrAccountDisabled, "", msgAccountDisabled)
	}
	s.logger(ctx, event, map[string]any{"error": err.Error()})
	return &PublicError{Kind: ErrAccountUnavailable, Message: msgAccountUnavailable}
}

// validateEmail trims and lower-cases raw. missing is the message used for empty input;
// failures are reported as kind.
func validateEmail(raw, missing string, kind error) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", publicError(kind, "email", missing)
	}
	if !emailPattern.MatchString(email) {
		return "", publicError(kind, "email", msgEmailInvalid)
	}
	return email, nil
}
