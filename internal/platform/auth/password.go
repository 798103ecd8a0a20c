package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

var (
	// ErrInvalidCredentials covers a wrong password or an unknown address when the
	// provider does not distinguish them.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrTooManyAttempts is returned when the provider throttles the account.
	ErrTooManyAttempts = errors.New("auth: too many attempts")
	// ErrUserDisabled is returned for disabled accounts.
	ErrUserDisabled = errors.New("auth: user disabled")
)

// PasswordSession is the token bundle returned by a successful password sign-in.
type PasswordSession struct {
	UID          string
	Email        string
	DisplayName  string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// PasswordClient talks to the Identity Toolkit REST API with the project's web API key.
// The Admin SDK cannot check passwords, so sign-in and reset e-mails go through here.
type PasswordClient struct {
	svc *identitytoolkit.Service
}

// NewPasswordClient builds a client authenticated by apiKey.
func NewPasswordClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*PasswordClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("auth: firebase web api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise identity toolkit: %w", err)
	}
	return &PasswordClient{svc: svc}, nil
}

// SignInWithPassword exchanges email and password for an ID token.
func (c *PasswordClient) SignInWithPassword(ctx context.Context, email, password string) (PasswordSession, error) {
	if c == nil || c.svc == nil {
		return PasswordSession{}, errFirebaseNotInitialised
	}
	resp, err := c.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return PasswordSession{}, classifyToolkitError(err)
	}

	session := PasswordSession{
		UID:          resp.LocalId,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		session.ExpiresIn = time.Duration(resp.ExpiresIn) * time.Second
	}
	return session, nil
}

// SendPasswordResetEmail asks the provider to mail a reset link to email.
func (c *PasswordClient) SendPasswordResetEmail(ctx context.Context, email string) error {
	if c == nil || c.svc == nil {
		return errFirebaseNotInitialised
	}
	_, err := c.svc.Relyingparty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: "PASSWORD_RESET",
		Email:       email,
	}).Context(ctx).Do()
	if err != nil {
		return classifyToolkitError(err)
	}
	return nil
}

// classifyToolkitError maps the provider's error codes (EMAIL_NOT_FOUND, INVALID_PASSWORD, ...)
// onto package sentinels. Codes may carry a suffix such as "TOO_MANY_ATTEMPTS_TRY_LATER : ...".
func classifyToolkitError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("identity toolkit: %w", err)
	}

	code := strings.TrimSpace(apiErr.Message)
	if code == "" && len(apiErr.Errors) > 0 {
		code = apiErr.Errors[0].Message
	}
	if head, _, found := strings.Cut(code, " "); found {
		code = head
	}

	switch strings.ToUpper(code) {
	case "EMAIL_NOT_FOUND":
		return ErrUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return ErrInvalidCredentials
	case "USER_DISABLED":
		return ErrUserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return ErrTooManyAttempts
	case "EMAIL_EXISTS":
		return ErrEmailAlreadyExists
	default:
		return fmt.Errorf("identity toolkit: %w", err)
	}
}
