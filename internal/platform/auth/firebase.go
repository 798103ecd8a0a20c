package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/config"
)

var (
	errFirebaseNotInitialised = errors.New("auth: firebase client not initialised")

	// ErrEmailAlreadyExists is returned by CreateUser when the address is taken.
	ErrEmailAlreadyExists = errors.New("auth: email already exists")
	// ErrUserNotFound is returned when no account matches.
	ErrUserNotFound = errors.New("auth: user not found")
)

// NewUser is the subset of account fields set on sign-up.
type NewUser struct {
	Email       string
	Password    string
	DisplayName string
}

// FirebaseClient wraps the Admin SDK auth client with bounded calls.
type FirebaseClient struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseClient instances.
type FirebaseOption func(*FirebaseClient)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(c *FirebaseClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewFirebaseClient initialises the Admin SDK for cfg.ProjectID.
func NewFirebaseClient(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	c := &FirebaseClient{client: authClient, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// VerifyIDToken checks signature, expiry and audience of an ID token.
func (c *FirebaseClient) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if c == nil || c.client == nil {
		return nil, errFirebaseNotInitialised
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.client.VerifyIDToken(ctx, idToken)
}

// GetUser loads the user record for uid.
func (c *FirebaseClient) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	if c == nil || c.client == nil {
		return nil, errFirebaseNotInitialised
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	record, err := c.client.GetUser(ctx, uid)
	if firebaseauth.IsUserNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}
	return record, err
}

// CreateUser registers an email/password account and returns its uid.
func (c *FirebaseClient) CreateUser(ctx context.Context, user NewUser) (string, error) {
	if c == nil || c.client == nil {
		return "", errFirebaseNotInitialised
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	params := (&firebaseauth.UserToCreate{}).
		Email(user.Email).
		Password(user.Password)
	if name := strings.TrimSpace(user.DisplayName); name != "" {
		params = params.DisplayName(name)
	}

	record, err := c.client.CreateUser(ctx, params)
	if err != nil {
		if firebaseauth.IsEmailAlreadyExists(err) {
			return "", ErrEmailAlreadyExists
		}
		return "", fmt.Errorf("create firebase user: %w", err)
	}
	return record.UID, nil
}

// RevokeRefreshTokens invalidates every refresh token issued to uid.
func (c *FirebaseClient) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if c == nil || c.client == nil {
		return errFirebaseNotInitialised
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	if err := c.client.RevokeRefreshTokens(ctx, uid); err != nil {
		if firebaseauth.IsUserNotFound(err) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, uid)
		}
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (c *FirebaseClient) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
