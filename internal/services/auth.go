package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/inkwell-app/authserver/internal/password"
	"github.com/inkwell-app/authserver/internal/rate"
	"github.com/inkwell-app/authserver/internal/store"
	"github.com/inkwell-app/authserver/internal/token"
	"github.com/inkwell-app/authserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	IncrementTokenVersion(ctx context.Context, id int) (int, error)
}

// LoginLimiter throttles login attempts. It is optional; a nil limiter
// disables throttling.
type LoginLimiter interface {
	Allow(ctx context.Context, username, ip string) error
	RecordFailure(ctx context.Context, username, ip string) error
	Reset(ctx context.Context, username, ip string) error
}

// EventPublisher fans auth events out to a broker. Optional.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// AuthResult carries the response payload plus the refresh token. The
// transport must deliver the refresh token out of band (an HTTP-only
// cookie); it never appears in a response body.
type AuthResult struct {
	Response     types.UserResponse
	RefreshToken string
}

// LoginInput identifies the account by exactly one of Username or Email.
// Supplying neither is a caller contract violation. IP is optional and
// feeds the rate limiter only.
type LoginInput struct {
	Username string
	Email    string
	Password string
	IP       string
}

// Messages surfaced to users. Login collapses "no such user" and "wrong
// password" into one so callers cannot enumerate accounts.
const (
	msgInvalidLogin    = "Invalid login."
	msgTooManyAttempts = "too many login attempts, try again later."
	msgMissingRefresh  = "no refresh token was supplied."
	msgUserNotFound    = "could not find a user."
	msgTokenOutdated   = "your token is outdated."
	msgNotNullInsert   = "failed to insert on not null field"
	msgUserSaveFailed  = "could not save the user."
)

// constraintFields maps database constraint names to user-facing fields.
var constraintFields = map[string]string{
	"users_username_key": "username",
	"users_email_key":    "email",
}

// dummyDigest is verified when a login names an unknown account, so both
// failure paths cost one argon2 computation. It matches no password.
const dummyDigest = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AuthService orchestrates registration, login, session refresh, and
// revocation. Each call is an independent unit of work; the only shared
// mutable state is the per-user token version held by the repository.
type AuthService struct {
	repo         UserRepository
	hasher       *password.Hasher
	codec        *token.Codec
	limiter      LoginLimiter
	events       EventPublisher
	eventChannel string
	logger       *slog.Logger
}

// NewAuthService constructs an AuthService. Limiter and events may be nil.
func NewAuthService(
	repo UserRepository,
	hasher *password.Hasher,
	codec *token.Codec,
	limiter LoginLimiter,
	events EventPublisher,
	eventChannel string,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		repo:         repo,
		hasher:       hasher,
		codec:        codec,
		limiter:      limiter,
		events:       events,
		eventChannel: eventChannel,
		logger:       logger,
	}
}

// Register hashes the password and persists a new user. Uniqueness and
// not-null violations come back as field errors; success returns the user
// and an access token. No refresh token is issued on register; the first
// one comes from Login.
func (s *AuthService) Register(ctx context.Context, username, email, plaintext string) (AuthResult, error) {
	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
	})
	if err != nil {
		var constraintErr *store.ConstraintError
		if errors.As(err, &constraintErr) {
			return fieldErrorResult(registrationFieldError(constraintErr)), nil
		}
		return AuthResult{}, err
	}

	accessToken, err := s.codec.EncodeAccess(user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	s.publishEvent(ctx, EventUserRegistered, user.ID)

	return AuthResult{
		Response: types.UserResponse{
			User:        &user,
			AccessToken: accessToken,
		},
	}, nil
}

// Login authenticates by username or email plus password. Unknown account
// and wrong password return the same field error. Success issues a fresh
// access token plus a refresh token embedding the current token version.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	limiterKey := input.Username
	if limiterKey == "" {
		limiterKey = input.Email
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, limiterKey, input.IP); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return fieldErrorResult(types.FieldError{Field: "credentials", Message: msgTooManyAttempts}), nil
			}
			return AuthResult{}, err
		}
	}

	user, lookupErr := s.lookup(ctx, input)
	if lookupErr != nil && !errors.Is(lookupErr, store.ErrNotFound) {
		return AuthResult{}, lookupErr
	}

	digest := dummyDigest
	if lookupErr == nil {
		digest = user.PasswordHash
	}

	// Verify even when the user is unknown, so both failure paths take
	// the same time.
	if !s.hasher.Verify(digest, input.Password) || lookupErr != nil {
		if s.limiter != nil {
			if err := s.limiter.RecordFailure(ctx, limiterKey, input.IP); err != nil {
				s.logger.Warn("recording failed login attempt", "error", err)
			}
		}
		return fieldErrorResult(types.FieldError{Field: "credentials", Message: msgInvalidLogin}), nil
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, limiterKey, input.IP); err != nil {
			s.logger.Warn("resetting login attempt counter", "error", err)
		}
	}

	accessToken, refreshToken, err := s.issueTokenPair(user)
	if err != nil {
		return AuthResult{}, err
	}

	s.publishEvent(ctx, EventUserLoggedIn, user.ID)

	return AuthResult{
		Response: types.UserResponse{
			User:        &user,
			AccessToken: accessToken,
		},
		RefreshToken: refreshToken,
	}, nil
}

// Refresh validates an inbound refresh token and, when it matches the
// user's current token version, issues a fresh access/refresh pair.
// A successful refresh does not bump the token version, so earlier
// refresh tokens stay valid until their own expiry; RevokeAll is the
// only revocation primitive.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return refreshFieldErrorResult(msgMissingRefresh), nil
	}

	claims, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		// Expired and tampered tokens carry distinct messages so the
		// client can tell "session expired" from "bad token".
		return refreshFieldErrorResult(err.Error()), nil
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return refreshFieldErrorResult(msgUserNotFound), nil
		}
		return AuthResult{}, err
	}

	if user.TokenVersion != claims.TokenVersion {
		return refreshFieldErrorResult(msgTokenOutdated), nil
	}

	accessToken, rotated, err := s.issueTokenPair(user)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		Response: types.UserResponse{
			User:        &user,
			AccessToken: accessToken,
		},
		RefreshToken: rotated,
	}, nil
}

// Logout always succeeds. The transport clears the refresh cookie for the
// local session; when a user id is supplied, every outstanding refresh
// token for that user is revoked as well, logging the user out of all
// devices. Revocation failures are logged, not surfaced.
func (s *AuthService) Logout(ctx context.Context, userID int) bool {
	if userID > 0 {
		if err := s.RevokeAll(ctx, userID); err != nil {
			s.logger.Error("revoking refresh tokens on logout", "user_id", userID, "error", err)
		}
	}
	return true
}

// RevokeAll increments the user's token version by exactly one, which
// invalidates every refresh token issued before the call, including
// tokens the server has no record of. No blacklist is kept.
func (s *AuthService) RevokeAll(ctx context.Context, userID int) error {
	if _, err := s.repo.IncrementTokenVersion(ctx, userID); err != nil {
		return err
	}
	s.publishEvent(ctx, EventTokensRevoked, userID)
	return nil
}

func (s *AuthService) lookup(ctx context.Context, input LoginInput) (types.User, error) {
	if input.Username != "" {
		return s.repo.GetByUsername(ctx, input.Username)
	}
	return s.repo.GetByEmail(ctx, input.Email)
}

func (s *AuthService) issueTokenPair(user types.User) (access, refresh string, err error) {
	access, err = s.codec.EncodeAccess(user.ID)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.codec.EncodeRefresh(user.ID, user.TokenVersion)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func registrationFieldError(constraintErr *store.ConstraintError) types.FieldError {
	switch constraintErr.Code {
	case store.CodeUniqueViolation:
		field, ok := constraintFields[constraintErr.Constraint]
		if !ok {
			field = "username"
		}
		return types.FieldError{Field: field, Message: field + " already taken."}
	case store.CodeNotNullViolation:
		return types.FieldError{Field: "user", Message: msgNotNullInsert}
	default:
		return types.FieldError{Field: "user", Message: msgUserSaveFailed}
	}
}

func fieldErrorResult(fieldErr types.FieldError) AuthResult {
	return AuthResult{
		Response: types.UserResponse{Errors: []types.FieldError{fieldErr}},
	}
}

func refreshFieldErrorResult(message string) AuthResult {
	return fieldErrorResult(types.FieldError{Field: "refresh token", Message: message})
}
