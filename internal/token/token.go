// Package token encodes and decodes the signed, expiring tokens that
// carry a user identity. Access and refresh tokens form two independent
// classes with their own signing secrets and lifetimes.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is returned when the current time exceeds the token's
	// embedded expiry. The signature itself may still be valid.
	ErrExpired = errors.New("token has expired")

	// ErrInvalid is returned on a bad signature or malformed structure.
	ErrInvalid = errors.New("token is invalid")
)

// AccessClaims is the payload of an access token: the user identity only.
type AccessClaims struct {
	UserID int `json:"userId"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. TokenVersion is the
// user's counter at issuance time; the refresh protocol compares it to the
// stored value, which is the sole revocation mechanism.
type RefreshClaims struct {
	UserID       int `json:"userId"`
	TokenVersion int `json:"tokenVersion"`
	jwt.RegisteredClaims
}

// Config holds the codec's immutable configuration. Secrets and TTLs are
// injected at construction; the codec never reads the environment.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Codec signs and verifies both token classes.
type Codec struct {
	config Config
}

// NewCodec validates the configuration and constructs a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("both token secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &Codec{config: cfg}, nil
}

// EncodeAccess signs a short-lived access token for the user.
func (c *Codec) EncodeAccess(userID int) (string, error) {
	claims := AccessClaims{
		UserID:           userID,
		RegisteredClaims: registeredClaims(userID, c.config.AccessTTL),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.AccessSecret)
}

// EncodeRefresh signs a refresh token embedding the user's current
// token version.
func (c *Codec) EncodeRefresh(userID, tokenVersion int) (string, error) {
	claims := RefreshClaims{
		UserID:           userID,
		TokenVersion:     tokenVersion,
		RegisteredClaims: registeredClaims(userID, c.config.RefreshTTL),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.RefreshSecret)
}

// DecodeAccess verifies an access token and returns its claims.
// It fails with ErrExpired or ErrInvalid.
func (c *Codec) DecodeAccess(tokenString string) (AccessClaims, error) {
	claims := AccessClaims{}
	if err := c.decode(tokenString, &claims, c.config.AccessSecret); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// DecodeRefresh verifies a refresh token and returns its claims.
// It fails with ErrExpired or ErrInvalid.
func (c *Codec) DecodeRefresh(tokenString string) (RefreshClaims, error) {
	claims := RefreshClaims{}
	if err := c.decode(tokenString, &claims, c.config.RefreshSecret); err != nil {
		return RefreshClaims{}, err
	}
	return claims, nil
}

func (c *Codec) decode(tokenString string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}

func registeredClaims(userID int, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}
