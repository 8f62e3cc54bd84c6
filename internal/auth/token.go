package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose restricts which operation a token may authorize. Verification
// checks it in addition to signature and expiry, so a refresh token can never
// stand in for an access token.
type Purpose string

const (
	PurposeAccess       Purpose = "access"
	PurposeRefresh      Purpose = "refresh"
	PurposeConfirmation Purpose = "confirmation"
)

var (
	// ErrInvalidToken covers malformed structure, signature mismatch, and
	// expiry. Callers see only this coarse kind; parser detail stays internal.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrWrongPurpose is returned when a structurally valid token carries a
	// different purpose than the caller requires. Externally it maps to the
	// same unauthorized response, but callers can distinguish it internally.
	ErrWrongPurpose = errors.New("wrong token purpose")
)

// Claims are the signed token claims: subject (user email), purpose, and the
// registered issued-at/expires-at pair.
type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies purpose-tagged tokens with a shared
// secret. It holds no state beyond configuration, so instances are safe for
// concurrent use.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	ttls   map[Purpose]time.Duration
}

// NewTokenService creates a token service. algorithm selects the HMAC
// variant (HS256, HS384, or HS512); anything else falls back to HS256.
func NewTokenService(secret, algorithm string, accessTTL, refreshTTL, confirmationTTL time.Duration) *TokenService {
	var method jwt.SigningMethod
	switch algorithm {
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		method = jwt.SigningMethodHS256
	}

	return &TokenService{
		secret: []byte(secret),
		method: method,
		ttls: map[Purpose]time.Duration{
			PurposeAccess:       accessTTL,
			PurposeRefresh:      refreshTTL,
			PurposeConfirmation: confirmationTTL,
		},
	}
}

// Issue produces a signed, self-contained token for the given purpose and
// subject, expiring after the purpose's configured TTL.
func (s *TokenService) Issue(purpose Purpose, subject string) (string, error) {
	ttl, ok := s.ttls[purpose]
	if !ok {
		return "", fmt.Errorf("unknown token purpose %q", purpose)
	}

	now := time.Now().UTC()
	claims := &Claims{
		Purpose: string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "contacthub",
		},
	}

	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}

	return signed, nil
}

// Verify checks signature, expiry, and purpose, returning the subject. It
// returns ErrInvalidToken for any structural, signature, or expiry failure
// and ErrWrongPurpose for a purpose mismatch.
func (s *TokenService) Verify(tokenString string, expected Purpose) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	if claims.Purpose != string(expected) {
		return "", ErrWrongPurpose
	}

	return claims.Subject, nil
}
