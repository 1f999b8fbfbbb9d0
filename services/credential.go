package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hrsecurity/config"
	"hrsecurity/model"
	"hrsecurity/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrCredentialInvalid means the credential is missing, malformed, expired
	// or revoked. The session it backs must end.
	ErrCredentialInvalid = errors.New("credential is invalid")
	ErrNoIdentity        = errors.New("identity is required")
)

// CredentialVerifier re-validates the credential behind the current session.
// Errors other than ErrCredentialInvalid are treated as transient.
type CredentialVerifier interface {
	VerifyCurrentCredential(ctx context.Context) (*model.Identity, error)
}

// IdentityLookup resolves a token subject back to a stored identity.
type IdentityLookup interface {
	FindIdentityByID(ctx context.Context, userID string) (*model.Identity, error)
}

type CredentialClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier issues and verifies HS256 bearer tokens and holds the token of
// the session owned by this process.
type JWTVerifier struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	clock       utils.Clock
	revocations RevocationList
	identities  IdentityLookup

	mu      sync.RWMutex
	current string
}

// NewJWTVerifier builds a verifier. identities may be nil, in which case the
// token claims alone describe the identity.
func NewJWTVerifier(cfg config.JWTConfig, clock utils.Clock, revocations RevocationList, identities IdentityLookup) *JWTVerifier {
	return &JWTVerifier{
		secret:      []byte(cfg.SecretKey),
		issuer:      cfg.Issuer,
		ttl:         cfg.ExpirationTime,
		clock:       clock,
		revocations: revocations,
		identities:  identities,
	}
}

// IssueToken signs a new access token for identity.
func (v *JWTVerifier) IssueToken(identity *model.Identity) (string, time.Time, error) {
	if identity == nil || identity.UserID == "" {
		return "", time.Time{}, ErrNoIdentity
	}

	now := v.clock.Now()
	expiresAt := now.Add(v.ttl)
	claims := CredentialClaims{
		Username: identity.Username,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken checks signature, issuer and expiry. It does not consult the
// revocation list.
func (v *JWTVerifier) ParseToken(tokenString string) (*CredentialClaims, error) {
	claims := &CredentialClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or token id", ErrCredentialInvalid)
	}
	return claims, nil
}

// Verify parses tokenString and rejects revoked tokens. Revocation store
// failures are returned unwrapped so callers can tell them from invalid tokens.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*model.Identity, *CredentialClaims, error) {
	claims, err := v.ParseToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	if v.revocations != nil {
		revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked {
			return nil, nil, fmt.Errorf("%w: token revoked", ErrCredentialInvalid)
		}
	}

	identity := &model.Identity{UserID: claims.Subject, Username: claims.Username, Role: claims.Role}
	if v.identities != nil {
		stored, err := v.identities.FindIdentityByID(ctx, claims.Subject)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load identity: %w", err)
		}
		if stored == nil {
			return nil, nil, fmt.Errorf("%w: identity no longer exists", ErrCredentialInvalid)
		}
		identity = stored
	}
	return identity, claims, nil
}

// SetCurrentToken makes tokenString the credential checked by the session monitor.
func (v *JWTVerifier) SetCurrentToken(tokenString string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = tokenString
}

func (v *JWTVerifier) CurrentToken() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

func (v *JWTVerifier) VerifyCurrentCredential(ctx context.Context) (*model.Identity, error) {
	current := v.CurrentToken()
	if current == "" {
		return nil, fmt.Errorf("%w: no current token", ErrCredentialInvalid)
	}
	identity, _, err := v.Verify(ctx, current)
	return identity, err
}

// ClearCurrentToken drops tokenString as the current token. A different
// current token is left in place.
func (v *JWTVerifier) ClearCurrentToken(tokenString string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if tokenString == "" || v.current != tokenString {
		return false
	}
	v.current = ""
	return true
}

// Revoke blacklists tokenString until it would have expired anyway and clears
// it as the current token.
func (v *JWTVerifier) Revoke(ctx context.Context, tokenString string) error {
	claims, err := v.ParseToken(tokenString)
	if err != nil {
		// expired or malformed tokens cannot be used again anyway
		return nil
	}

	v.ClearCurrentToken(tokenString)

	if v.revocations == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(v.clock.Now())
	if err := v.revocations.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
