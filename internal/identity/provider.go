// Package identity verifies bearer tokens minted by the upstream identity
// provider and exposes the authenticated principal to the rest of the
// registry.
//
// The registry never issues login sessions itself — wallet-signature and
// password flows live upstream. It only validates the provider's JWTs and
// trusts the {subject, role} pair they carry.
package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthenticated is returned when a token is missing, malformed,
// expired, or carries an unknown role.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the authenticated caller as attested by the upstream
// identity provider.
type Principal struct {
	SubjectID uuid.UUID
	Role      string
	Email     string
}

// Verifier validates an upstream bearer token.
type Verifier interface {
	Verify(token string) (*Principal, error)
}

// Claims is the JWT claim set the upstream provider signs.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// JWTVerifier validates RS256 or HS256 tokens from the identity provider.
// The accepted role set is configuration — deployments have disagreed on
// the permitted roles, so nothing is hard-coded here.
type JWTVerifier struct {
	rsaKey  *rsa.PublicKey // non-nil = RS256
	secret  []byte         // non-empty = HS256
	issuer  string
	roles   map[string]bool
}

// NewJWTVerifier creates a verifier for HS256 tokens signed with secret.
func NewJWTVerifier(secret []byte, issuer string, roles []string) *JWTVerifier {
	return &JWTVerifier{secret: secret, issuer: issuer, roles: roleSet(roles)}
}

// NewRSAVerifier creates a verifier for RS256 tokens, taking the
// provider's public key in PEM form.
func NewRSAVerifier(publicKeyPEM []byte, issuer string, roles []string) (*JWTVerifier, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("identity: no PEM block in provider public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse provider public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: provider public key is not RSA")
	}
	return &JWTVerifier{rsaKey: rsaKey, issuer: issuer, roles: roleSet(roles)}, nil
}

func roleSet(roles []string) map[string]bool {
	if len(roles) == 0 {
		roles = []string{"student", "institution", "verifier", "admin"}
	}
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(tokenStr string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		v.keyFunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}
	if !v.roles[claims.Role] {
		return nil, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a UUID", ErrUnauthenticated)
	}

	return &Principal{SubjectID: subject, Role: claims.Role, Email: claims.Email}, nil
}

func (v *JWTVerifier) keyFunc(tok *jwt.Token) (any, error) {
	switch tok.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.rsaKey == nil {
			return nil, fmt.Errorf("RS256 not configured")
		}
		return v.rsaKey, nil
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, fmt.Errorf("HS256 not configured")
		}
		return v.secret, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
	}
}
