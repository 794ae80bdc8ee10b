// Package auth covers the ops API's two credential kinds: argon2id-hashed
// API keys for every /v1 call, and short-lived Ed25519 JWTs that gate the
// audit export download, so the NDJSON link can be fetched by tooling that
// never sees a real API key.
//
// Signing keys load from PEM files or are auto-generated for development.
package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ashita-ai/monban/internal/model"
)

// ScopeAuditExport is the only scope export tokens carry.
const ScopeAuditExport = "audit:export"

// MaxExportTokenTTL caps export token lifetime regardless of the requested
// value. DefaultExportTokenTTL applies when no TTL is requested.
const (
	MaxExportTokenTTL     = time.Hour
	DefaultExportTokenTTL = 15 * time.Minute
)

// Claims extends jwt.RegisteredClaims with the issuing key's identity, so
// the export handler can log who minted the link.
type Claims struct {
	jwt.RegisteredClaims
	KeyName string        `json:"key_name"`
	Role    model.KeyRole `json:"role"`
	Scope   string        `json:"scope"`
}

// TokenManager issues and validates export tokens using Ed25519.
type TokenManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewTokenManager creates a TokenManager from PEM key files. If paths are
// empty, it generates an ephemeral key pair; export links then die with the
// process, which is fine for development and single-node installs.
func NewTokenManager(privateKeyPath, publicKeyPath string) (*TokenManager, error) {
	if privateKeyPath == "" || publicKeyPath == "" {
		slog.Warn("auth: no token key files configured, generating ephemeral key pair (export links will not survive restarts)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
		return &TokenManager{privateKey: priv, publicKey: pub}, nil
	}

	privPEM, err := os.ReadFile(privateKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("auth: decode private key PEM")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("auth: private key is not Ed25519")
	}

	pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}
	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("auth: decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}

	// Catch a private key from one environment deployed with a public key
	// from another.
	derivedPub := edPriv.Public().(ed25519.PublicKey)
	if !bytes.Equal(derivedPub, edPub) {
		return nil, fmt.Errorf("auth: public key does not match private key")
	}

	return &TokenManager{privateKey: edPriv, publicKey: edPub}, nil
}

// IssueExportToken creates a signed export token on behalf of key. A zero
// or negative TTL uses the default; anything above the cap is clamped.
func (m *TokenManager) IssueExportToken(key model.APIKey, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultExportTokenTTL
	}
	if ttl > MaxExportTokenTTL {
		ttl = MaxExportTokenTTL
	}

	now := time.Now().UTC()
	exp := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key.ID.String(),
			Issuer:    "monban",
			Audience:  jwt.ClaimStrings{"monban"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		KeyName: key.Name,
		Role:    key.Role,
		Scope:   ScopeAuditExport,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign export token: %w", err)
	}
	return signed, exp, nil
}

// ValidateExportToken parses and validates an export token, returning the
// claims.
func (m *TokenManager) ValidateExportToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithAudience("monban"),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate export token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if claims.Issuer != "monban" {
		return nil, fmt.Errorf("auth: invalid issuer: %s", claims.Issuer)
	}
	if claims.Scope != ScopeAuditExport {
		return nil, fmt.Errorf("auth: invalid scope: %s", claims.Scope)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("auth: invalid subject (expected key ID): %w", err)
	}

	return claims, nil
}
