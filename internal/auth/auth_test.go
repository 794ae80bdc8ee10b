package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/monban/internal/auth"
	"github.com/ashita-ai/monban/internal/model"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("mb_deadbeef_0123456789abcdef")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyAPIKey("mb_deadbeef_0123456789abcdef", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("mb_deadbeef_wrong", hash)
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = auth.VerifyAPIKey("anything", "not-a-stored-hash")
	require.Error(t, err)
}

func TestExportTokenIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewTokenManager("", "")
	require.NoError(t, err)

	key := model.APIKey{
		ID:   uuid.New(),
		Name: "ops-laptop",
		Role: model.RoleAdmin,
	}

	token, expiresAt, err := mgr.IssueExportToken(key, 5*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(6*time.Minute)))

	claims, err := mgr.ValidateExportToken(token)
	require.NoError(t, err)
	assert.Equal(t, key.ID.String(), claims.Subject)
	assert.Equal(t, "ops-laptop", claims.KeyName)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, auth.ScopeAuditExport, claims.Scope)
	assert.Equal(t, "monban", claims.Issuer)
}

func TestIssueExportToken_TTL(t *testing.T) {
	mgr, err := auth.NewTokenManager("", "")
	require.NoError(t, err)

	key := model.APIKey{ID: uuid.New(), Name: "ci", Role: model.RoleAdmin}

	t.Run("TTL is capped at MaxExportTokenTTL", func(t *testing.T) {
		token, expiresAt, err := mgr.IssueExportToken(key, 48*time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		// Should expire within MaxExportTokenTTL, not 48 hours.
		assert.True(t, expiresAt.Before(time.Now().Add(auth.MaxExportTokenTTL+time.Minute)),
			"expiry should be capped at MaxExportTokenTTL")
	})

	t.Run("zero TTL uses the default", func(t *testing.T) {
		_, expiresAt, err := mgr.IssueExportToken(key, 0)
		require.NoError(t, err)
		assert.True(t, expiresAt.After(time.Now().Add(auth.DefaultExportTokenTTL-time.Minute)))
		assert.True(t, expiresAt.Before(time.Now().Add(auth.DefaultExportTokenTTL+time.Minute)))
	})
}

// writeKeyPEMs writes an Ed25519 key pair to temp PEM files and returns
// their paths.
func writeKeyPEMs(t *testing.T, priv ed25519.PrivateKey, pub ed25519.PublicKey) (privPath, pubPath string) {
	t.Helper()
	dir := t.TempDir()

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
	privPath = filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	pubPath = filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	return privPath, pubPath
}

// newTestTokenManagerWithKey creates a TokenManager backed by a real Ed25519
// key pair written to temp PEM files, and returns the raw private key for
// forging tokens.
func newTestTokenManagerWithKey(t *testing.T) (*auth.TokenManager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privPath, pubPath := writeKeyPEMs(t, priv, pub)
	mgr, err := auth.NewTokenManager(privPath, pubPath)
	require.NoError(t, err)
	return mgr, priv
}

// forgeToken signs a JWT with the given private key and claims.
func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func TestValidateExportToken_WrongIssuer(t *testing.T) {
	mgr, privKey := newTestTokenManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    "not-monban",
			Audience:  jwt.ClaimStrings{"monban"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		KeyName: "forged",
		Role:    model.RoleAdmin,
		Scope:   auth.ScopeAuditExport,
	})

	_, err := mgr.ValidateExportToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid issuer")
}

func TestValidateExportToken_WrongAudience(t *testing.T) {
	mgr, privKey := newTestTokenManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    "monban",
			Audience:  jwt.ClaimStrings{"someone-else"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		KeyName: "forged",
		Role:    model.RoleAdmin,
		Scope:   auth.ScopeAuditExport,
	})

	_, err := mgr.ValidateExportToken(token)
	require.Error(t, err)
}

func TestValidateExportToken_WrongScope(t *testing.T) {
	mgr, privKey := newTestTokenManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    "monban",
			Audience:  jwt.ClaimStrings{"monban"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		KeyName: "forged",
		Role:    model.RoleAdmin,
		Scope:   "whitelist:write",
	})

	_, err := mgr.ValidateExportToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scope")
}

func TestValidateExportToken_MalformedSubject(t *testing.T) {
	mgr, privKey := newTestTokenManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    "monban",
			Audience:  jwt.ClaimStrings{"monban"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		KeyName: "forged",
		Role:    model.RoleAdmin,
		Scope:   auth.ScopeAuditExport,
	})

	_, err := mgr.ValidateExportToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid subject")
}

func TestValidateExportToken_ForeignKey(t *testing.T) {
	mgr, _ := newTestTokenManagerWithKey(t)

	_, foreignPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	now := time.Now().UTC()
	token := forgeToken(t, foreignPriv, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    "monban",
			Audience:  jwt.ClaimStrings{"monban"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		KeyName: "forged",
		Role:    model.RoleAdmin,
		Scope:   auth.ScopeAuditExport,
	})

	_, err = mgr.ValidateExportToken(token)
	require.Error(t, err)
}

func TestNewTokenManager_MismatchedKeyPair(t *testing.T) {
	_, privA, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubB, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privPath, pubPath := writeKeyPEMs(t, privA, pubB)
	_, err = auth.NewTokenManager(privPath, pubPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}
