// Package auth issues and validates the JWT tokens a peer presents during
// the establish handshake, grounded on the teacher's internal/auth
// (same TokenManager/Claims shape, retargeted from wallet addresses to
// PeerIDs) plus a middleware.Check adapter consulted while establishing a
// channel.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Permission string

const (
	PermissionReadOnly  Permission = "read"
	PermissionReadWrite Permission = "write"
	PermissionAdmin     Permission = "admin"
)

type Claims struct {
	UserID      string       `json:"user_id"`
	PeerID      string       `json:"peer_id"`
	Permissions []Permission `json:"permissions"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

func NewTokenManager(secretKey string) *TokenManager {
	return &TokenManager{
		secretKey:     []byte(secretKey),
		tokenDuration: 1 * time.Hour,
	}
}

// GenerateToken creates a new JWT token
func (tm *TokenManager) GenerateToken(
	userID, peerID string,
	permissions []Permission,
) (string, error) {
	claims := Claims{
		UserID:      userID,
		PeerID:      peerID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken verifies and parses a JWT token
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return tm.secretKey, nil
		},
	)

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// RefreshToken generates a new token with extended expiration
func (tm *TokenManager) RefreshToken(oldToken string) (string, error) {
	claims, err := tm.ValidateToken(oldToken)
	if err != nil {
		return "", err
	}

	return tm.GenerateToken(claims.UserID, claims.PeerID, claims.Permissions)
}

// HasPermission checks if claims contain required permission
func (c *Claims) HasPermission(required Permission) bool {
	for _, p := range c.Permissions {
		if p == required || p == PermissionAdmin {
			return true
		}
	}
	return false
}

// Middleware for HTTP authentication
type AuthMiddleware struct {
	tokenManager *TokenManager
}

func NewAuthMiddleware(tokenManager *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tokenManager}
}

type contextKey string

const claimsKey contextKey = "claims"

func (am *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)
			return
		}

		tokenString := authHeader[7:]
		claims, err := am.tokenManager.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// TokenMetadataKey is the identity-metadata key an establish-request
// carries its bearer token under.
const TokenMetadataKey = "auth_token"

// CheckEstablish validates the bearer token an establish-request's identity
// metadata carries and confirms it was issued to the PeerID attempting to
// establish. It has the shape a middleware.Check expects: it returns
// (allow, reason). A request with no token metadata at all is allowed
// through, so deployments that don't configure a TokenManager remain
// permissive by default; a present-but-invalid token is always denied.
func (tm *TokenManager) CheckEstablish(peerID string, metadata map[string]string) (bool, string) {
	token, present := metadata[TokenMetadataKey]
	if !present {
		return true, ""
	}

	claims, err := tm.ValidateToken(token)
	if err != nil {
		return false, fmt.Sprintf("invalid establish token: %v", err)
	}

	if claims.PeerID != "" && claims.PeerID != peerID {
		return false, "establish token was not issued to this peer"
	}

	return true, ""
}