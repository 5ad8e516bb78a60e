// Package auth verifies bearer credentials for hub admission and assigns
// each user a stable display color.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tessellate/canvasd/errors"
)

// Claims are the profile claims canvasd consumes from a verified token.
type Claims struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed bearer tokens.
type Verifier struct {
	secretKey []byte
	issuer    string
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secretKey, issuer string) *Verifier {
	return &Verifier{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

// Verify validates the token signature and expiry and returns the claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Newf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.secretKey, nil
		},
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.Wrap(errors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "token carries no user id")
	}

	return claims, nil
}

// Generate creates a signed token. Used by the `canvasd token` command and tests.
func (v *Verifier) Generate(userID, username, email, displayName string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:      userID,
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}

// TokenFromRequest extracts a bearer token from a WebSocket upgrade request.
// Order: `token` query parameter, `Bearer.<t>` sub-protocol entry,
// Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	for _, proto := range r.Header.Values("Sec-Websocket-Protocol") {
		for _, entry := range strings.Split(proto, ",") {
			entry = strings.TrimSpace(entry)
			if strings.HasPrefix(entry, "Bearer.") {
				return strings.TrimPrefix(entry, "Bearer.")
			}
		}
	}

	const bearerPrefix = "Bearer "
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix)
	}

	return ""
}
