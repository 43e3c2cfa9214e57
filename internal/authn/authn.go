// Package authn extracts an opaque recipient identity from a bearer JWT.
// Tokens are expected to have been issued by whatever fleet operator
// deploys game clients and game servers; this package only verifies the
// signature and pulls out the subject, mirroring the teacher's
// services/auth.Service claims shape without any of its user/password
// machinery.
package authn

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the subset of a fleet token this control plane relies on: the
// subject is the opaque server_id or user_id the caller is authenticating
// as, per spec.md §6.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens against a single shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

var (
	ErrMissingHeader = errors.New("authn: missing or malformed authorization header")
	ErrInvalidToken  = errors.New("authn: invalid or expired token")
)

// RecipientID parses the Authorization header of r and returns the token
// subject as a UUID, used by both the Matchmaking API and the Notification
// Bus to identify the caller.
func (v *Verifier) RecipientID(r *http.Request) (uuid.UUID, error) {
	sub, err := v.subject(r.Header.Get("Authorization"))
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

func (v *Verifier) subject(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingHeader
	}
	raw := strings.TrimPrefix(header, prefix)

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Issue signs a token for subject, used by tests to mint credentials
// without a separate identity provider.
func (v *Verifier) Issue(subject string) (string, error) {
	claims := &Claims{
		Subject:          subject,
		RegisteredClaims: jwt.RegisteredClaims{},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
