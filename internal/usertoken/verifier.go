// Package usertoken verifies RS256 access tokens issued by an external
// identity provider against its JWKS.
package usertoken

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultLeeway  = 30 * time.Second
	refreshTimeout = 5 * time.Second
)

var (
	errUnknownKey = errors.New("unknown token key")
	// ErrNoEmail is returned for valid tokens without an email claim.
	ErrNoEmail = errors.New("token email missing")
)

// Claims are the access-token claims read by the service. Identity
// providers put the signed-in user's address in "email".
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the verified caller.
type Identity struct {
	Subject string
	Email   string
}

// Config configures verification. Issuer and Audience are checked only when
// set.
type Config struct {
	JWKSURL    string
	Issuer     string
	Audience   string
	Leeway     time.Duration
	HTTPClient *http.Client
}

// Verifier validates user access tokens.
type Verifier struct {
	keys   *keySet
	parser *jwt.Parser
}

// NewVerifier fetches the key set once and fails when it is unusable.
func NewVerifier(cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	v := &Verifier{
		keys:   &keySet{url: jwksURL, client: client},
		parser: jwt.NewParser(opts...),
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := v.keys.refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// VerifySubject validates the token and returns its subject.
func (v *Verifier) VerifySubject(token string) (string, error) {
	claims, err := v.claims(token)
	if err != nil {
		return "", err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errors.New("token subject missing")
	}
	return subject, nil
}

// Verify validates the token and returns the caller. Books are owned by
// email, so a token without one is rejected.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims, err := v.claims(token)
	if err != nil {
		return Identity{}, err
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return Identity{}, ErrNoEmail
	}
	return Identity{Subject: strings.TrimSpace(claims.Subject), Email: email}, nil
}

// claims parses token, refetching the key set once when the signing key is
// unknown or the cached set has expired.
func (v *Verifier) claims(token string) (Claims, error) {
	claims, err := v.parse(token)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, errUnknownKey) && !v.keys.stale() {
		return Claims{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := v.keys.refresh(ctx); err != nil {
		return Claims{}, err
	}
	return v.parse(token)
}

func (v *Verifier) parse(token string) (Claims, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := v.keys.lookup(strings.TrimSpace(kid))
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	})
	if err != nil {
		return Claims{}, err
	}
	return claims, nil
}
