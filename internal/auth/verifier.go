package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Verifier parses and validates HS256 access tokens.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// Subject returns the user id carried by a valid token.
func (v Verifier) Subject(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", errors.New("auth: empty token")
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", err
	}
	if algorithm != jwa.HS256 {
		return "", fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.Secret))
	if err != nil {
		return "", err
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(parsed, options...); err != nil {
		return "", err
	}
	if parsed.Subject() == "" {
		return "", errors.New("auth: token missing subject")
	}
	return parsed.Subject(), nil
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token has no signatures")
	}
	return signatures[0].ProtectedHeaders().Algorithm(), nil
}
