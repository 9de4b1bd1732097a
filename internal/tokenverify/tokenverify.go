package tokenverify

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid_token")
	ErrTokenExpired   = errors.New("token_expired")
	ErrSubjectMissing = errors.New("subject_missing")
)

// Audience the hosted auth service puts on user access tokens.
const Audience = "authenticated"

type Parser interface {
	Parse(token string) (*jwt.Token, jwt.MapClaims, error)
}

// Result is the part of a hosted-service access token the account service
// cares about.
type Result struct {
	UserID       string
	Email        string
	Role         string
	AAL          string
	SessionID    string
	ExpiresAt    time.Time
	AppMetadata  map[string]any
	UserMetadata map[string]any
}

type hmacParser struct {
	key []byte
}

type unverifiedParser struct{}

// NewParser verifies HS256 signatures with secret. Without a secret tokens
// are only decoded; callers must then confirm them against the auth service.
func NewParser(secret string) Parser {
	if secret == "" {
		return unverifiedParser{}
	}
	return hmacParser{key: []byte(secret)}
}

// VerifiesSignature reports whether p checks signatures. Tokens accepted by a
// parser that does not must not be trusted on their own.
func VerifiesSignature(p Parser) bool {
	_, ok := p.(hmacParser)
	return ok
}

func (p hmacParser) Parse(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithLeeway(30*time.Second),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return p.key, nil
	})
	return token, claims, err
}

func (unverifiedParser) Parse(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, nil, err
	}
	token.Valid = true
	return token, claims, nil
}

// Verify parses and validates an access token and reads the hosted
// service's claims from it.
func Verify(parser Parser, token string, nowFn func() time.Time) (*Result, error) {
	if parser == nil {
		return nil, ErrInvalidToken
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	tok, claims, err := parser.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if tok == nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || nowFn().After(exp.Time) {
		return nil, ErrTokenExpired
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, ErrSubjectMissing
	}
	res := &Result{UserID: sub, ExpiresAt: exp.Time}
	res.Email, _ = claims["email"].(string)
	res.Role, _ = claims["role"].(string)
	res.AAL, _ = claims["aal"].(string)
	res.SessionID, _ = claims["session_id"].(string)
	res.AppMetadata, _ = claims["app_metadata"].(map[string]any)
	res.UserMetadata, _ = claims["user_metadata"].(map[string]any)
	return res, nil
}
