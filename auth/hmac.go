package auth

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt"
)

type hmacAuth struct {
	secret   []byte
	issuer   string
	audience string
}

func newHMACAuth(cfg Config) (*hmacAuth, error) {
	if cfg.Secret == "" {
		return nil, errors.New("hmac authentication requires a secret")
	}
	return &hmacAuth{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

func (a *hmacAuth) Mode() string { return ModeHMAC }

func (a *hmacAuth) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method " + token.Method.Alg())
	}
	return a.secret, nil
}

func (a *hmacAuth) Authenticate(r *http.Request) (User, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return User{}, err
	}
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, a.keyFunc)
	if err != nil {
		return User{}, ErrUnauthorized{Reason: err.Error()}
	}
	if !token.Valid {
		return User{}, ErrUnauthorized{Reason: "invalid token"}
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return User{}, ErrUnauthorized{Reason: "wrong issuer"}
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return User{}, ErrUnauthorized{Reason: "wrong audience"}
	}
	if claims.Subject == "" {
		return User{}, ErrUnauthorized{Reason: "token has no subject"}
	}
	return User{Name: claims.Subject, Mode: ModeHMAC}, nil
}
