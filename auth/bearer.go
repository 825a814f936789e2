package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/lestrrat-go/jwx/jws"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/pkg/errors"
)

// discoveryTimeout bounds the initial OpenID discovery and key fetch.
const discoveryTimeout = 30 * time.Second

// Signature algorithms accepted from the identity provider.  The
// symmetric algorithms are excluded since a public key set cannot
// hold their keys.
var asymmetricAlgorithms = map[jwa.SignatureAlgorithm]bool{
	jwa.RS256: true,
	jwa.RS384: true,
	jwa.RS512: true,
	jwa.PS256: true,
	jwa.PS384: true,
	jwa.PS512: true,
	jwa.ES256: true,
	jwa.ES384: true,
	jwa.ES512: true,
	jwa.EdDSA: true,
}

// Claims consulted, in order, for the user name; "sub" is the last
// resort.
var nameClaims = []string{"preferred_username", "upn", "email"}

type bearerAuth struct {
	issuer   string
	audience string
	jwksURL  string
	keys     *jwk.AutoRefresh
	cancel   context.CancelFunc
}

func newBearerAuth(cfg Config) (*bearerAuth, error) {
	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		if cfg.Issuer == "" {
			return nil, errors.New("bearer authentication requires an issuer or a JWKS URL")
		}
		var err error
		jwksURL, err = discoverJWKS(ctx, http.DefaultClient, cfg.Issuer)
		if err != nil {
			return nil, err
		}
	}

	refreshCtx, stop := context.WithCancel(context.Background())
	keys := jwk.NewAutoRefresh(refreshCtx)
	var opts []jwk.AutoRefreshOption
	if cfg.RefreshInterval > 0 {
		opts = append(opts, jwk.WithRefreshInterval(cfg.RefreshInterval))
	}
	keys.Configure(jwksURL, opts...)
	if _, err := keys.Fetch(ctx, jwksURL); err != nil {
		stop()
		return nil, errors.Wrapf(err, "fetching key set from %s", jwksURL)
	}

	return &bearerAuth{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		jwksURL:  jwksURL,
		keys:     keys,
		cancel:   stop,
	}, nil
}

// discoverJWKS finds the key set URL in an issuer's OpenID provider
// configuration.
func discoverJWKS(ctx context.Context, client *http.Client, issuer string) (string, error) {
	url := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, "fetching OpenID configuration")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetching %s: %s", url, resp.Status)
	}
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", errors.Wrap(err, "decoding OpenID configuration")
	}
	if doc.JWKSURI == "" {
		return "", errors.Errorf("%s has no jwks_uri", url)
	}
	return doc.JWKSURI, nil
}

func (a *bearerAuth) Mode() string { return ModeBearer }

// Close stops refreshing the key set.
func (a *bearerAuth) Close() error {
	a.cancel()
	return nil
}

func (a *bearerAuth) Authenticate(r *http.Request) (User, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return User{}, err
	}
	set, err := a.keys.Fetch(r.Context(), a.jwksURL)
	if err != nil {
		return User{}, errors.Wrap(err, "fetching key set")
	}
	alg, key, err := selectKey(set, []byte(raw))
	if err != nil {
		return User{}, ErrUnauthorized{Reason: err.Error()}
	}
	token, err := jwt.Parse([]byte(raw), jwt.WithVerify(alg, key))
	if err != nil {
		return User{}, ErrUnauthorized{Reason: err.Error()}
	}

	var opts []jwt.ValidateOption
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	if err = jwt.Validate(token, opts...); err != nil {
		return User{}, ErrUnauthorized{Reason: err.Error()}
	}

	name := tokenUser(token)
	if name == "" {
		return User{}, ErrUnauthorized{Reason: "token names no user"}
	}
	return User{Name: name, Mode: ModeBearer}, nil
}

// selectKey finds the key in set that should have signed a compact
// JWS, and the algorithm to verify it with.
func selectKey(set jwk.Set, raw []byte) (jwa.SignatureAlgorithm, interface{}, error) {
	msg, err := jws.Parse(raw)
	if err != nil {
		return "", nil, err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", nil, errors.New("token must have exactly one signature")
	}
	headers := sigs[0].ProtectedHeaders()
	alg := headers.Algorithm()
	if !asymmetricAlgorithms[alg] {
		return "", nil, errors.Errorf("unacceptable signature algorithm %q", alg)
	}

	var key jwk.Key
	var ok bool
	if kid := headers.KeyID(); kid != "" {
		key, ok = set.LookupKeyID(kid)
		if !ok {
			return "", nil, errors.Errorf("unknown key ID %q", kid)
		}
	} else if set.Len() == 1 {
		key, _ = set.Get(0)
	} else {
		return "", nil, errors.New("token has no key ID")
	}
	if keyAlg := key.Algorithm(); keyAlg != "" && keyAlg != alg.String() {
		return "", nil, errors.Errorf("key is for %s, not %s", keyAlg, alg)
	}

	var rawKey interface{}
	if err = key.Raw(&rawKey); err != nil {
		return "", nil, err
	}
	return alg, rawKey, nil
}

func tokenUser(token jwt.Token) string {
	for _, claim := range nameClaims {
		if v, ok := token.Get(claim); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return token.Subject()
}
