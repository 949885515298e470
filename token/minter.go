package token

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

// ErrInvalidToken is returned by Parse for any token that fails signature,
// expiry, or issuer verification.
var ErrInvalidToken = errors.New("invalid token")

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Parsed is the verified content of an access token.
type Parsed struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	Claims    map[string]string
}

// Minter signs short-lived access tokens bound to a tenant subject under a
// fixed issuer tag. Stateless and safe for concurrent use.
type Minter struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewMinter creates a Minter. The same secret verifies what it signs.
func NewMinter(secret []byte, issuer string, ttl time.Duration) (*Minter, error) {
	if len(secret) == 0 {
		return nil, pkgerrors.New("[NewMinter] secret is required")
	}
	if issuer == "" {
		return nil, pkgerrors.New("[NewMinter] issuer is required")
	}
	if ttl <= 0 {
		return nil, pkgerrors.New("[NewMinter] ttl must be positive")
	}
	return &Minter{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Mint signs an HS256 token with the subject and extra claims.
func (m *Minter) Mint(subject string, claims map[string]string) (string, error) {
	now := NowTimeFunc()
	mapClaims := jwtlib.MapClaims{
		"iss": m.issuer,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
		"jti": uuid.New().String(),
	}
	for k, v := range claims {
		mapClaims[k] = v
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, mapClaims).SignedString(m.secret)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Minter.Mint] SignedString")
	}
	return signed, nil
}

// Parse verifies a token string and returns its content. Verification
// failures of any kind come back as ErrInvalidToken.
func (m *Minter) Parse(tokenString string) (*Parsed, error) {
	parsed, err := jwtlib.Parse(tokenString,
		func(t *jwtlib.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
				return nil, pkgerrors.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.secret, nil
		},
		jwtlib.WithIssuer(m.issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(func() time.Time { return NowTimeFunc() }),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrInvalidToken
	}
	expiry, err := mapClaims.GetExpirationTime()
	if err != nil || expiry == nil {
		return nil, ErrInvalidToken
	}

	extra := make(map[string]string)
	for k, v := range mapClaims {
		switch k {
		case "iss", "sub", "iat", "exp", "jti":
			continue
		}
		if s, ok := v.(string); ok {
			extra[k] = s
		}
	}

	return &Parsed{
		Subject:   subject,
		Issuer:    m.issuer,
		ExpiresAt: expiry.Time,
		Claims:    extra,
	}, nil
}
