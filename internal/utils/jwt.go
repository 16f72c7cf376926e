package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/segment-reservation/internal/domain"
)

// AccessToken is a signed HS256 JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// ErrInvalidToken covers every reason a bearer token is refused.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken signs a token carrying the caller identity: sub is the
// user ID and role one of the domain roles. Tokens are issued by the
// surrounding platform; this is used by operators and tests.
func NewAccessToken(secret string, userID uint64, role domain.Role, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": string(role),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw and returns the identity it carries.
// sub may be encoded as a string or a JSON number.
func ParseAccessToken(secret, raw string) (domain.RequestContext, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return domain.RequestContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.RequestContext{}, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}

	var uid uint64
	switch v := claims["sub"].(type) {
	case string:
		uid, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			return domain.RequestContext{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
		}
	case float64:
		if v < 1 || v != float64(uint64(v)) {
			return domain.RequestContext{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
		}
		uid = uint64(v)
	default:
		return domain.RequestContext{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if uid == 0 {
		return domain.RequestContext{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	roleStr, _ := claims["role"].(string)
	role := domain.Role(roleStr)
	if !role.Valid() {
		return domain.RequestContext{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleStr)
	}
	return domain.RequestContext{UserID: uid, Role: role}, nil
}
