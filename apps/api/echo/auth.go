package echoapi

import (
	"sort"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
)

const contextTokenKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the school's authentication service; this API only verifies them.
type Claims struct {
	jwt.StandardClaims
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	IsAdmin  bool     `json:"is_admin,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

func (c Claims) Caller() core.Caller {
	return core.Caller{ID: c.Subject, Username: c.Username, Email: c.Email}
}

// NewClaims returns the claims of a caller, valid for ttl.
func NewClaims(conf *core.Config, caller core.Caller, ttl time.Duration, roles ...string) *Claims {
	now := time.Now()
	var isAdmin bool
	for _, r := range roles {
		if strings.HasPrefix(r, fees.RoleAdmin) {
			isAdmin = true
			break
		}
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.Server.JWTIssuer,
			Subject:   caller.ID,
			Audience:  conf.Server.JWTAudience,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: caller.Username,
		Email:    caller.Email,
		IsAdmin:  isAdmin,
		Roles:    roles,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// newJWTMiddleware verifies the token signature, then its audience and issuer.
func newJWTMiddleware(conf *core.Config) echo.MiddlewareFunc {
	jwtMw := middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verify := func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if !claims.VerifyAudience(conf.Server.JWTAudience, false) || !claims.VerifyIssuer(conf.Server.JWTIssuer, false) {
				return errInvalidToken
			}
			return next(ctx)
		}
		return jwtMw(verify)
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) {
				if match := claims.Roles[i]; role == match {
					return true
				}
			}
		}
	}
	return false
}
