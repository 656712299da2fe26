package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-request-guard/internal/model"
	"go-request-guard/internal/rbac"
	"go-request-guard/pkg/apierror"
)

const (
	TokenTypeAccess = "access"
	minSecretLength = 32
)

// TokenService verifies the bearer tokens issued by the identity provider and
// turns them into rbac users. Issue exists for tooling and tests.
type TokenService struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
	now       func() time.Time
}

func NewTokenService(secret string, accessTTL time.Duration, issuer string) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	return &TokenService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		issuer:    issuer,
		now:       time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and expiry checks.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *TokenService) Issue(user rbac.User) (model.IssuedToken, error) {
	if strings.TrimSpace(user.ID) == "" {
		return model.IssuedToken{}, apierror.BadRequest("user id is required", "")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.accessTTL)

	permissions := make([]string, 0, len(user.Permissions))
	for _, p := range user.Permissions {
		permissions = append(permissions, string(p))
	}

	claims := jwt.MapClaims{
		"sub":            user.ID,
		"email":          user.Email,
		"role":           user.Role,
		"email_verified": user.EmailVerified,
		"typ":            TokenTypeAccess,
		"jti":            uuid.NewString(),
		"iat":            now.Unix(),
		"exp":            expiresAt.Unix(),
	}
	if len(permissions) > 0 {
		claims["permissions"] = permissions
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return model.IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}

	return model.IssuedToken{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.accessTTL.Seconds()),
		ExpiresAt:   time.Unix(expiresAt.Unix(), 0).UTC(),
	}, nil
}

func (s *TokenService) ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.Unauthorized("invalid token signing method")
		}
		return s.secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", model.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, model.ErrTokenInvalid
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrTokenInvalid
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, fmt.Errorf("%w: unexpected token type %q", model.ErrTokenInvalid, typ)
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Email, _ = claimsMap["email"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.EmailVerified, _ = claimsMap["email_verified"].(bool)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if raw, ok := claimsMap["permissions"].([]interface{}); ok {
		for _, item := range raw {
			if p, ok := item.(string); ok && p != "" {
				claims.Permissions = append(claims.Permissions, p)
			}
		}
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject", model.ErrTokenInvalid)
	}

	return claims, nil
}

// Authenticate validates an access token and returns the user it carries.
func (s *TokenService) Authenticate(tokenString string) (*rbac.User, error) {
	claims, err := s.ValidateToken(tokenString, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return UserFromClaims(claims), nil
}

// UserFromClaims keeps the role string as issued; unknown roles are resolved
// by the rbac package, not here.
func UserFromClaims(claims *model.AuthClaims) *rbac.User {
	if claims == nil {
		return nil
	}

	user := &rbac.User{
		ID:            claims.UserID,
		Email:         claims.Email,
		Role:          claims.Role,
		EmailVerified: claims.EmailVerified,
	}
	for _, p := range claims.Permissions {
		user.Permissions = append(user.Permissions, rbac.Permission(p))
	}
	return user
}
