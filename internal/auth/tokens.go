package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

type Claims struct {
	UserID    int64          `json:"user_id"`
	UserType  model.UserType `json:"user_type"`
	TokenType string         `json:"token_type"`
	// SessionID is the access token id a refresh token belongs to.
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) AllowsMultipleDevices() bool {
	return c.UserType == model.UserTypeAdmin
}

type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a new access/refresh pair for user. Each token has its own jti;
// the refresh token records the access jti it was issued with.
func (m *TokenManager) Issue(user *model.User) (model.TokenPair, *Claims, *Claims, error) {
	now := m.now()

	access := m.claims(user, TokenAccess, now, m.accessTTL)
	refresh := m.claims(user, TokenRefresh, now, m.refreshTTL)
	refresh.SessionID = access.ID

	accessStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(m.secret)
	if err != nil {
		return model.TokenPair{}, nil, nil, err
	}
	refreshStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(m.secret)
	if err != nil {
		return model.TokenPair{}, nil, nil, err
	}

	pair := model.TokenPair{Access: accessStr, Refresh: refreshStr, ExpiresAt: access.ExpiresAt.Time}
	return pair, access, refresh, nil
}

func (m *TokenManager) claims(user *model.User, tokenType string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		UserID:    user.ID,
		UserType:  user.UserType,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// Parse validates signature, expiry and token type.
func (m *TokenManager) Parse(tokenString, tokenType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthorized, err, apperrors.ErrInvalidToken.Error())
	}

	if claims.TokenType != tokenType || claims.ID == "" {
		return nil, apperrors.New(apperrors.KindUnauthorized, apperrors.ErrInvalidToken.Error())
	}

	return claims, nil
}
