package auth

import (
	"errors"
	"time"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "ewaste-exchange"

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var (
	ErrInvalidToken = apperr.New(apperr.CodeUnauthorized, "invalid token")
	ErrExpiredToken = apperr.New(apperr.CodeUnauthorized, "token has expired")
)

// Claims identify the actor behind a request.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService issues and verifies HS256 tokens.
type TokenService struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(secretKey string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssuePair creates an access token carrying the role and a refresh token
// carrying only the subject.
func (s *TokenService) IssuePair(accountID, email, role string) (*TokenPair, error) {
	access, accessExp, err := s.sign(Claims{
		AccountID: accountID,
		Email:     email,
		Role:      role,
		TokenType: tokenAccess,
	}, s.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.sign(Claims{
		AccountID: accountID,
		TokenType: tokenRefresh,
	}, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) sign(claims Claims, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   claims.AccountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess validates an access token and returns its claims.
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	return s.verify(token, tokenAccess)
}

// VerifyRefresh validates a refresh token and returns the account ID.
func (s *TokenService) VerifyRefresh(token string) (string, error) {
	claims, err := s.verify(token, tokenRefresh)
	if err != nil {
		return "", err
	}
	return claims.AccountID, nil
}

func (s *TokenService) verify(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
