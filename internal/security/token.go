package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"equipment-scheduler/internal/domain"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

// TokenType separates access tokens from other tokens signed with the same
// secret.
type TokenType string

const TokenTypeAccess TokenType = "access"

// UserClaims are issued by the identity subsystem. Only the user id and
// roles matter to scheduling.
type UserClaims struct {
	UserID int32     `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Type   TokenType `json:"type"`
	Roles  []string  `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates access tokens and maps their roles to
// scheduling actors.
type TokenManager interface {
	GenerateAccessToken(userID int32, email string, roles []string) (string, error)
	ValidateToken(tokenString string) (*UserClaims, error)
	Actor(claims *UserClaims) domain.Actor
}

type tokenManager struct {
	secret      []byte
	expiry      time.Duration
	staffRoles  map[string]bool
	readerRoles map[string]bool
}

// NewTokenManager validates HS256 access tokens. Holders of any of
// staffRoles act as staff, holders of readerRoles act as the system (RFID
// reader gateways), and everyone else acts as a requester. Staff wins when
// a token carries both.
func NewTokenManager(secret string, expiry time.Duration, staffRoles, readerRoles []string) TokenManager {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &tokenManager{
		secret:      []byte(secret),
		expiry:      expiry,
		staffRoles:  roleSet(staffRoles),
		readerRoles: roleSet(readerRoles),
	}
}

func roleSet(roles []string) map[string]bool {
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}

func (m *tokenManager) GenerateAccessToken(userID int32, email string, roles []string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID: userID,
		Email:  email,
		Type:   TokenTypeAccess,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(int(userID)),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "auth-service",
			Audience:  jwt.ClaimStrings{"api-access"},
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	if claims.UserID == 0 && claims.Subject != "" {
		uid, _ := strconv.Atoi(claims.Subject)
		claims.UserID = int32(uid)
	}
	return claims, nil
}

func (m *tokenManager) Actor(claims *UserClaims) domain.Actor {
	actor := domain.Actor{UserID: claims.UserID, Kind: domain.ActorRequester}
	for _, r := range claims.Roles {
		switch {
		case m.staffRoles[r]:
			actor.Kind = domain.ActorStaff
			return actor
		case m.readerRoles[r]:
			actor.Kind = domain.ActorSystem
		}
	}
	return actor
}
