package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vthuan-dev/bufforder-sub001/internal/config"
	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

const staffRole = "admin"

// UserClaims is the claim shape of end-user tokens.
type UserClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// StaffClaims is the claim shape of staff tokens. Both kinds are signed with
// the same secret; the shapes keep one from being accepted as the other.
type StaffClaims struct {
	AdminID string `json:"admin_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller of a request or connection.
type Identity struct {
	ID   string
	Role models.SenderRole
}

func (i Identity) IsStaff() bool { return i.Role == models.SenderAdmin }

func (i Identity) Audience() models.Audience { return models.AudienceFor(i.Role) }

type JWTManager struct {
	secret []byte
	expiry time.Duration
}

func NewJWTManager(cfg *config.Config) *JWTManager {
	return &JWTManager{secret: []byte(cfg.JWT.Secret), expiry: cfg.JWT.Expiry}
}

func (m *JWTManager) GenerateUserToken(userID string) (string, error) {
	claims := UserClaims{
		UserID:           userID,
		RegisteredClaims: m.registered(userID),
	}
	return m.sign(claims)
}

func (m *JWTManager) GenerateStaffToken(adminID string) (string, error) {
	claims := StaffClaims{
		AdminID:          adminID,
		Role:             staffRole,
		RegisteredClaims: m.registered(adminID),
	}
	return m.sign(claims)
}

func (m *JWTManager) registered(subject string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
	}
}

func (m *JWTManager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *JWTManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return m.secret, nil
}

// ParseUserToken verifies an end-user token and returns its identity.
func (m *JWTManager) ParseUserToken(tokenString string) (Identity, error) {
	claims := &UserClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Identity{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return Identity{ID: claims.UserID, Role: models.SenderUser}, nil
}

// ParseStaffToken verifies a staff token and returns its identity.
func (m *JWTManager) ParseStaffToken(tokenString string) (Identity, error) {
	claims := &StaffClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.AdminID) == "" || claims.Role != staffRole {
		return Identity{}, fmt.Errorf("%w: not a staff token", ErrInvalidToken)
	}
	return Identity{ID: claims.AdminID, Role: models.SenderAdmin}, nil
}

// ParseAny tries the token as an end-user token, then as a staff token.
func (m *JWTManager) ParseAny(tokenString string) (Identity, error) {
	if id, err := m.ParseUserToken(tokenString); err == nil {
		return id, nil
	}
	return m.ParseStaffToken(tokenString)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
