package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"

	// LocalUserID is the fiber.Ctx local holding the authenticated uuid.UUID.
	LocalUserID = "user_id"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTVerifier signs and verifies HS256 token pairs. It is the identity
// provider behind the proxy and every protected route.
type JWTVerifier struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewJWTVerifier(secret string, accessTTL, refreshTTL time.Duration) *JWTVerifier {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTVerifier{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (v *JWTVerifier) GenerateTokens(userID uuid.UUID, email string) (string, string, error) {
	access, err := v.sign(userID, email, TokenAccess, v.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := v.sign(userID, email, TokenRefresh, v.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (v *JWTVerifier) sign(userID uuid.UUID, email, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID.String(),
		Email:     email,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Parse validates tokenStr and checks it is of the wanted type.
func (v *JWTVerifier) Parse(tokenStr, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify accepts an access token and returns its user id.
func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (uuid.UUID, error) {
	claims, err := v.Parse(tokenStr, TokenAccess)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(claims.UserID), nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header,
// returning "" when the header is absent or malformed.
func BearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func JWTProtected(v *JWTVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := BearerToken(c)
		// Browsers cannot set headers on a websocket handshake.
		if tokenStr == "" && websocket.IsWebSocketUpgrade(c) {
			tokenStr = c.Query("access_token")
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or malformed authorization header",
			})
		}

		userID, err := v.Verify(c.UserContext(), tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(LocalUserID, userID)
		return c.Next()
	}
}

// UserID returns the id stored by JWTProtected.
func UserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(LocalUserID).(uuid.UUID)
	return id
}
