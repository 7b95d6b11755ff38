// Package jwt выпускает и проверяет bearer-токены для API-клиентов.
//
// Токен подписывается HS256 и содержит идентификатор пользователя в поле sub,
// а также e-mail и тип плана на момент выпуска.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken возвращается для просроченных, повреждённых или чужих токенов.
var ErrInvalidToken = errors.New("invalid token")

// Maker описывает генерацию и разбор токенов.
type Maker interface {
	GenerateToken(userID uuid.UUID, email string) (string, time.Time, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// CustomClaims — данные, хранящиеся в токене.
type CustomClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID возвращает идентификатор пользователя из поля sub.
func (c *CustomClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// MakerImpl реализует Maker на основе секретного ключа и времени жизни токена.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт MakerImpl.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// GenerateToken подписывает токен и возвращает его вместе с моментом истечения.
func (j *MakerImpl) GenerateToken(userID uuid.UUID, email string) (string, time.Time, error) {
	const op = "jwt.GenerateToken"
	now := j.now()
	expiresAt := now.Add(j.tokenTTL)
	claims := CustomClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.secretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return signed, expiresAt, nil
}

// ParseToken проверяет подпись, алгоритм и срок действия токена.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%s: %w: bad subject", op, ErrInvalidToken)
	}
	return claims, nil
}
