package jwt

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/vpn-access/internal/entitlement"
	"github.com/magabrotheeeer/vpn-access/internal/models"
)

// CustomClaims данные аккаунта внутри токена.
type CustomClaims struct {
	UserID int64       `json:"user_id"`
	Email  string      `json:"email"`
	IsVIP  bool        `json:"is_vip"`
	Tier   models.Tier `json:"tier"`
	jwt.RegisteredClaims
}

// GenerateToken выпускает токен для аккаунта со сроком жизни tokenTTL.
func (j *MakerImpl) GenerateToken(acc *models.Account) (string, error) {
	const op = "jwt.GenerateToken"
	now := j.now()
	claims := CustomClaims{
		UserID: acc.ID,
		Email:  acc.Email,
		IsVIP:  entitlement.IsVIP(acc),
		Tier:   acc.Tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(acc.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// ParseToken проверяет подпись и срок действия токена.
//
// Просроченный токен возвращает models.ErrTokenExpired, любой другой
// дефект models.ErrTokenInvalid.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	if tokenStr == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrTokenMissing)
	}
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrTokenInvalid)
	}
	return claims, nil
}
