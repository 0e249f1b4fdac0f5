package device

import (
	"fmt"
	"time"

	"github.com/angelmondragon/webstore-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// Claims is the typed JWT handed to a browser to scope its cart slot. It
// carries no account identity.
type Claims struct {
	DeviceID uuid.UUID `json:"device_id"`
	jwt.RegisteredClaims
}

// Mint issues a signed device token for id using the configured TTL.
func Mint(cfg config.DeviceConfig, now time.Time, id uuid.UUID) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("device secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("device issuer is required")
	}
	if cfg.TokenTTL <= 0 {
		return "", fmt.Errorf("device token ttl must be positive")
	}
	if id == uuid.Nil {
		return "", fmt.Errorf("device id is required")
	}

	claims := Claims{
		DeviceID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	return signed, nil
}

// Parse validates the token string and returns typed claims.
func Parse(cfg config.DeviceConfig, tokenString string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("device secret is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}
	if claims.DeviceID == uuid.Nil {
		return nil, fmt.Errorf("device token missing device_id")
	}

	return claims, nil
}
