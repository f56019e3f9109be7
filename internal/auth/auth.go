package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity 外部身份服务签发的用户身份
type Identity struct {
	UserID      string
	DisplayName string
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify 校验身份服务签发的 token，返回用户身份
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	userID, _ := claims["userID"].(string)
	if userID == "" {
		return nil, ErrInvalidToken
	}
	name, _ := claims["displayName"].(string)
	return &Identity{UserID: userID, DisplayName: name}, nil
}

// GenerateToken 仅用于本地联调和测试，正式 token 由身份服务签发
func GenerateToken(secret, userID, displayName string) (string, error) {
	claims := jwt.MapClaims{
		"userID":      userID,
		"displayName": displayName,
		"exp":         time.Now().Add(24 * time.Hour).Unix(), // 24 小时过期
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
