package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wfunc/quizserver/models"
)

// Claims 令牌里携带的玩家身份，sub 为用户ID
type Claims struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens minted with the shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: empty secret")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Issue mints a token for identity valid for ttl. A zero ttl never expires.
func Issue(secret string, identity models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  identity.Username,
		Admin: identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify parses tokenString and returns the identity it carries.
func (v *Verifier) Verify(tokenString string) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, models.ErrUnauthenticated
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return models.Identity{}, models.ErrUnauthenticated
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return models.Identity{UserID: claims.Subject, Username: name, IsAdmin: claims.Admin}, nil
}

// FromRequest 先看 Authorization: Bearer 头，浏览器的 websocket 连接只能用 token 查询参数
func (v *Verifier) FromRequest(r *http.Request) (models.Identity, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return models.Identity{}, models.ErrUnauthenticated
		}
		token = strings.TrimSpace(value)
	}
	return v.Verify(token)
}
