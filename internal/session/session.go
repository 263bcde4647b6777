package session

import (
	"net/http"
	"strings"
	"time"

	"aichat-backend/internal/pkg/jwtutil"
)

// Session is the resolved identity for one request. It is never persisted.
type Session struct {
	UserID    uint
	Username  string
	ExpiresAt time.Time
}

// Resolver turns an incoming request into a session. A nil session with a
// nil error means the request is unauthenticated; callers must reject it.
type Resolver interface {
	Resolve(r *http.Request) (*Session, error)
}

// JWTResolver resolves sessions from a Bearer token in the Authorization
// header.
type JWTResolver struct {
	secret string
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: secret}
}

func (j *JWTResolver) Resolve(r *http.Request) (*Session, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return nil, nil
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil, nil
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	claims, err := jwtutil.ParseToken(j.secret, token)
	if err != nil {
		return nil, nil
	}

	return &Session{
		UserID:    claims.UserID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// StaticResolver binds every request to one fixed identity. Meant for local
// development where no identity provider is wired up.
type StaticResolver struct {
	userID   uint
	username string
}

func NewStaticResolver(userID uint, username string) *StaticResolver {
	return &StaticResolver{userID: userID, username: username}
}

func (s *StaticResolver) Resolve(_ *http.Request) (*Session, error) {
	return &Session{
		UserID:    s.userID,
		Username:  s.username,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}
