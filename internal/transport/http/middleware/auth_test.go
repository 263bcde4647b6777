package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"aichat-backend/internal/session"
)

type nilResolver struct{}

func (nilResolver) Resolve(*http.Request) (*session.Session, error) { return nil, nil }

func TestAuthRejectsMissingSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handlerRan := false
	router.GET("/protected", Auth(nilResolver{}), func(c *gin.Context) {
		handlerRan = true
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if handlerRan {
		t.Error("handler ran for an unauthenticated request")
	}
}

func TestAuthSetsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	resolver := session.NewStaticResolver(3, "dev")
	router.GET("/protected", Auth(resolver), func(c *gin.Context) {
		userID, _ := c.Get(ContextUserIDKey)
		if userID != uint(3) {
			t.Errorf("user id in context = %v, want 3", userID)
		}
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
