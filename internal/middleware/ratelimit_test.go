package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// withUser stands in for BearerAuth: the limiter reads the user from context.
func withUser(c *gin.Context) {
	if id := c.GetHeader("X-Test-User"); id != "" {
		c.Set(UserIDKey, id)
	}
	c.Next()
}

func newLimitedRouter(rps float64, burst int) *gin.Engine {
	router := gin.New()
	router.Use(withUser)
	router.Use(RateLimit(rps, burst))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func get(router *gin.Engine, user string) int {
	req := httptest.NewRequest("GET", "/test", nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_AllowsNormalTraffic(t *testing.T) {
	router := newLimitedRouter(10, 5)

	for i := 0; i < 5; i++ {
		if code := get(router, "user-a"); code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, code)
		}
	}
}

func TestRateLimit_RejectsExcessiveTraffic(t *testing.T) {
	router := newLimitedRouter(1, 2)

	for i := 0; i < 2; i++ {
		get(router, "user-a")
	}

	if code := get(router, "user-a"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	router := newLimitedRouter(1, 1)

	if code := get(router, "user-a"); code != http.StatusOK {
		t.Errorf("user-a first request: expected 200, got %d", code)
	}
	if code := get(router, "user-a"); code != http.StatusTooManyRequests {
		t.Errorf("user-a second request: expected 429, got %d", code)
	}
	if code := get(router, "user-b"); code != http.StatusOK {
		t.Errorf("user-b first request: expected 200, got %d", code)
	}
}

func TestRateLimit_AnonymousPassesThrough(t *testing.T) {
	router := newLimitedRouter(1, 1)

	for i := 0; i < 3; i++ {
		if code := get(router, ""); code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, code)
		}
	}
}
