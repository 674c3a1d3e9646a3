package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func secureHeaders(hsts time.Duration) http.Header {
	router := gin.New()
	router.Use(Secure(hsts))
	router.GET("/health", okHandler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	return w.Header()
}

func TestSecure(t *testing.T) {
	h := secureHeaders(0)

	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, h.Get("Strict-Transport-Security"))
}

func TestSecure_HSTS(t *testing.T) {
	h := secureHeaders(10 * time.Minute)
	assert.Equal(t, "max-age=600; includeSubDomains", h.Get("Strict-Transport-Security"))
}
