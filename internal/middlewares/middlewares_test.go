package middlewares

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtauth "github.com/Gopher0727/PropChat/middleware/jwt"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := jwtauth.NewTokenManager("secret", 1)
	valid, err := tokens.GenerateToken(42)
	require.NoError(t, err)
	forged, err := jwtauth.NewTokenManager("other", 1).GenerateToken(42)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		id, ok := UserID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + valid, "", http.StatusOK},
		{"query token", "", "?token=" + valid, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, "", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.status == http.StatusOK {
				assert.EqualValues(t, 42, body["user_id"])
			} else {
				assert.Equal(t, string(apperr.CodeAuth), body["code"])
			}
		})
	}
}

func TestMaxConcurrencyMiddleware(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	r := gin.New()
	r.Use(MaxConcurrencyMiddleware(1))
	r.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.Status(http.StatusNoContent)
	})
	r.GET("/fast", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	var wg sync.WaitGroup
	slow := httptest.NewRecorder()
	wg.Go(func() {
		r.ServeHTTP(slow, httptest.NewRequest(http.MethodGet, "/slow", nil))
	})
	<-entered

	busy := httptest.NewRecorder()
	r.ServeHTTP(busy, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusTooManyRequests, busy.Code)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusNoContent, slow.Code)

	after := httptest.NewRecorder()
	r.ServeHTTP(after, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusNoContent, after.Code)
}

func TestMaxConcurrencyDisabled(t *testing.T) {
	r := gin.New()
	r.Use(MaxConcurrencyMiddleware(0))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
