package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	j := NewJWTHandler(testSecret, time.Hour)

	token, err := j.GenerateToken("ci-runner", RoleTester)
	require.NoError(t, err)

	claims, err := j.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ci-runner", claims.Subject)
	assert.Equal(t, RoleTester, claims.Role)
	assert.NotEmpty(t, claims.ID)

	_, err = j.GenerateToken("ci-runner", "root")
	assert.Error(t, err)
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	j := NewJWTHandler(testSecret, time.Minute)
	token, err := j.GenerateToken("op", RoleOperator)
	require.NoError(t, err)

	other := NewJWTHandler("another-secret-another-secret-xx", time.Minute)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)

	j.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = j.ValidateToken(token)
	assert.Error(t, err)
}

func newRouter(j *JWTHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(j))
	r.GET("/read", RequirePermission(PermRead), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/control", RequirePermission(PermControl), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestMiddleware(t *testing.T) {
	j := NewJWTHandler(testSecret, time.Hour)
	r := newRouter(j)

	viewer, err := j.GenerateToken("dash", RoleViewer)
	require.NoError(t, err)
	tester, err := j.GenerateToken("ci", RoleTester)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"no header", http.MethodGet, "/read", "", http.StatusUnauthorized},
		{"bad scheme", http.MethodGet, "/read", "Token " + viewer, http.StatusUnauthorized},
		{"garbage", http.MethodGet, "/read", "Bearer nope", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/read", "Bearer " + viewer, http.StatusOK},
		{"viewer controls", http.MethodPost, "/control", "Bearer " + viewer, http.StatusForbidden},
		{"tester controls", http.MethodPost, "/control", "Bearer " + tester, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
