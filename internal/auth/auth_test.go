package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"regime-trading-bot/config"
)

func newService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("s3cret-pass", bcrypt.MinCost)
	require.NoError(t, err)
	return NewService(config.AuthConfig{
		Enabled:             true,
		JWTSecret:           "test-secret",
		AccessTokenDuration: time.Hour,
		OperatorUser:        "ops",
		OperatorPassHash:    hash,
	}, zerolog.Nop())
}

func TestLoginIssuesValidToken(t *testing.T) {
	s := newService(t)
	tok, err := s.Login("ops", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.EqualValues(t, 3600, tok.ExpiresIn)

	claims, err := s.JWT().ValidateAccessToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, RoleOperator, claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newService(t)
	_, err := s.Login("ops", "wrong")
	assert.Equal(t, ErrInvalidCredentials, err)
	_, err = s.Login("root", "s3cret-pass")
	assert.Equal(t, ErrInvalidCredentials, err)

	empty := NewService(config.AuthConfig{JWTSecret: "x"}, zerolog.Nop())
	_, err = empty.Login("ops", "s3cret-pass")
	assert.Equal(t, ErrNotConfigured, err)
}

func TestExpiredAndForeignTokens(t *testing.T) {
	m := NewJWTManager("k1", time.Minute)
	tok, err := m.GenerateAccessToken(OperatorClaims{Operator: "ops", Role: RoleOperator})
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.ValidateAccessToken(tok.AccessToken)
	assert.Equal(t, ErrTokenExpired, err)

	other := NewJWTManager("k2", time.Minute)
	_, err = other.ValidateAccessToken(tok.AccessToken)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("k", time.Minute)
	r := gin.New()
	r.GET("/x", Middleware(m), RequireRole(RoleOperator), func(c *gin.Context) {
		c.String(http.StatusOK, Operator(c))
	})

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer nope").Code)

	viewer, err := m.GenerateAccessToken(OperatorClaims{Operator: "v", Role: RoleViewer})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call("Bearer "+viewer.AccessToken).Code)

	op, err := m.GenerateAccessToken(OperatorClaims{Operator: "ops", Role: RoleOperator})
	require.NoError(t, err)
	w := call("Bearer " + op.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())
}
