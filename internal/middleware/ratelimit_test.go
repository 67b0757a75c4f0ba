package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/eventbooking-core/internal/config"
)

func newTestContext() echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestCurrentUserID_Float64FromJWTClaims(t *testing.T) {
	c := newTestContext()
	c.Set("user_id", float64(42))
	assert.Equal(t, "42", currentUserID(c))
}

func TestCurrentUserID_StringPassthrough(t *testing.T) {
	c := newTestContext()
	c.Set("user_id", "7")
	assert.Equal(t, "7", currentUserID(c))
}

func TestCurrentUserID_Uint64(t *testing.T) {
	c := newTestContext()
	c.Set("user_id", uint64(99))
	assert.Equal(t, "99", currentUserID(c))
}

func TestCurrentUserID_Int64(t *testing.T) {
	c := newTestContext()
	c.Set("user_id", int64(5))
	assert.Equal(t, "5", currentUserID(c))
}

func TestCurrentUserID_MissingFallsBackToAnon(t *testing.T) {
	c := newTestContext()
	assert.Equal(t, "anon", currentUserID(c))
}

func TestCurrentUserID_EmptyStringFallsBackToAnon(t *testing.T) {
	c := newTestContext()
	c.Set("user_id", "")
	assert.Equal(t, "anon", currentUserID(c))
}

func TestBuildRateKey_StrategiesProduceDistinctKeys(t *testing.T) {
	c := newTestContext()
	c.Set("user_id", float64(1))

	base := func(strategy string) string {
		cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}
		return buildRateKey(cfg, c)
	}

	assert.Contains(t, base("ip"), "ip:")
	assert.Contains(t, base("user"), "user:1")
	assert.Contains(t, base("route"), "route:")
	assert.NotEqual(t, base("ip"), base("user"))
}
