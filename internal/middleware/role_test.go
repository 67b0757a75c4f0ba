package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRequireRole_AllowsMatchingRole(t *testing.T) {
	mw := RequireRole("ORGANIZER", "CUSTOMER")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("role", "ORGANIZER")

	called := false
	next := func(c echo.Context) error { called = true; return nil }

	err := mw(next)(c)

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestRequireRole_RejectsOtherRole(t *testing.T) {
	mw := RequireRole("ORGANIZER")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("role", "CUSTOMER")

	called := false
	next := func(c echo.Context) error { called = true; return nil }

	err := mw(next)(c)

	assert.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRole_RejectsMissingRole(t *testing.T) {
	mw := RequireRole("ORGANIZER")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	next := func(c echo.Context) error { called = true; return nil }

	err := mw(next)(c)

	assert.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
