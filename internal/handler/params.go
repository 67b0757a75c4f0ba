package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// parseUintParam extracts a uint64 path parameter, used everywhere a
// resource id appears in a route (event id, seat type id, booking id).
func parseUintParam(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// queryIntDefault reads an integer query parameter, falling back to def
// when absent or unparseable.
func queryIntDefault(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
