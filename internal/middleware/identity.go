package middleware

import "github.com/labstack/echo/v4"

// OwnerID resolves the hold-owner identity of a request: the
// authenticated user id when a valid token was presented, otherwise the
// X-Guest-ID header the client generated for its anonymous session.
// Returns "" when the request carries no identity at all.
func OwnerID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v
	}
	return c.Request().Header.Get("X-Guest-ID")
}
