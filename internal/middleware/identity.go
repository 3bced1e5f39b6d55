package middleware

import (
	"go-leave/internal/shared/contextutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity reads the caller's employee id from the X-Employee-ID header.
// The identity is trusted as-is; authentication lives in front of this
// service. Handlers that need an actor reject requests without one.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		employeeID := c.GetHeader("X-Employee-ID")
		if employeeID != "" {
			if _, err := uuid.Parse(employeeID); err != nil {
				// A malformed identity is treated as absent.
				employeeID = ""
			}
		}

		if employeeID != "" {
			c.Set("employee_id", employeeID)
			ctx := contextutil.WithActorID(c.Request.Context(), employeeID)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()
	}
}
