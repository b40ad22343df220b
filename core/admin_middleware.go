package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminOnly ensures the authenticated caller is staff or superuser.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := currentUser(c)
		if !ok || !u.IsAdmin() {
			respondDetail(c, http.StatusForbidden, "You do not have permission to perform this action.")
			c.Abort()
			return
		}
		c.Next()
	}
}
