package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondDetail sends the single-message error payload {"detail": ...} used
// for auth, permission, and not-found failures.
func respondDetail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}

// respondFieldErrors sends a 400 with the field->messages map as the body,
// the shape form clients render inline.
func respondFieldErrors(c *gin.Context, errs FieldErrors) {
	c.JSON(http.StatusBadRequest, errs)
}
