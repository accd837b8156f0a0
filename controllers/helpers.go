package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"peer-review-api/services"

	"github.com/gin-gonic/gin"
)

// currentUserID reads the authenticated user from the gin context set by the
// auth middleware.
func currentUserID(c *gin.Context) int {
	userID, _ := c.Get("userID")
	id, _ := userID.(int)
	return id
}

// pathID parses a numeric path parameter, responding 400 on garbage.
func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps a service error onto an HTTP status.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrEligibility):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrGuardViolation), errors.Is(err, services.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, services.ErrDeadlineExpired):
		status = http.StatusGone
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
