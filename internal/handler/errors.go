package handler

import (
	"errors"
	"net/http"

	"corruption-report-service/internal/service"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

var (
	errMissingCoordinate = errors.New("lat and lng must be given together")
	errBadCoordinate     = errors.New("lat and lng must be numbers")
	errBadRadius         = errors.New("radius_km must be a number")
)

// respondError writes the status that matches the error class.
func respondError(c *gin.Context, err error) {
	var partial *service.PartialWriteError
	var invalid *service.ValidationError

	switch {
	case errors.As(err, &partial):
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"completed": partial.Completed,
			"failed":    partial.Failed,
		})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error(), "field": invalid.Field})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPermissionDenied):
		if actorFrom(c).UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnavailable):
		log.WithError(err).WithField("path", c.FullPath()).Warn("handler: store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable, try again"})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("handler: unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
