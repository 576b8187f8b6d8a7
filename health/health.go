package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailservice/delivery"
)

// Prober actively checks the SMTP relay. *delivery.Client implements it.
type Prober interface {
	Probe(ctx context.Context) error
}

// Liveness answers as long as the process serves HTTP.
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SMTP runs an active probe against the relay on each request.
func SMTP(p Prober) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := p.Probe(c.Request.Context())
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		case errors.Is(err, delivery.ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "reason": "SMTP not configured"})
		case delivery.IsDeliveryError(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "reason": fmt.Sprintf("smtp/os error: %v", err)})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"status": "down", "reason": fmt.Sprintf("exception: %v", err)})
		}
	}
}

// Metrics exposes the Prometheus registry.
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
