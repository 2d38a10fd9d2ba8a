package httpapi

import (
	"context"
	"net/http"
	"time"

	"answering-machine/pkg/logger"

	"github.com/gin-gonic/gin"
)

const serviceName = "answering-machine-api"

// ReadinessCheck probes one dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Health serves liveness and readiness probes.
type Health struct {
	Checks  []ReadinessCheck
	Timeout time.Duration
}

func (h Health) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Answering Machine API is running", "status": "healthy"})
}

// Test is a liveness probe kept for existing client tooling.
func (h Health) Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Test endpoint working"})
}

func (h Health) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
}

func (h Health) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every check and reports 503 if any fails.
func (h Health) Ready(c *gin.Context) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.Checks))
	for _, chk := range h.Checks {
		if err := chk.Check(ctx); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "check", chk.Name, "err", err)
			results[chk.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[chk.Name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}
