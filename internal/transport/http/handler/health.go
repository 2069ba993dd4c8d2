package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"facemask-api/internal/bootstrap"
	redisClient "facemask-api/internal/platform/redis"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := gin.H{}
	allOK := true
	if h.app.Redis != nil {
		st := h.checkRedis(ctx)
		deps["redis"] = st
		allOK = allOK && st.OK
	}
	if h.app.MQConn != nil {
		st := h.checkRabbitMQ()
		deps["rabbitmq"] = st
		allOK = allOK && st.OK
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	size := int64(h.app.Predictor.InputSize())
	c.JSON(statusCode, gin.H{
		"app":        h.app.Config.App.Name,
		"env":        h.app.Config.App.Env,
		"uptime_sec": int(time.Since(h.app.StartedAt).Seconds()),
		"model": gin.H{
			"input_shape": []int64{1, size, size, 3},
			"threshold":   h.app.Predictor.Threshold(),
		},
		"dependencies": deps,
	})
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if err := redisClient.Ping(ctx, h.app.Redis); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}
