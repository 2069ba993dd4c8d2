package handler

import (
	"github.com/gin-gonic/gin"

	"facemask-api/internal/stats"
	"facemask-api/internal/transport/http/response"
)

type StatsHandler struct {
	recorder *stats.Recorder
}

func NewStatsHandler(recorder *stats.Recorder) *StatsHandler {
	return &StatsHandler{recorder: recorder}
}

func (h *StatsHandler) Summary(c *gin.Context) {
	response.OK(c, h.recorder.Summary())
}
