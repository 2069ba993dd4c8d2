package http

import (
	"github.com/gin-gonic/gin"

	"facemask-api/internal/bootstrap"
	"facemask-api/internal/transport/http/handler"
	"facemask-api/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(app.Logger),
		gin.Recovery(),
		middleware.CORS(),
	)

	healthHandler := handler.NewHealthHandler(app)
	statsHandler := handler.NewStatsHandler(app.Stats)
	predictHandler := handler.NewPredictHandler(app.PredictService, app.Config.Upload.MaxBytes, app.Logger)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/stats", statsHandler.Summary)
	router.POST("/predict", predictHandler.Predict)

	return router
}
