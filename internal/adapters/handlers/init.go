package handlers

import (
	"net/http"

	"github.com/iwtcode/grblService/internal/config"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	"github.com/iwtcode/grblService/internal/services/broadcast"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler - структура для обработчиков HTTP-запросов
type Handler struct {
	usecase     interfaces.Usecases
	broadcaster *broadcast.Broadcaster
	logger      *logging.Logger
}

// NewHandler создает новый экземпляр Handler
func NewHandler(usecase interfaces.Usecases, b *broadcast.Broadcaster, logger *logging.Logger) *Handler {
	return &Handler{
		usecase:     usecase,
		broadcaster: b,
		logger:      logger.WithPrefix("HANDLER"),
	}
}

// ProvideRouter настраивает и возвращает HTTP-роутер
func ProvideRouter(h *Handler, cfg *config.AppConfig, registry *prometheus.Registry) http.Handler {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())

	// Logger Middleware
	router.Use(LoggingMiddleware(h.logger))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Группа API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.GetStatus)
		v1.DELETE("/status/errors", h.ClearErrors)
		v1.GET("/events", h.StreamEvents)
		v1.GET("/jobs", h.RecentJobs)
		v1.POST("/terminal", h.TerminalCommand)

		programs := v1.Group("/programs")
		{
			programs.GET("", h.ListPrograms)
			programs.POST("", h.UploadProgram)
			programs.GET("/:name", h.GetProgram)
			programs.DELETE("/:name", h.DeleteProgram)
		}

		job := v1.Group("/job")
		{
			job.POST("/start", h.StartProgram)
			job.POST("/stop", h.StopProgram)
			job.POST("/pause", h.PauseProgram)
			job.POST("/resume", h.ResumeProgram)
			job.POST("/feed", h.AdjustFeedRate)
		}
	}

	return router
}
