package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/schoolcbt/exam-engine/internal/config"
	"github.com/schoolcbt/exam-engine/internal/handler"
	"github.com/schoolcbt/exam-engine/internal/middleware"
	"github.com/schoolcbt/exam-engine/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Catalog *handler.CatalogHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID", "X-Seat-Number"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Signals arrive at most a few per second per seat; anything past this
	// is a misbehaving client.
	seatLimiter := middleware.NewRateLimiter(240, time.Minute)

	// ─── 1. Catalog Group ──────────────────────────────────────────────
	catalogAPI := router.Group("/api/v1/exams")
	{
		catalogAPI.GET("", handlers.Catalog.ListExams)
		catalogAPI.GET("/:exam_id", handlers.Catalog.GetExam)
	}

	// ─── 2. Session Group (Rate Limited) ───────────────────────────────
	sessionAPI := router.Group("/api/v1/sessions")
	sessionAPI.Use(seatLimiter.Middleware())
	{
		sessionAPI.POST("", handlers.Session.StartSession)
		sessionAPI.GET("/resume-offer", handlers.Session.ResumeOffer)
		sessionAPI.POST("/resume", handlers.Session.ResumeSession)
		sessionAPI.GET("/:session_id", handlers.Session.GetSession)
		sessionAPI.PUT("/:session_id/answer", handlers.Session.SaveAnswer)
		sessionAPI.PUT("/:session_id/position", handlers.Session.SavePosition)
		sessionAPI.POST("/:session_id/signals", handlers.Session.PushSignal)
		sessionAPI.POST("/:session_id/submit", handlers.Session.SubmitSession)
	}

	// ─── 3. Sync ───────────────────────────────────────────────────────
	router.POST("/api/v1/sync", handlers.Session.Sync)

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/sessions/:session_id/violations", handlers.WS.ViolationFeed)
	}

	return router
}
