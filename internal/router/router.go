package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"energodoc/internal/config"
	"energodoc/internal/handler"
	"energodoc/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
// metricsHandler may be nil when the Prometheus endpoint is disabled.
func Setup(
	cfg *config.Config,
	log *zap.Logger,
	submissionH *handler.SubmissionHandler,
	healthH *handler.HealthHandler,
	metricsHandler http.Handler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	if metricsHandler != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(metricsHandler))
	}

	v1 := r.Group("/api/v1")

	submissions := v1.Group("/submissions")
	submissions.POST("", submissionH.Submit)
	submissions.GET("", submissionH.List)
	submissions.GET("/:id", submissionH.GetByID)
	submissions.GET("/:id/canonical", submissionH.Canonical)
	submissions.GET("/:id/provenance.csv", submissionH.Provenance)
	submissions.GET("/:id/versions", submissionH.Versions)
	submissions.GET("/:id/readiness", submissionH.Readiness)
	submissions.POST("/:id/reprocess", submissionH.Reprocess)
	submissions.DELETE("/:id", submissionH.Delete)

	return r
}
