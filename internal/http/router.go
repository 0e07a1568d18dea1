package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mugisham37/product-management-interview-project/internal/handlers"
	"github.com/mugisham37/product-management-interview-project/internal/logging"
	"github.com/mugisham37/product-management-interview-project/internal/metrics"
	"github.com/mugisham37/product-management-interview-project/internal/middleware"
)

func NewRouter(h *handlers.ProductHandler, m *metrics.Metrics, log *logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics(m))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/products", h.CreateProduct)
		v1.GET("/products", h.ListProducts)
		v1.POST("/products/consistency-check", h.ConsistencyCheck)
		v1.POST("/products/detect-conflicts", h.DetectConflicts)
		v1.PATCH("/products/bulk-update", h.BulkUpdate)
		v1.GET("/products/:id", h.GetProduct)
		v1.PUT("/products/:id", h.UpdateProduct)
		v1.DELETE("/products/:id", h.DeleteProduct)
		v1.GET("/products/:id/version", h.GetVersion)
		v1.PUT("/products/:id/versioned", h.UpdateVersioned)
	}
	return r
}
