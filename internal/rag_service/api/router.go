package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware builds the CORS policy from the configured origins. "*"
// switches to allow-all without credentials, since browsers reject the
// combination of a wildcard origin and credentials.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// RegisterRoutes registers all the routes of the service.
func RegisterRoutes(router *gin.Engine, a *API) {
	router.GET("/", a.RootHandler)
	router.GET("/health", a.HealthHandler)
	router.POST("/ask", a.AskHandler)
	router.POST("/ingest", a.IngestHandler)

	docs := router.Group("/api/documents")
	{
		docs.GET("", a.ListDocumentsHandler)
		docs.DELETE("", a.DeleteAllDocumentsHandler)
		docs.DELETE("/:doc_id", a.DeleteDocumentHandler)
	}
}
