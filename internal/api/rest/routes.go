package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/agritrace/provenance-anchor/internal/api/middleware"
)

// SetupRoutes configures all REST API routes. Mutating routes require
// authentication; reads are public.
func SetupRoutes(router *gin.Engine, h Handler, authCfg middleware.AuthConfig) {
	auth := middleware.Auth(authCfg)

	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", h.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Store a new record (multipart with attachments or plain JSON)
		v1.POST("/records", auth, h.StoreRecord)

		// Record retrieval by id, digest, or anchor tx hash (public read access)
		v1.GET("/records/:identifier", h.GetRecord)

		// Verification is open: anyone holding the data may check it
		v1.POST("/records/:identifier/verify", h.VerifyRecord)

		// Lifecycle status updates (requires authentication)
		v1.PATCH("/records/:identifier/status", auth, h.UpdateRecordStatus)

		// Attachment soft delete (requires authentication)
		v1.DELETE("/attachments/:id", auth, h.DeleteAttachment)

		// Anchor re-confirmation from the ledger (public read access)
		v1.GET("/anchors/:txHash", h.GetAnchor)

		// Ledger connection status (public read access)
		v1.GET("/network", h.GetNetwork)
	}
}
