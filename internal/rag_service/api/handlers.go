// Package api exposes the HTTP surface of the service: ingestion uploads,
// question answering and document management.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"agrichat/internal/rag_service/service"
	"agrichat/pkg/logger"
)

// API provides the HTTP handlers.
type API struct {
	service *service.Service
	logger  *logger.Logger
}

// NewAPI creates the handler set over the given service.
func NewAPI(svc *service.Service, log *logger.Logger) *API {
	return &API{service: svc, logger: log}
}

// RootHandler reports the service identity.
func (a *API) RootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Agri-Chat API", "status": "running"})
}

// HealthHandler is the liveness probe.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// AskHandler answers a question grounded on the indexed documents.
func (a *API) AskHandler(c *gin.Context) {
	var payload struct {
		Query     string `json:"query" binding:"required"`
		SessionID string `json:"sessionId"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(err).Warn("invalid ask payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	answer, err := a.service.Ask(c.Request.Context(), payload.Query, payload.SessionID)
	if err != nil {
		a.logger.WithError(err).Error("failed to answer query")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer query"})
		return
	}
	c.JSON(http.StatusOK, answer)
}

// IngestHandler accepts a multipart upload with a required "file" part and an
// optional "metadata" form field carrying a JSON object.
func (a *API) IngestHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file upload"})
		return
	}

	metadata := map[string]interface{}{}
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid metadata JSON"})
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		a.logger.WithError(err).Error("failed to open upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		a.logger.WithError(err).Error("failed to read upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}

	result, err := a.service.Ingest(c.Request.Context(), content, fileHeader.Filename, metadata)
	if err != nil {
		a.logger.WithError(err).Error("failed to ingest document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest document"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListDocumentsHandler returns one summary per indexed document.
func (a *API) ListDocumentsHandler(c *gin.Context) {
	docs, err := a.service.ListDocuments(c.Request.Context())
	if err != nil {
		a.logger.WithError(err).Error("failed to list documents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// DeleteDocumentHandler removes one document and its chunks. Deleting an
// unknown document succeeds.
func (a *API) DeleteDocumentHandler(c *gin.Context) {
	docID := c.Param("doc_id")
	if err := a.service.DeleteDocument(c.Request.Context(), docID); err != nil {
		a.logger.WithError(err).Error("failed to delete document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "doc_id": docID})
}

// DeleteAllDocumentsHandler empties the index.
func (a *API) DeleteAllDocumentsHandler(c *gin.Context) {
	if err := a.service.DeleteAll(c.Request.Context()); err != nil {
		a.logger.WithError(err).Error("failed to delete documents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "message": "All documents deleted"})
}
