package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/knowledge"
	"github.com/agrilink/farmchat/internal/store/rabbitmq"
)

// IngestKnowledge enqueues one knowledge entry for the ingest worker.
func (h *Handler) IngestKnowledge(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if h.Publisher == nil {
		fail(c, http.StatusServiceUnavailable, 50310, "ingest queue not configured")
		return
	}

	var entry knowledge.Entry
	if err := c.ShouldBindJSON(&entry); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if entry.FacilityID == "" {
		entry.FacilityID = p.FacilityID
	}

	job := rabbitmq.IngestJob{JobID: uuid.NewString(), Entry: entry}
	if err := h.Publisher.PublishIngestJob(c.Request.Context(), job); err != nil {
		h.Logger.Error("ingest publish failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50010, "failed to enqueue entry")
		return
	}
	ok(c, gin.H{"job_id": job.JobID})
}

// SearchKnowledge answers an ad hoc knowledge-base query.
func (h *Handler) SearchKnowledge(c *gin.Context) {
	p, okk := principalFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	q := c.Query("q")
	if q == "" {
		fail(c, http.StatusBadRequest, 10002, "query parameter q is required")
		return
	}

	entry := h.Knowledge.Search(c.Request.Context(), q, p.FacilityID)
	if entry == nil {
		ok(c, gin.H{"found": false})
		return
	}
	ok(c, gin.H{"found": true, "entry": entry})
}
