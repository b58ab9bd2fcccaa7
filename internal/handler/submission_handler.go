package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"energodoc/internal/csvexport"
	"energodoc/internal/domain"
	"energodoc/internal/service"
)

// SubmissionHandler handles submission upload and result endpoints.
type SubmissionHandler struct {
	ErrorHandler
	submissions service.SubmissionService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissions service.SubmissionService, log *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{ErrorHandler: ErrorHandler{log: log}, submissions: submissions}
}

// Submit handles POST /api/v1/submissions
// A file with the same content as an earlier upload returns that submission with 200.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	sub, created, err := h.submissions.Submit(c.Request.Context(), service.SubmitInput{
		FileName: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if !created {
		RespondOK(c, sub)
		return
	}
	RespondCreated(c, sub)
}

// List handles GET /api/v1/submissions
func (h *SubmissionHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	subs, total, err := h.submissions.List(c.Request.Context(), offset, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	RespondPaginated(c, subs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/submissions/:id
func (h *SubmissionHandler) GetByID(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}

	sub, err := h.submissions.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	RespondOK(c, sub)
}

// Canonical handles GET /api/v1/submissions/:id/canonical
// The current version is returned with its data embedded as stored.
func (h *SubmissionHandler) Canonical(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}

	v, err := h.submissions.Canonical(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	RespondOK(c, v)
}

// Provenance handles GET /api/v1/submissions/:id/provenance.csv
// Every candidate of the current version is written, losers included.
func (h *SubmissionHandler) Provenance(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}

	sub, err := h.submissions.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	v, err := h.submissions.Canonical(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var data domain.CanonicalSourceData
	if err := json.Unmarshal(v.Data, &data); err != nil {
		h.HandleError(c, fmt.Errorf("decoding canonical version %d: %w", v.Version, err))
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, csvexport.BuildFilename(sub.FileName, v.Version)))
	c.Status(http.StatusOK)
	if err := csvexport.Export(c.Writer, &data); err != nil {
		h.log.Warn("http: provenance export interrupted", zap.String("submission_id", id.String()), zap.Error(err))
	}
}

// Versions handles GET /api/v1/submissions/:id/versions
func (h *SubmissionHandler) Versions(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}

	versions, err := h.submissions.Versions(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	RespondOK(c, versions)
}

// Readiness handles GET /api/v1/submissions/:id/readiness
func (h *SubmissionHandler) Readiness(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}

	reports, err := h.submissions.Readiness(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	RespondOK(c, reports)
}

// Reprocess handles POST /api/v1/submissions/:id/reprocess
func (h *SubmissionHandler) Reprocess(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}

	sub, err := h.submissions.Reprocess(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: sub})
}

// Delete handles DELETE /api/v1/submissions/:id
func (h *SubmissionHandler) Delete(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}

	if err := h.submissions.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"message": "submission deleted"})
}

func (h *SubmissionHandler) submissionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid submission ID")
		return uuid.Nil, false
	}
	return id, true
}
