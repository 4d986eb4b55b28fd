package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/SalahElkadim/alc/internal/model"
	"github.com/SalahElkadim/alc/internal/storage"
)

// ImportQuestions queues a question workbook for ingestion. The workbook is
// either uploaded as multipart field "file" or referenced by s3_path.
func (h *Handler) ImportQuestions(c *gin.Context) {
	ctx := c.Request.Context()
	job := model.ImportJob{JobID: uuid.NewString()}

	if c.ContentType() == "multipart/form-data" {
		bookID, err := strconv.ParseInt(c.PostForm("book_id"), 10, 64)
		if err != nil || bookID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "book_id is required"})
			return
		}
		job.BookID = bookID

		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if !storage.IsWorkbook(header.Filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only .xlsx workbooks are supported"})
			return
		}

		if _, err := h.books.GetBook(ctx, job.BookID); err != nil {
			h.respondError(c, err)
			return
		}

		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
			return
		}
		defer file.Close()

		job.S3Path = storage.WorkbookKey(job.BookID, job.JobID)
		job.Uploaded = true
		if err := h.files.Upload(ctx, job.S3Path, file); err != nil {
			h.log.Error().Err(err).Str("key", job.S3Path).Msg("Failed to store workbook")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store workbook"})
			return
		}
	} else {
		var req model.ImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.bindError(c, err)
			return
		}
		if !storage.IsWorkbook(req.S3Path) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only .xlsx workbooks are supported"})
			return
		}
		job.S3Path, job.BookID = req.S3Path, req.BookID

		if _, err := h.books.GetBook(ctx, job.BookID); err != nil {
			h.respondError(c, err)
			return
		}

		exists, err := h.files.Exists(ctx, job.S3Path)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "Workbook not found"})
			return
		}
	}

	if err := h.imports.EnqueueImportJob(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue import job"})
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("s3_path", job.S3Path).
		Int64("book_id", job.BookID).
		Bool("uploaded", job.Uploaded).
		Msg("Import job enqueued")

	c.JSON(http.StatusAccepted, model.ImportResponse{
		JobID:   job.JobID,
		Status:  "queued",
		Message: "Import job queued successfully",
	})
}
