package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SalahElkadim/alc/internal/model"
)

func (h *Handler) GenerateExam(c *gin.Context) {
	var req model.GenerateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	claims := mustClaims(c)
	view, err := h.exams.Generate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *Handler) SubmitExam(c *gin.Context) {
	var req model.SubmitExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	claims := mustClaims(c)
	resp, err := h.exams.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ExamResults(c *gin.Context) {
	claims := mustClaims(c)
	results, err := h.exams.Results(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if results == nil {
		results = []model.ExamResult{}
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}
