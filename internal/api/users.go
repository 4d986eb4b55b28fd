package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SalahElkadim/alc/internal/auth"
	"github.com/SalahElkadim/alc/internal/model"
)

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	resp, err := h.users.Login(c.Request.Context(), req.Email, req.Password, auth.ClientInfoFromRequest(c.Request))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	pair, err := h.users.Refresh(c.Request.Context(), req.Refresh, auth.ClientInfoFromRequest(c.Request))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (h *Handler) Logout(c *gin.Context) {
	var req model.LogoutRequest
	// the refresh token is optional
	_ = c.ShouldBindJSON(&req)

	if err := h.users.Logout(c.Request.Context(), mustClaims(c), req.Refresh); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

func (h *Handler) ListSessions(c *gin.Context) {
	claims := mustClaims(c)
	sessions, err := h.users.Sessions(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []model.UserSession{}
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}
