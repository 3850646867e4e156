package handler

import (
	"net/http"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	moderationService *service.ModerationService
	commentService    *service.CommentService
}

func NewAdminHandler(moderationService *service.ModerationService, commentService *service.CommentService) *AdminHandler {
	return &AdminHandler{
		moderationService: moderationService,
		commentService:    commentService,
	}
}

func (h *AdminHandler) GetReports(c *gin.Context) {
	response, err := h.moderationService.AllReports(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *AdminHandler) GetComments(c *gin.Context) {
	comments, err := h.commentService.AllComments(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "total": len(comments)})
}

func (h *AdminHandler) GetUsers(c *gin.Context) {
	response, err := h.moderationService.ListUsers(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *AdminHandler) SetUserDisabled(c *gin.Context) {
	var req model.SetDisabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.moderationService.SetUserDisabled(c.Request.Context(), actorFrom(c), c.Param("uid"), req.Disabled); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": c.Param("uid"), "disabled": req.Disabled})
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.moderationService.DeleteUser(c.Request.Context(), actorFrom(c), c.Param("uid")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}
