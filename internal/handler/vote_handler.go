package handler

import (
	"net/http"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/service"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	voteService *service.VoteService
}

func NewVoteHandler(voteService *service.VoteService) *VoteHandler {
	return &VoteHandler{voteService: voteService}
}

// Handles POST /reports/:id/vote. Casting the kind the caller already
// holds clears it.
func (h *VoteHandler) CastVote(c *gin.Context) {
	var req model.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	response, err := h.voteService.CastVote(c.Request.Context(), actorFrom(c), c.Param("id"), req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *VoteHandler) RemoveVote(c *gin.Context) {
	response, err := h.voteService.RemoveVote(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *VoteHandler) GetVote(c *gin.Context) {
	response, err := h.voteService.GetUserVote(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Handles POST /reports/:id/reconcile - admin tally repair.
func (h *VoteHandler) Reconcile(c *gin.Context) {
	repair, err := h.voteService.Reconcile(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, repair)
}
