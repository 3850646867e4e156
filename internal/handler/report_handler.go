package handler

import (
	"net/http"
	"strconv"

	"corruption-report-service/internal/geo"
	"corruption-report-service/internal/live"
	"corruption-report-service/internal/model"
	"corruption-report-service/internal/service"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService     *service.ReportService
	moderationService *service.ModerationService
}

func NewReportHandler(reportService *service.ReportService, moderationService *service.ModerationService) *ReportHandler {
	return &ReportHandler{
		reportService:     reportService,
		moderationService: moderationService,
	}
}

func (h *ReportHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "corruption-report-service",
	})
}

// Handles GET /reports/public - approved reports, newest first, or nearest
// first when lat and lng are given.
func (h *ReportHandler) GetPublicReports(c *gin.Context) {
	corruptionType, origin, err := parseFeedQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if origin != nil {
		response, err := h.reportService.Nearby(c.Request.Context(), corruptionType, origin.Lat, origin.Lng, origin.RadiusKm)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, response)
		return
	}

	response, err := h.reportService.PublicFeed(c.Request.Context(), corruptionType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *ReportHandler) GetTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": model.CorruptionTypes})
}

func (h *ReportHandler) GetMyReports(c *gin.Context) {
	response, err := h.reportService.MyReports(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *ReportHandler) CreateReport(c *gin.Context) {
	var req model.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	report, err := h.reportService.CreateReport(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Report submitted for review",
		"report":  report,
	})
}

func (h *ReportHandler) GetReport(c *gin.Context) {
	report, err := h.reportService.GetReport(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Handles PUT /reports/:id - admin content edit.
func (h *ReportHandler) EditReport(c *gin.Context) {
	var edit model.ReportEdit
	if err := c.ShouldBindJSON(&edit); err != nil {
		badRequest(c, err.Error())
		return
	}

	report, err := h.moderationService.EditReport(c.Request.Context(), actorFrom(c), c.Param("id"), &edit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	report, err := h.moderationService.SetStatus(c.Request.Context(), actorFrom(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ReportHandler) DeleteReport(c *gin.Context) {
	if err := h.moderationService.DeleteReport(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "report deleted"})
}

// parseFeedQuery reads ?type=&lat=&lng=&radius_km=. An origin needs both
// coordinates; the radius defaults to geo.DefaultRadiusKm.
func parseFeedQuery(c *gin.Context) (model.CorruptionType, *live.Origin, error) {
	corruptionType := model.CorruptionType(c.Query("type"))

	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" && lngStr == "" {
		return corruptionType, nil, nil
	}
	if latStr == "" || lngStr == "" {
		return "", nil, errMissingCoordinate
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return "", nil, errBadCoordinate
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return "", nil, errBadCoordinate
	}

	origin := &live.Origin{Lat: lat, Lng: lng, RadiusKm: geo.DefaultRadiusKm}
	if r := c.Query("radius_km"); r != "" {
		radius, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return "", nil, errBadRadius
		}
		origin.RadiusKm = radius
	}
	return corruptionType, origin, nil
}
