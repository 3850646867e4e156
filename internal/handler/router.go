package handler

import (
	"corruption-report-service/internal/service"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Reports  *ReportHandler
	Votes    *VoteHandler
	Comments *CommentHandler
	Admin    *AdminHandler
	Views    *ViewHandler
}

// NewRouter registers every route behind the identity middleware.
func NewRouter(users *service.UserService, identity IdentityConfig, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Identity(users, identity), RequestLogger())

	r.GET("/health", h.Reports.Health)
	r.GET("/types", h.Reports.GetTypes)

	reports := r.Group("/reports")
	{
		reports.GET("/public", h.Reports.GetPublicReports)
		reports.GET("/my", h.Reports.GetMyReports)
		reports.POST("", h.Reports.CreateReport)
		reports.GET("/:id", h.Reports.GetReport)
		reports.PUT("/:id", h.Reports.EditReport)
		reports.PATCH("/:id/status", h.Reports.UpdateStatus)
		reports.DELETE("/:id", h.Reports.DeleteReport)

		reports.POST("/:id/vote", h.Votes.CastVote)
		reports.DELETE("/:id/vote", h.Votes.RemoveVote)
		reports.GET("/:id/vote", h.Votes.GetVote)
		reports.POST("/:id/reconcile", h.Votes.Reconcile)

		reports.GET("/:id/comments", h.Comments.GetThread)
		reports.POST("/:id/comments", h.Comments.AddComment)
	}

	comments := r.Group("/comments")
	{
		comments.PUT("/:id", h.Comments.EditComment)
		comments.DELETE("/:id", h.Comments.DeleteComment)
	}

	admin := r.Group("/admin")
	{
		admin.GET("/reports", h.Admin.GetReports)
		admin.GET("/comments", h.Admin.GetComments)
		admin.GET("/users", h.Admin.GetUsers)
		admin.PATCH("/users/:uid/disabled", h.Admin.SetUserDisabled)
		admin.DELETE("/users/:uid", h.Admin.DeleteUser)
	}

	views := r.Group("/views")
	{
		views.GET("/feed", h.Views.FeedSSE)
		views.GET("/my", h.Views.MyReportsSSE)
		views.GET("/reports/:id/thread", h.Views.ThreadSSE)
		views.GET("/admin/reports", h.Views.AdminReportsSSE)
		views.GET("/admin/users", h.Views.AdminUsersSSE)
		views.GET("/admin/comments", h.Views.AdminCommentsSSE)
	}

	ws := r.Group("/ws/views")
	{
		ws.GET("/feed", h.Views.FeedWS)
		ws.GET("/reports/:id/thread", h.Views.ThreadWS)
	}

	return r
}
