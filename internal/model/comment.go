package model

import "time"

type Comment struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"report_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	ParentID  *string   `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Comment) IsRoot() bool {
	return c.ParentID == nil || *c.ParentID == ""
}

type CreateCommentRequest struct {
	Text     string  `json:"text" binding:"required"`
	ParentID *string `json:"parent_id"`
}

type UpdateCommentRequest struct {
	Text string `json:"text" binding:"required"`
}
