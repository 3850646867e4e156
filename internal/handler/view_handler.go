package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"corruption-report-service/internal/live"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 25 * time.Second
	writeWait         = 10 * time.Second
)

// ViewHandler streams live views as server-sent events or WebSocket frames.
// Each connection owns its view; the view closes with the request.
type ViewHandler struct {
	coordinator *live.Coordinator
	heartbeat   time.Duration
	upgrader    websocket.Upgrader
}

func NewViewHandler(coordinator *live.Coordinator) *ViewHandler {
	return &ViewHandler{
		coordinator: coordinator,
		heartbeat:   heartbeatInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type opener func(ctx context.Context, c *gin.Context) (*live.View, error)

func (h *ViewHandler) feed(ctx context.Context, c *gin.Context) (*live.View, error) {
	corruptionType, origin, err := parseFeedQuery(c)
	if err != nil {
		return nil, err
	}
	return h.coordinator.PublicFeed(ctx, live.FeedParams{Type: corruptionType, Origin: origin})
}

func (h *ViewHandler) myReports(ctx context.Context, c *gin.Context) (*live.View, error) {
	return h.coordinator.MyReports(ctx, actorFrom(c))
}

func (h *ViewHandler) thread(ctx context.Context, c *gin.Context) (*live.View, error) {
	return h.coordinator.Thread(ctx, actorFrom(c), c.Param("id"))
}

func (h *ViewHandler) adminReports(ctx context.Context, c *gin.Context) (*live.View, error) {
	return h.coordinator.AdminReports(ctx, actorFrom(c))
}

func (h *ViewHandler) adminUsers(ctx context.Context, c *gin.Context) (*live.View, error) {
	return h.coordinator.AdminUsers(ctx, actorFrom(c))
}

func (h *ViewHandler) adminComments(ctx context.Context, c *gin.Context) (*live.View, error) {
	return h.coordinator.AdminComments(ctx, actorFrom(c))
}

func (h *ViewHandler) FeedSSE(c *gin.Context)          { h.serveSSE(c, h.feed) }
func (h *ViewHandler) MyReportsSSE(c *gin.Context)     { h.serveSSE(c, h.myReports) }
func (h *ViewHandler) ThreadSSE(c *gin.Context)        { h.serveSSE(c, h.thread) }
func (h *ViewHandler) AdminReportsSSE(c *gin.Context)  { h.serveSSE(c, h.adminReports) }
func (h *ViewHandler) AdminUsersSSE(c *gin.Context)    { h.serveSSE(c, h.adminUsers) }
func (h *ViewHandler) AdminCommentsSSE(c *gin.Context) { h.serveSSE(c, h.adminComments) }

func (h *ViewHandler) FeedWS(c *gin.Context)   { h.serveWS(c, h.feed) }
func (h *ViewHandler) ThreadWS(c *gin.Context) { h.serveWS(c, h.thread) }

// mailbox keeps only the newest projection. Listeners run inside the
// view's push, so delivery must never block.
type mailbox chan live.Projection

func newMailbox() mailbox { return make(mailbox, 1) }

func (m mailbox) put(p live.Projection) {
	for {
		select {
		case m <- p:
			return
		default:
		}
		select {
		case <-m:
		default:
		}
	}
}

func projectionEvent(p live.Projection) string {
	if p.Error != "" {
		return "error"
	}
	return "projection"
}

func (h *ViewHandler) serveSSE(c *gin.Context, open opener) {
	ctx := c.Request.Context()
	view, err := open(ctx, c)
	if err != nil {
		respondViewError(c, err)
		return
	}
	defer view.Close()

	updates := newMailbox()
	stop := view.Listen(updates.put)
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-view.Done():
			return false
		case p := <-updates:
			c.SSEvent(projectionEvent(p), p)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().Unix()})
			return true
		}
	})
}

func (h *ViewHandler) serveWS(c *gin.Context, open opener) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	view, err := open(ctx, c)
	if err != nil {
		respondViewError(c, err)
		return
	}
	defer view.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("ws: upgrade")
		return
	}
	defer conn.Close()

	updates := newMailbox()
	stop := view.Listen(updates.put)
	defer stop()

	// Clients send nothing; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-view.Done():
			return
		case p := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(p); err != nil {
				log.WithError(err).WithField("view", view.Name()).Debug("ws: write")
				return
			}
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func respondViewError(c *gin.Context, err error) {
	switch err {
	case errMissingCoordinate, errBadCoordinate, errBadRadius:
		badRequest(c, err.Error())
	default:
		respondError(c, err)
	}
}
