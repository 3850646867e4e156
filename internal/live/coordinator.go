package live

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"corruption-report-service/internal/geo"
	"corruption-report-service/internal/model"
	"corruption-report-service/internal/repository"
	"corruption-report-service/internal/service"
	"corruption-report-service/internal/store"
	"corruption-report-service/internal/thread"
)

// View names.
const (
	ViewPublicFeed    = "feed"
	ViewMyReports     = "my_reports"
	ViewThread        = "thread"
	ViewAdminReports  = "admin_reports"
	ViewAdminUsers    = "admin_users"
	ViewAdminComments = "admin_comments"
)

// Coordinator opens live views over a document store and tracks the ones
// still open.
type Coordinator struct {
	store store.DocumentStore

	mu    sync.Mutex
	views map[*View]struct{}
}

func NewCoordinator(s store.DocumentStore) *Coordinator {
	return &Coordinator{
		store: s,
		views: make(map[*View]struct{}),
	}
}

// Active is the number of open views.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.views)
}

// Close shuts every open view.
func (c *Coordinator) Close() {
	c.mu.Lock()
	views := make([]*View, 0, len(c.views))
	for v := range c.views {
		views = append(views, v)
	}
	c.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
}

func (c *Coordinator) open(ctx context.Context, def definition) (*View, error) {
	v := newView(def)
	v.onClose = c.forget

	c.mu.Lock()
	c.views[v] = struct{}{}
	c.mu.Unlock()

	for _, src := range def.sources {
		src := src
		sub, err := c.store.Subscribe(ctx, src.query, func(s store.Snapshot) {
			v.push(src.name, s)
		})
		if err != nil {
			v.Close()
			return nil, fmt.Errorf("%w: open %s view: %w", service.ErrUnavailable, def.name, err)
		}
		if !v.addSubscription(sub) {
			sub.Close()
		}
	}

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			v.Close()
		}()
	}
	return v, nil
}

func (c *Coordinator) forget(v *View) {
	c.mu.Lock()
	delete(c.views, v)
	c.mu.Unlock()
}

// Origin narrows the public feed to reports near a point.
type Origin struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
}

type FeedParams struct {
	Type   model.CorruptionType
	Origin *Origin
}

// FeedProjection is the public feed: approved reports newest first, or
// nearest first when an origin is set.
type FeedProjection struct {
	Reports []model.Report       `json:"reports,omitempty"`
	Nearby  []model.NearbyReport `json:"nearby,omitempty"`
	Total   int                  `json:"total"`
}

// PublicFeed opens the approved-reports view.
func (c *Coordinator) PublicFeed(ctx context.Context, p FeedParams) (*View, error) {
	if p.Type != "" && !p.Type.IsValid() {
		return nil, &service.ValidationError{Field: "type", Message: "unknown type " + strconv.Quote(string(p.Type))}
	}
	if p.Origin != nil {
		if !geo.ValidCoordinates(p.Origin.Lat, p.Origin.Lng) {
			return nil, &service.ValidationError{Field: "origin", Message: "coordinates out of range"}
		}
		if p.Origin.RadiusKm <= 0 {
			p.Origin.RadiusKm = geo.DefaultRadiusKm
		}
	}

	params := string(p.Type)
	if p.Origin != nil {
		params += fmt.Sprintf("|%v,%v,%v", p.Origin.Lat, p.Origin.Lng, p.Origin.RadiusKm)
	}
	return c.open(ctx, definition{
		name:    ViewPublicFeed,
		params:  params,
		sources: []source{{name: "reports", query: repository.PublicReportsQuery()}},
		derive: func(docs map[string][]store.Document) any {
			reports := service.FilterByType(repository.ReportsFromDocuments(docs["reports"]), p.Type)
			if p.Origin != nil {
				nearby := geo.FilterNearby(reports, p.Origin.Lat, p.Origin.Lng, p.Origin.RadiusKm)
				return FeedProjection{Nearby: nearby, Total: len(nearby)}
			}
			model.SortByNewest(reports)
			return FeedProjection{Reports: reports, Total: len(reports)}
		},
	})
}

// MyReports opens the view of every report the actor authored.
func (c *Coordinator) MyReports(ctx context.Context, actor model.Actor) (*View, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: authentication required", service.ErrPermissionDenied)
	}
	return c.open(ctx, definition{
		name:    ViewMyReports,
		params:  actor.UserID,
		sources: []source{{name: "reports", query: repository.UserReportsQuery(actor.UserID)}},
		derive: func(docs map[string][]store.Document) any {
			reports := repository.ReportsFromDocuments(docs["reports"])
			model.SortByNewest(reports)
			return model.ReportListResponse{Reports: reports, Total: len(reports)}
		},
	})
}

// ThreadProjection is the comment view of one report. Found is false when
// the report is gone or hidden from the viewer; Threads is then empty.
type ThreadProjection struct {
	ReportID string          `json:"report_id"`
	Found    bool            `json:"found"`
	Threads  []thread.Thread `json:"threads"`
	Total    int             `json:"total"`
}

// Thread opens the comment thread view of a report. It follows both the
// report and its comments, so deleting the report empties the view.
func (c *Coordinator) Thread(ctx context.Context, actor model.Actor, reportID string) (*View, error) {
	return c.open(ctx, definition{
		name:   ViewThread,
		params: reportID + "|" + actor.UserID + "|" + string(actor.Role),
		sources: []source{
			{name: "report", query: store.Query{Collection: repository.CollectionReports}.Where(store.FieldDocumentID, reportID)},
			{name: "comments", query: repository.ReportCommentsQuery(reportID)},
		},
		derive: func(docs map[string][]store.Document) any {
			proj := ThreadProjection{ReportID: reportID, Threads: []thread.Thread{}}
			if len(docs["report"]) == 0 {
				return proj
			}
			report := repository.ReportFromDocument(docs["report"][0])
			if !service.CanView(actor, &report) {
				return proj
			}
			proj.Found = true
			proj.Threads = thread.Build(repository.CommentsFromDocuments(docs["comments"]))
			proj.Total = thread.Count(proj.Threads)
			return proj
		},
	})
}

// AdminReports opens the view of all reports, newest first.
func (c *Coordinator) AdminReports(ctx context.Context, actor model.Actor) (*View, error) {
	if err := service.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return c.open(ctx, definition{
		name:    ViewAdminReports,
		sources: []source{{name: "reports", query: repository.AllReportsQuery()}},
		derive: func(docs map[string][]store.Document) any {
			reports := repository.ReportsFromDocuments(docs["reports"])
			model.SortByNewest(reports)
			return model.ReportListResponse{Reports: reports, Total: len(reports)}
		},
	})
}

// AdminUsers opens the view of all user profiles.
func (c *Coordinator) AdminUsers(ctx context.Context, actor model.Actor) (*View, error) {
	if err := service.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return c.open(ctx, definition{
		name:    ViewAdminUsers,
		sources: []source{{name: "users", query: repository.AllUsersQuery()}},
		derive: func(docs map[string][]store.Document) any {
			users := repository.UsersFromDocuments(docs["users"])
			service.SortUsers(users)
			return model.UserListResponse{Users: users, Total: len(users)}
		},
	})
}

type CommentListProjection struct {
	Comments []model.Comment `json:"comments"`
	Total    int             `json:"total"`
}

// AdminComments opens the view of all comments on existing reports, newest
// first.
func (c *Coordinator) AdminComments(ctx context.Context, actor model.Actor) (*View, error) {
	if err := service.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return c.open(ctx, definition{
		name: ViewAdminComments,
		sources: []source{
			{name: "comments", query: repository.AllCommentsQuery()},
			{name: "reports", query: repository.AllReportsQuery()},
		},
		derive: func(docs map[string][]store.Document) any {
			comments := service.AttachedComments(
				repository.CommentsFromDocuments(docs["comments"]),
				repository.ReportsFromDocuments(docs["reports"]),
			)
			sort.SliceStable(comments, func(i, j int) bool {
				if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
					return comments[i].ID > comments[j].ID
				}
				return comments[i].CreatedAt.After(comments[j].CreatedAt)
			})
			return CommentListProjection{Comments: comments, Total: len(comments)}
		},
	})
}
