package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/KevinKickass/aquanest/internal/api/websocket"
	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/KevinKickass/aquanest/internal/views"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// liveSnapshotTimeout bounds the wait for the first message of a live
// connection.
const liveSnapshotTimeout = 5 * time.Second

type viewResponse struct {
	*views.View
	Links gin.H `json:"links"`
}

func newViewResponse(v *views.View) viewResponse {
	base := "/api/v1/views/" + v.ID.String()
	return viewResponse{
		View: v,
		Links: gin.H{
			"self": base,
			"live": base + "/live",
		},
	}
}

// lookupView resolves :id to a view owned by the caller.
func (s *Server) lookupView(c *gin.Context) (*views.View, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid view id", c.Param("id"))
		return nil, false
	}

	view, err := s.views.Get(id, session(c).Owner())
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return view, true
}

// POST /api/v1/ponds/:id/views
func (s *Server) mountView(c *gin.Context) {
	id, ok := pondID(c)
	if !ok {
		return
	}

	view, err := s.views.Mount(id, session(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newViewResponse(view))
}

// GET /api/v1/views
func (s *Server) listViews(c *gin.Context) {
	list := s.views.List(session(c).Owner())

	response := make([]viewResponse, 0, len(list))
	for _, v := range list {
		response = append(response, newViewResponse(v))
	}

	c.JSON(http.StatusOK, gin.H{
		"views": response,
		"count": len(response),
	})
}

// GET /api/v1/views/:id
func (s *Server) getView(c *gin.Context) {
	view, ok := s.lookupView(c)
	if !ok {
		return
	}

	snap, err := view.Sync().Snapshot(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DELETE /api/v1/views/:id
func (s *Server) unmountView(c *gin.Context) {
	view, ok := s.lookupView(c)
	if !ok {
		return
	}

	if err := s.views.Unmount(c.Request.Context(), view.ID, view.Owner); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/views/:id/reload
func (s *Server) reloadView(c *gin.Context) {
	view, ok := s.lookupView(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := view.Sync().Reload(ctx); err != nil {
		s.writeError(c, err)
		return
	}

	snap, err := view.Sync().Snapshot(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /api/v1/views/:id/actuators/:kind/toggle
func (s *Server) toggleActuator(c *gin.Context) {
	view, ok := s.lookupView(c)
	if !ok {
		return
	}

	kind, ok := device.ParseKind(c.Param("kind"))
	if !ok || !kind.IsActuator() {
		badRequest(c, "unknown actuator kind", c.Param("kind"))
		return
	}

	snap, err := view.Sync().Toggle(c.Request.Context(), kind)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

// GET /api/v1/views/:id/live
func (s *Server) wsLiveConnection(c *gin.Context) {
	view, ok := s.lookupView(c)
	if !ok {
		return
	}
	if s.wsHub == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "live feed not available", nil))
		return
	}

	websocket.ServeWs(s.wsHub, c.Writer, c.Request, view.ID, func(send func(websocket.Message)) error {
		ctx, cancel := context.WithTimeout(context.Background(), liveSnapshotTimeout)
		defer cancel()
		return view.Sync().SnapshotTo(ctx, func(snap telemetry.Snapshot) {
			send(websocket.NewSnapshotMessage(view.ID, snap))
		})
	})
}
