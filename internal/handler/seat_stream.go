package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/openride/bus-seat-reservation/internal/broadcast"
	"github.com/openride/bus-seat-reservation/internal/lock"
)

// StreamHandler serves the per-trip seat event stream over server-sent
// events and the explicit connection release endpoint.  Every stream gets
// a connection id; holds placed with that id are released when the stream
// closes, so an abandoned browser tab gives its seats back without waiting
// for the hold to expire.
type StreamHandler struct {
	Hub *broadcast.Hub
	Mgr *lock.Manager
	Log *logrus.Logger
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(hub *broadcast.Hub, mgr *lock.Manager, log *logrus.Logger) *StreamHandler {
	if hub == nil || mgr == nil {
		panic("nil dependency passed to NewStreamHandler")
	}
	return &StreamHandler{Hub: hub, Mgr: mgr, Log: log}
}

// Stream handles GET /v1/trips/:trip_id/seats/stream.  The client may pass
// ?connection_id= to reuse an id across reconnects; otherwise one is
// generated.  The first event on the wire is "connected" carrying the id,
// which the client echoes in lock requests to tie its holds to this
// stream.
func (h *StreamHandler) Stream(c echo.Context) error {
	tripID, err := pathID(c, "trip_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	connID := c.QueryParam("connection_id")
	if connID == "" {
		connID = uuid.New().String()
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.Hub.Subscribe(tripID)
	defer func() {
		h.Hub.Unsubscribe(sub)
		// the request context is already cancelled at this point
		released := h.Mgr.ReleaseConnection(context.Background(), connID)
		if released > 0 {
			h.Log.WithFields(logrus.Fields{
				"conn_id":  connID,
				"trip_id":  tripID,
				"released": released,
			}).Info("released holds on disconnect")
		}
	}()

	fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":%q}\n\n", connID)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: seat\ndata: %s\n\n", payload)
			w.Flush()
		}
	}
}

// ReleaseConnection handles POST /v1/connections/:id/release, the explicit
// variant of disconnect cleanup for clients that know they are going away.
func (h *StreamHandler) ReleaseConnection(c echo.Context) error {
	connID := c.Param("id")
	if connID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "connection id required"})
	}
	released := h.Mgr.ReleaseConnection(c.Request().Context(), connID)
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}
