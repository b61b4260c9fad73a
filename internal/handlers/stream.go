package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"nhooyr.io/websocket"

	"raffle/internal/events"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

// Subscriber fans out live events.
type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

// ListEvents supports ?raffle=, ?after= and ?limit=.
func (h *HTTPHandler) ListEvents(c *gin.Context) {
	var f events.Filter
	if s := c.Query("raffle"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid raffle id", nil)
			return
		}
		f.RaffleID = &id
	}
	if s := c.Query("after"); s != "" {
		after, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid after", nil)
			return
		}
		f.AfterSeq = after
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid limit", nil)
		return
	}
	f.Limit = limit

	list, err := h.service.Events().List(c.Request.Context(), f)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, list, map[string]any{"count": len(list)})
}

// StreamEvents upgrades to a websocket and pushes every new event as a JSON
// text message. ?raffle= restricts the stream to one raffle.
func (h *HTTPHandler) StreamEvents(c *gin.Context) {
	if h.stream == nil {
		Error(c, http.StatusNotImplemented, "event stream unavailable", nil)
		return
	}
	var only *uint64
	if s := c.Query("raffle"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid raffle id", nil)
			return
		}
		only = &id
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warningf("events: websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	feed, unsubscribe := h.stream.Subscribe(streamBuffer)
	defer unsubscribe()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// once the peer goes away.
	ctx := conn.CloseRead(c.Request.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if only != nil && ev.RaffleID != *only {
				continue
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				logger.Warningf("events: websocket write failed: %v", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
