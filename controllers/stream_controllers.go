package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/concessions-app/realtime"
	"github.com/yeremiapane/concessions-app/utils"
)

// heartbeatInterval keeps proxies from idling out quiet streams.
const heartbeatInterval = 20 * time.Second

type StreamController struct {
	Hub *realtime.Hub
}

func NewStreamController(hub *realtime.Hub) *StreamController {
	return &StreamController{Hub: hub}
}

// Stream serves the theater event feed over SSE. The Last-Event-ID header (or
// last_event_id query) resumes from the replay ring; events missed beyond the
// ring are gone, which is fine because clients also poll.
func (sc *StreamController) Stream(c *gin.Context) {
	theaterID := c.GetUint("theater_id")
	if theaterID == 0 {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("theater not resolved"))
		return
	}

	resumeToken := c.GetHeader("Last-Event-ID")
	if resumeToken == "" {
		resumeToken = c.Query("last_event_id")
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		utils.RespondError(c, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sub := sc.Hub.Subscribe(theaterID, resumeToken)
	defer sub.Close()

	for _, ev := range sub.Backlog {
		writeSSE(c, ev)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, open := <-sub.C:
			if !open {
				return
			}
			writeSSE(c, ev)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeSSE(c *gin.Context, ev realtime.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		utils.ErrorLogger.Printf("stream encode failed for event %s: %v", ev.ID, err)
		return
	}
	fmt.Fprintf(c.Writer, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload)
}
