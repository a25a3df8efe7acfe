package ingress

import (
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleEvents handles GET /v1/runs/:id/events (spec §6 "events"): a
// long-lived one-way stream framed as server-sent events, `event: <type>`
// / `data: <json>` per spec §6's "Event format". ?since=<seq> replays
// catchup history from the broadcaster before switching to live delivery,
// letting a reconnecting client resume without missing events.
func (s *Server) handleEvents(c *gin.Context) {
	run, ok := s.loadRun(c, c.Request.Context())
	if !ok {
		return
	}

	var since int64
	if v := c.Query("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, "since must be an integer sequence number")
			return
		}
		since = parsed
	}

	ch, cancel := s.broadcast.Subscribe(run.ID, since)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}
