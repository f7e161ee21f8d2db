package api

import (
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

// sseEvent is one server-sent event frame.
type sseEvent struct {
	ID    string
	Event string
	Data  string
}

// writeSSE renders one frame. Embedded newlines in the data are split
// across data: lines per the SSE wire format.
func writeSSE(w io.Writer, ev sseEvent) {
	if ev.ID != "" {
		fmt.Fprintf(w, "id: %s\n", ev.ID)
	}
	if ev.Event != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Event)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

// writeSSEComment emits a comment frame, used as a keep-alive.
func writeSSEComment(w io.Writer, text string) {
	fmt.Fprintf(w, ": %s\n\n", text)
}

// beginSSE sets the stream headers and commits the 200 status.
func beginSSE(c *gin.Context) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeaderNow()
}
