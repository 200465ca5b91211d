package httpapi

import (
	"net/http"
	"time"

	"call-platform/internal/call"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wireEvent is the over-the-wire shape of a call state change.
type wireEvent struct {
	CallID string `json:"call_id"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CallEvents streams call state-machine events over a websocket. One stream
// per connection; slow consumers miss events rather than stalling the call.
func (h Handlers) CallEvents(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return
	}
	defer conn.Close()

	events, cancel := h.Calls.SubscribeEvents()
	defer cancel()

	// Reader goroutine: the client sends nothing meaningful, but reading is
	// required to process close frames and detect a dead peer.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(toWireEvent(ev)); err != nil {
				return
			}
		}
	}
}

func toWireEvent(ev call.Event) wireEvent {
	out := wireEvent{
		CallID: ev.CallID,
		State:  ev.State.String(),
		Reason: string(ev.Reason),
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}
