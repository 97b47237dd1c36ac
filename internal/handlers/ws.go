package handlers

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/adimov-eth/transcribe/internal/progress"
	"github.com/adimov-eth/transcribe/internal/types"
)

// ProgressHandler streams per-job progress events over a websocket
type ProgressHandler struct {
	bus *progress.Bus
}

// NewProgressHandler creates a handler over the progress bus
func NewProgressHandler(bus *progress.Bus) *ProgressHandler {
	return &ProgressHandler{bus: bus}
}

// wsCommand is a client control message
type wsCommand struct {
	Action string `json:"action"`
	JobID  string `json:"jobId"`
}

// Handle processes one websocket connection. Clients subscribe and
// unsubscribe to job topics; the server forwards bus events for each
// subscribed job until its terminal event is delivered.
func (h *ProgressHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		writeMu sync.Mutex
		subMu   sync.Mutex
		subs    = make(map[string]<-chan types.ProgressEvent)
		done    = make(chan struct{})
	)

	defer func() {
		close(done)
		subMu.Lock()
		for jobID, ch := range subs {
			h.bus.Unsubscribe(jobID, ch)
		}
		subMu.Unlock()
	}()

	log.Println("Progress websocket connected")

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			break
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil || cmd.JobID == "" {
			continue
		}

		switch cmd.Action {
		case "subscribe":
			subMu.Lock()
			if _, ok := subs[cmd.JobID]; ok {
				subMu.Unlock()
				continue
			}
			ch := h.bus.Subscribe(cmd.JobID)
			subs[cmd.JobID] = ch
			subMu.Unlock()
			log.Printf("Client subscribed to job %s", cmd.JobID)

			go h.forward(c, &writeMu, cmd.JobID, ch, done)

		case "unsubscribe":
			subMu.Lock()
			if ch, ok := subs[cmd.JobID]; ok {
				delete(subs, cmd.JobID)
				h.bus.Unsubscribe(cmd.JobID, ch)
			}
			subMu.Unlock()
			log.Printf("Client unsubscribed from job %s", cmd.JobID)
		}
	}
}

// forward pumps one job's events to the socket until a terminal
// event, an unsubscribe, or connection close
func (h *ProgressHandler) forward(c *websocket.Conn, writeMu *sync.Mutex, jobID string, ch <-chan types.ProgressEvent, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}

			writeMu.Lock()
			writeErr := c.WriteMessage(websocket.TextMessage, payload)
			writeMu.Unlock()
			if writeErr != nil {
				return
			}

			if event.Terminal() {
				return
			}
		}
	}
}
