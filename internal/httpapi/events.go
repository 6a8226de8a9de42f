package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mdonan90/ClawController/internal/eventbus"
)

type EventServer struct {
	bus *eventbus.Bus
}

func NewEventServer(bus *eventbus.Bus) *EventServer {
	return &EventServer{bus: bus}
}

func (s *EventServer) Routes(r chi.Router) {
	r.Get("/events", s.stream)
}

// stream delivers bus events over Server-Sent Events until the client
// disconnects. An optional ?types=a,b query narrows the event types.
func (s *EventServer) stream(w http.ResponseWriter, r *http.Request) {
	flusher, okFlush := w.(http.Flusher)
	if !okFlush {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	typeFilter := make(map[eventbus.Type]struct{})
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				typeFilter[eventbus.Type(t)] = struct{}{}
			}
		}
	}

	subID, ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, okRecv := <-ch:
			if !okRecv {
				return
			}
			if len(typeFilter) > 0 {
				if _, match := typeFilter[event.Type]; !match {
					continue
				}
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
