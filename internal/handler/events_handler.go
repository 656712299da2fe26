package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gorillaws "github.com/gorilla/websocket"

	"go-request-guard/internal/event"
	"go-request-guard/internal/middleware"
	"go-request-guard/internal/validation"
	"go-request-guard/internal/websocket"
	"go-request-guard/pkg/apierror"
)

type EventsHandler struct {
	hub      *websocket.Hub
	upgrader *gorillaws.Upgrader
	logger   *slog.Logger
}

func NewEventsHandler(hub *websocket.Hub, allowedOrigins []string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, upgrader: websocket.Upgrader(allowedOrigins), logger: logger}
}

// Stream upgrades to a websocket that pushes bus events. ?type= may repeat or
// hold a comma separated list.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	types, err := parseEventTypes(r.URL.Query()["type"])
	if err != nil {
		writeError(w, err)
		return
	}

	user, _ := middleware.UserFromContext(r.Context())
	if err := h.hub.Serve(h.upgrader, w, r, actorID(user), types); err != nil {
		if errors.Is(err, websocket.ErrHubStopped) {
			writeError(w, apierror.Unavailable("Event stream is shutting down"))
			return
		}
		h.logger.Debug("event stream upgrade failed", "error", err)
	}
}

func parseEventTypes(raw []string) ([]event.Type, error) {
	var types []event.Type
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t := event.Type(part)
			if !t.Known() {
				return nil, &validation.Error{Fields: map[string]string{"type": "unknown event type"}}
			}
			types = append(types, t)
		}
	}
	return types, nil
}
