package api

import (
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/hupe1980/eduswarm/swarm"
)

// events streams bus events as JSON text frames. The optional names query
// parameter (comma separated) restricts the stream to those events.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	names := swarm.EventNames
	if raw := r.URL.Query().Get("names"); raw != "" {
		names = strings.Split(raw, ",")
	}

	ch := make(chan swarm.Event, s.opts.EventBuffer)
	bus := s.orch.Bus()
	ids := make(map[string]swarm.ListenerID, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		ids[name] = bus.Subscribe(name, func(ev swarm.Event) {
			select {
			case ch <- ev:
			default:
				s.logger.Warn("events.dropped", "event", ev.Name)
			}
		})
	}
	defer func() {
		for name, id := range ids {
			bus.Off(name, id)
		}
	}()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Error("events.accept", "error", err)
		return
	}
	defer func() {
		if err := ws.Close(websocket.StatusNormalClosure, "stream closed"); err != nil {
			s.logger.Debug("events.close", "error", err)
		}
	}()

	ctx := ws.CloseRead(r.Context())
	s.logger.Debug("events.connected", "remote", r.RemoteAddr, "names", names)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := wsjson.Write(ctx, ws, ev); err != nil {
				s.logger.Debug("events.write", "error", err)
				return
			}
		}
	}
}
