package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SGman98/mafiabot/internal/game"
	"github.com/SGman98/mafiabot/internal/mafia"
	"github.com/SGman98/mafiabot/internal/notify"
	"github.com/SGman98/mafiabot/internal/session"
)

// streamKeys lists every audience a room can be addressed with: the public
// stream, each role's own group and each stage's voter group.
func streamKeys(room *mafia.Room) []string {
	seen := map[string]bool{}
	var keys []string
	add := func(a notify.Audience) {
		if k := a.Key(); !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	add(notify.Public(room.Name))
	for _, r := range room.Scenario.Roles {
		add(notify.Private(room.Name, r.Type))
	}
	for _, t := range room.Scenario.Stages {
		add(game.StageAudience(room.Name, &mafia.Stage{Roles: t.Roles}))
	}
	return keys
}

// visible reports whether player may read a message posted to a. Private
// groups reach only their alive members.
func visible(room *mafia.Room, player string, a notify.Audience) bool {
	if a.IsPublic() {
		return true
	}
	p, ok := room.Player(player)
	return ok && p.Alive() && a.Includes(p.Role)
}

// handleEvents streams a room's announcements. With ?player= the stream
// also carries the private messages of that player's role.
func handleEvents(mgr *session.Manager, broker *notify.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "room")
		player := r.URL.Query().Get("player")

		room, err := mgr.Room(r.Context(), name)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if player != "" && !room.HasPlayer(player) {
			writeError(w, http.StatusForbidden, fmt.Sprintf("%s is not in room %s", player, name))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		keys := streamKeys(room)
		ch := broker.Subscribe(keys...)
		defer broker.Unsubscribe(ch, keys...)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()


		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				var env notify.Envelope
				if err := json.Unmarshal(data, &env); err != nil {
					continue
				}
				if !env.Audience.IsPublic() {
					// Roles and deaths change while the stream is open.
					if player == "" {
						continue
					}
					cur, err := mgr.Room(r.Context(), name)
					if err != nil || !visible(cur, player, env.Audience) {
						continue
					}
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Message.Kind, data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
