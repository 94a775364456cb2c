// Package votes streams ballot actions over a websocket. Each text frame is
// one JSON vote event and is answered with exactly one JSON ack.
package votes

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/SGman98/mafiabot/internal/game"
	"github.com/SGman98/mafiabot/internal/session"
)

// Voter applies vote events.
type Voter interface {
	Vote(ctx context.Context, ev session.VoteEvent) (game.Ack, error)
}

type Handler struct {
	voter  Voter
	logger *slog.Logger
}

func NewHandler(voter Voter, logger *slog.Logger) *Handler {
	return &Handler{voter: voter, logger: logger}
}

// Routes expects to be mounted under /ws.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/rooms/{room}/votes", h.stream)
	return r
}

// Reply answers one event. Error carries player-facing text.
type Reply struct {
	OK    bool      `json:"ok"`
	Ack   *game.Ack `json:"ack,omitempty"`
	Error string    `json:"error,omitempty"`
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Hour)
	defer cancel()

	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			h.logger.Debug("vote stream ended", "room", room, "error", err)
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "text frames only")
			return
		}

		reply := h.handle(ctx, room, msg)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			h.logger.Debug("vote stream write failed", "room", room, "error", err)
			return
		}
	}
}

func (h *Handler) handle(ctx context.Context, room string, msg []byte) Reply {
	var ev session.VoteEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return Reply{Error: "invalid JSON"}
	}
	ev.Room = room

	ack, err := h.voter.Vote(ctx, ev)
	if err != nil {
		h.logger.Debug("vote rejected", "room", room, "player", ev.PlayerID, "error", err)
		return Reply{Error: session.Describe(err)}
	}
	return Reply{OK: true, Ack: &ack}
}
