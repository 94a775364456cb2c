package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SGman98/mafiabot/internal/mafia"
	"github.com/SGman98/mafiabot/internal/session"
)

type VoteRequest struct {
	PlayerID string `json:"playerId"`
	StageID  string `json:"stageId,omitempty"`
	// Choice is the position on the ballot, starting at 0.
	Choice   *int   `json:"choice,omitempty"`
	Target   string `json:"target,omitempty"`
	Withdraw bool   `json:"withdraw,omitempty"`
}

// roomAction adapts a Manager operation that returns the updated room.
func roomAction(op func(ctx context.Context, room string) (*mafia.Room, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := op(r.Context(), chi.URLParam(r, "room"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRoomView(room, ""))
	}
}

func handleStartGame(mgr *session.Manager) http.HandlerFunc { return roomAction(mgr.StartGame) }

func handleNextStage(mgr *session.Manager) http.HandlerFunc { return roomAction(mgr.NextStage) }

func handleEndStage(mgr *session.Manager) http.HandlerFunc { return roomAction(mgr.EndStage) }

func handleEndGame(mgr *session.Manager) http.HandlerFunc { return roomAction(mgr.EndGame) }

func handleVote(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VoteRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ack, err := mgr.Vote(r.Context(), session.VoteEvent{
			Room:     chi.URLParam(r, "room"),
			PlayerID: req.PlayerID,
			StageID:  req.StageID,
			Choice:   req.Choice,
			Target:   req.Target,
			Withdraw: req.Withdraw,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}
