package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SGman98/mafiabot/internal/scenario"
	"github.com/SGman98/mafiabot/internal/session"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
	// Scenario defaults to the first catalog entry.
	Scenario string `json:"scenario,omitempty"`
}

// MembershipRequest joins or leaves a room. An empty room joins the
// emptiest waiting room, or leaves the player's current one.
type MembershipRequest struct {
	Room     string `json:"room,omitempty"`
	PlayerID string `json:"playerId"`
}

func handleListScenarios(catalog *scenario.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := catalog.List()
		out := make([]ScenarioSummary, len(all))
		for i, sc := range all {
			out[i] = newScenarioSummary(sc)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleListRooms(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := mgr.ListRooms(r.Context())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		out := make([]RoomSummary, len(rooms))
		for i, room := range rooms {
			out[i] = newRoomSummary(room)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleCreateRoom(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		room, err := mgr.CreateRoom(r.Context(), req.Name, req.Scenario)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newRoomView(room, ""))
	}
}

func handleGetRoom(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := mgr.Room(r.Context(), chi.URLParam(r, "room"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRoomView(room, r.URL.Query().Get("player")))
	}
}

func handleDeleteRoom(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mgr.DeleteRoom(r.Context(), chi.URLParam(r, "room")); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleJoinRoom(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MembershipRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		room, err := mgr.JoinRoom(r.Context(), req.Room, req.PlayerID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRoomView(room, req.PlayerID))
	}
}

func handleLeaveRoom(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MembershipRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		room, err := mgr.LeaveRoom(r.Context(), req.Room, req.PlayerID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRoomView(room, ""))
	}
}
