package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/SGman98/mafiabot/internal/game"
)

// HealthResponse maps each dependency name to its check result.
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

type roomPath struct {
	Room string `path:"room"`
}

type roomQuery struct {
	Room   string `path:"room"`
	Player string `query:"player" description:"Show this player's own role."`
}

type voteRequestDoc struct {
	roomPath
	VoteRequest
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Mafiabot API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Rooms, stages and voting for social deduction games.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/scenarios
	listScenarios, _ := r.NewOperationContext(http.MethodGet, "/api/scenarios")
	listScenarios.SetSummary("List scenarios")
	listScenarios.SetDescription("Returns every loaded scenario with its role and stage names.")
	listScenarios.AddRespStructure([]ScenarioSummary{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(listScenarios)

	// GET /api/rooms
	listRooms, _ := r.NewOperationContext(http.MethodGet, "/api/rooms")
	listRooms.SetSummary("List rooms")
	listRooms.AddRespStructure([]RoomSummary{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(listRooms)

	// POST /api/rooms
	createRoom, _ := r.NewOperationContext(http.MethodPost, "/api/rooms")
	createRoom.SetSummary("Create room")
	createRoom.SetDescription("Creates a waiting room bound to a scenario.")
	createRoom.AddReqStructure(CreateRoomRequest{})
	createRoom.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusCreated))
	createRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	createRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	createRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(createRoom)

	// POST /api/rooms/join
	joinRoom, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/join")
	joinRoom.SetSummary("Join room")
	joinRoom.SetDescription("Adds a player to a waiting room. Without a room, picks the waiting room with the fewest players.")
	joinRoom.AddReqStructure(MembershipRequest{})
	joinRoom.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	joinRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	joinRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(joinRoom)

	// POST /api/rooms/leave
	leaveRoom, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/leave")
	leaveRoom.SetSummary("Leave room")
	leaveRoom.SetDescription("Removes a player from a room that has not started.")
	leaveRoom.AddReqStructure(MembershipRequest{})
	leaveRoom.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	leaveRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	leaveRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(leaveRoom)

	// GET /api/rooms/{room}
	getRoom, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{room}")
	getRoom.SetSummary("Get room")
	getRoom.SetDescription("Returns the room with its current stage. Roles stay hidden until death or game over.")
	getRoom.AddReqStructure(roomQuery{})
	getRoom.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	getRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getRoom)

	// DELETE /api/rooms/{room}
	deleteRoom, _ := r.NewOperationContext(http.MethodDelete, "/api/rooms/{room}")
	deleteRoom.SetSummary("Delete room")
	deleteRoom.AddReqStructure(roomPath{})
	deleteRoom.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	deleteRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(deleteRoom)

	actions := []struct {
		path, summary, description string
	}{
		{"/api/rooms/{room}/start", "Start game", "Deals roles and moves the room into play."},
		{"/api/rooms/{room}/stage/next", "Next stage", "Settles any open stage and opens the next one, or ends the game when a side has won."},
		{"/api/rooms/{room}/stage/end", "End stage", "Closes the open stage early and applies its result."},
		{"/api/rooms/{room}/end", "End game", "Force-finishes the game with no winner."},
	}
	for _, a := range actions {
		op, _ := r.NewOperationContext(http.MethodPost, a.path)
		op.SetSummary(a.summary)
		op.SetDescription(a.description)
		op.AddReqStructure(roomPath{})
		op.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
		_ = r.AddOperation(op)
	}

	// POST /api/rooms/{room}/votes
	postVote, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{room}/votes")
	postVote.SetSummary("Vote")
	postVote.SetDescription("Casts, changes or withdraws a vote in the open stage. The vote that completes the quorum closes the stage.")
	postVote.AddReqStructure(voteRequestDoc{})
	postVote.AddRespStructure(game.Ack{}, openapi.WithHTTPStatus(http.StatusOK))
	postVote.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postVote.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	postVote.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postVote)

	// GET /api/rooms/{room}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{room}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of room announcements. Pass player to also receive that player's role messages.")
	getEvents.AddReqStructure(roomQuery{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /ws/rooms/{room}/votes
	getVoteStream, _ := r.NewOperationContext(http.MethodGet, "/ws/rooms/{room}/votes")
	getVoteStream.SetSummary("WebSocket vote stream")
	getVoteStream.SetDescription("Upgrades to a WebSocket. Each text frame is a vote event and is answered with one JSON reply.")
	getVoteStream.AddReqStructure(roomPath{})
	getVoteStream.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getVoteStream)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
