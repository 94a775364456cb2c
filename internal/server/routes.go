package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, deps Deps) {
	mgr := deps.Manager

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Mafiabot API", "/openapi.json", "/docs"))

	r.Get("/api/scenarios", handleListScenarios(deps.Catalog))

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", handleListRooms(mgr))
		r.Post("/", handleCreateRoom(mgr))
		r.Post("/join", handleJoinRoom(mgr))
		r.Post("/leave", handleLeaveRoom(mgr))

		r.Route("/{room}", func(r chi.Router) {
			r.Get("/", handleGetRoom(mgr))
			r.Delete("/", handleDeleteRoom(mgr))
			r.Post("/start", handleStartGame(mgr))
			r.Post("/stage/next", handleNextStage(mgr))
			r.Post("/stage/end", handleEndStage(mgr))
			r.Post("/end", handleEndGame(mgr))
			r.Post("/votes", handleVote(mgr))
			r.Get("/events", handleEvents(mgr, deps.Broker))
		})
	})
}
